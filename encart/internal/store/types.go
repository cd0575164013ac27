// CLAUDE:SUMMARY Row types for the encart store: Snippet, Setting, RateWindow, Feed, FeedItem.
package store

// Snippet is one piece of admin-authored injected markup. Code is
// persisted verbatim so admins can edit it; it is never served raw.
type Snippet struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	Code      string `json:"code"`
	Active    bool   `json:"active"`
	Priority  int    `json:"priority"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Setting is one site-wide configuration entry.
type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
}

// RateWindow is one fixed rate-limit window row.
type RateWindow struct {
	ID           string `json:"id"`
	ClientIP     string `json:"client_ip"`
	FunctionName string `json:"function_name"`
	RequestCount int    `json:"request_count"`
	BlockedCount int    `json:"blocked_count"`
	WindowStart  int64  `json:"window_start"`
	WindowEnd    int64  `json:"window_end"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Feed is one aggregated RSS/Atom source.
type Feed struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Active        bool   `json:"active"`
	LastFetchedAt int64  `json:"last_fetched_at"`
	LastStatus    string `json:"last_status"`
	LastError     string `json:"last_error"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// FeedItem is one entry pulled from a feed.
type FeedItem struct {
	ID        string `json:"id"`
	FeedID    string `json:"feed_id"`
	GUID      string `json:"guid"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Summary   string `json:"summary"`
	Published string `json:"published"`
	FetchedAt int64  `json:"fetched_at"`
}
