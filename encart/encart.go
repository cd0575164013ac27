// CLAUDE:SUMMARY Main Service orchestrator: snippet CRUD, the Serve admission pipeline, settings, and feed aggregation.
package encart

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/encart/audit"
	"github.com/hazyhaar/encart/auth"
	"github.com/hazyhaar/encart/encart/internal/store"
	"github.com/hazyhaar/encart/feed"
	"github.com/hazyhaar/encart/horosafe"
	"github.com/hazyhaar/encart/policy"
	"github.com/hazyhaar/encart/sanitize"
)

// Bundle is the admission pipeline's output for one location: inert
// markup plus the scripts that passed classification, ready for the
// client to mount.
type Bundle struct {
	HTML          string   `json:"html"`
	Scripts       []string `json:"scripts"`
	InlineScripts []string `json:"inlineScripts"`
}

// Service is the main encart orchestrator.
type Service struct {
	store        *store.Store
	pol          *policy.Policy
	renderer     *sanitize.Renderer
	logger       *slog.Logger
	httpClient   *http.Client
	urlValidator func(string) error // URL validation (default: horosafe.ValidateURL)
	auditLog     *audit.Logger      // optional admin action trail
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithHTTPClient replaces the client used for feed fetches.
func WithHTTPClient(c *http.Client) ServiceOption {
	return func(s *Service) { s.httpClient = c }
}

// WithURLValidator replaces the URL validator (tests use this to
// allow loopback fetches).
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(s *Service) { s.urlValidator = fn }
}

// WithAudit enables the admin action trail.
func WithAudit(l *audit.Logger) ServiceOption {
	return func(s *Service) { s.auditLog = l }
}

// New creates an encart Service and applies the schema.
func New(db *sql.DB, pol *policy.Policy, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if pol == nil {
		pol = policy.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	svc := &Service{
		store:        store.New(db),
		pol:          pol,
		renderer:     sanitize.NewRenderer(pol),
		logger:       logger,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		urlValidator: horosafe.ValidateURL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Store exposes the underlying store for wiring (rate limiter,
// maintenance reloader). Not for business logic.
func (s *Service) Store() *store.Store { return s.store }

// Policy returns the admission policy in effect.
func (s *Service) Policy() *policy.Policy { return s.pol }

// --- Serving ---

// Serve runs the admission pipeline for one location and returns the
// bundle the client mounts. An unknown location is an input error,
// never an empty bundle.
func (s *Service) Serve(ctx context.Context, location string) (*Bundle, error) {
	if !ValidLocation(location) {
		return nil, fmt.Errorf("%w: unknown location %q", ErrInvalidInput, location)
	}
	snippets, err := s.store.ListActiveByLocation(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("list snippets: %w", err)
	}
	var b strings.Builder
	for _, sn := range snippets {
		b.WriteString(sn.Code)
		b.WriteString("\n")
	}
	ex := s.extract(b.String())
	return &Bundle{
		HTML:          ex.HTML,
		Scripts:       ex.Scripts,
		InlineScripts: ex.InlineScripts,
	}, nil
}

// Preview runs the same pipeline on arbitrary code without touching
// the store. Admin UIs call it before saving a snippet.
func (s *Service) Preview(code string) *Bundle {
	ex := s.extract(code)
	return &Bundle{
		HTML:          ex.HTML,
		Scripts:       ex.Scripts,
		InlineScripts: ex.InlineScripts,
	}
}

// record writes an audit entry when the trail is enabled, resolving
// the actor from the request's session claims.
func (s *Service) record(ctx context.Context, action, entityType, entityID string, details any) {
	if s.auditLog == nil {
		return
	}
	actor := ""
	if c := auth.GetClaims(ctx); c != nil {
		actor = c.UserID
	}
	s.auditLog.Record(actor, action, entityType, entityID, details)
}

// extract is the two-pass admission pipeline: script extraction and
// classification, then the narrower markup scrub.
func (s *Service) extract(code string) sanitize.Extraction {
	ex := sanitize.ExtractScripts(code, s.pol)
	ex.HTML = sanitize.StripUnsafe(ex.HTML)
	return ex
}

// RenderContent sanitizes article or feed content for display.
// Trusted content keeps embeds; untrusted is reduced to basic markup.
func (s *Service) RenderContent(content string, trusted bool) string {
	return s.renderer.Render(content, trusted)
}

// --- Snippets ---

// CreateSnippet validates and stores a new snippet. The code is
// stored verbatim; sanitization happens at serve time.
func (s *Service) CreateSnippet(ctx context.Context, name, location, code string, active bool, priority int) (*store.Snippet, error) {
	if err := validateSnippetInput(name, location, code); err != nil {
		return nil, err
	}
	sn := &store.Snippet{
		Name:     strings.TrimSpace(name),
		Location: location,
		Code:     code,
		Active:   active,
		Priority: priority,
	}
	if err := s.store.InsertSnippet(ctx, sn); err != nil {
		return nil, fmt.Errorf("insert snippet: %w", err)
	}
	s.logger.Info("snippet created", "id", sn.ID, "location", sn.Location, "active", sn.Active)
	s.record(ctx, "create", "snippet", sn.ID, map[string]any{"name": sn.Name, "location": sn.Location})
	return sn, nil
}

// GetSnippet returns one snippet or ErrNotFound.
func (s *Service) GetSnippet(ctx context.Context, id string) (*store.Snippet, error) {
	sn, err := s.store.GetSnippet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get snippet: %w", err)
	}
	if sn == nil {
		return nil, fmt.Errorf("%w: snippet %s", ErrNotFound, id)
	}
	return sn, nil
}

// ListSnippets returns every snippet, active or not.
func (s *Service) ListSnippets(ctx context.Context) ([]*store.Snippet, error) {
	return s.store.ListSnippets(ctx)
}

// UpdateSnippet validates and persists changes to an existing snippet.
func (s *Service) UpdateSnippet(ctx context.Context, id, name, location, code string, active bool, priority int) (*store.Snippet, error) {
	if err := validateSnippetInput(name, location, code); err != nil {
		return nil, err
	}
	sn, err := s.GetSnippet(ctx, id)
	if err != nil {
		return nil, err
	}
	sn.Name = strings.TrimSpace(name)
	sn.Location = location
	sn.Code = code
	sn.Active = active
	sn.Priority = priority
	if err := s.store.UpdateSnippet(ctx, sn); err != nil {
		return nil, fmt.Errorf("update snippet: %w", err)
	}
	s.logger.Info("snippet updated", "id", sn.ID, "location", sn.Location, "active", sn.Active)
	s.record(ctx, "update", "snippet", sn.ID, map[string]any{"name": sn.Name, "active": sn.Active})
	return sn, nil
}

// DeleteSnippet removes a snippet. Deleting a missing snippet is
// ErrNotFound so the HTTP layer can answer 404.
func (s *Service) DeleteSnippet(ctx context.Context, id string) error {
	sn, err := s.store.GetSnippet(ctx, id)
	if err != nil {
		return fmt.Errorf("get snippet: %w", err)
	}
	if sn == nil {
		return fmt.Errorf("%w: snippet %s", ErrNotFound, id)
	}
	if err := s.store.DeleteSnippet(ctx, id); err != nil {
		return fmt.Errorf("delete snippet: %w", err)
	}
	s.logger.Info("snippet deleted", "id", id)
	s.record(ctx, "delete", "snippet", id, nil)
	return nil
}

// --- Settings ---

// GetSetting returns the value for key, or "" when unset.
func (s *Service) GetSetting(ctx context.Context, key string) (string, error) {
	if err := horosafe.ValidateIdentifier(key); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.store.GetSetting(ctx, key)
}

// SetSetting stores a site-wide setting.
func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	if err := horosafe.ValidateIdentifier(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.SetSetting(ctx, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	s.logger.Info("setting updated", "key", key)
	s.record(ctx, "update", "setting", key, nil)
	return nil
}

// ListSettings returns every site setting.
func (s *Service) ListSettings(ctx context.Context) ([]*store.Setting, error) {
	return s.store.ListSettings(ctx)
}

// DeleteSetting removes a setting. Missing keys are not an error.
func (s *Service) DeleteSetting(ctx context.Context, key string) error {
	if err := horosafe.ValidateIdentifier(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.DeleteSetting(ctx, key); err != nil {
		return err
	}
	s.record(ctx, "delete", "setting", key, nil)
	return nil
}

// --- Feeds ---

// AddFeed registers an aggregated feed after validating its URL.
func (s *Service) AddFeed(ctx context.Context, name, url string) (*store.Feed, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := s.urlValidator(url); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	f := &store.Feed{Name: strings.TrimSpace(name), URL: url, Active: true}
	if err := s.store.InsertFeed(ctx, f); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, fmt.Errorf("%w: feed URL already registered", ErrDuplicate)
		}
		return nil, fmt.Errorf("insert feed: %w", err)
	}
	s.logger.Info("feed added", "id", f.ID, "url", f.URL)
	s.record(ctx, "create", "feed", f.ID, map[string]string{"url": f.URL})
	return f, nil
}

// ListFeeds returns every registered feed.
func (s *Service) ListFeeds(ctx context.Context) ([]*store.Feed, error) {
	return s.store.ListFeeds(ctx)
}

// DeleteFeed removes a feed and its items.
func (s *Service) DeleteFeed(ctx context.Context, id string) error {
	f, err := s.store.GetFeed(ctx, id)
	if err != nil {
		return fmt.Errorf("get feed: %w", err)
	}
	if f == nil {
		return fmt.Errorf("%w: feed %s", ErrNotFound, id)
	}
	if err := s.store.DeleteFeed(ctx, id); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	s.logger.Info("feed deleted", "id", id)
	s.record(ctx, "delete", "feed", id, nil)
	return nil
}

// RefreshFeed fetches, parses, and upserts one feed's items. Item
// summaries pass through the untrusted renderer before storage so the
// item table never holds live markup. The fetch outcome is recorded
// on the feed row either way.
func (s *Service) RefreshFeed(ctx context.Context, id string) (int, error) {
	f, err := s.store.GetFeed(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("get feed: %w", err)
	}
	if f == nil {
		return 0, fmt.Errorf("%w: feed %s", ErrNotFound, id)
	}
	items, err := s.fetchFeed(ctx, f.URL)
	if err != nil {
		if recErr := s.store.RecordFetch(ctx, id, "error", err.Error()); recErr != nil {
			s.logger.Error("record fetch failed", "feed_id", id, "error", recErr)
		}
		return 0, fmt.Errorf("fetch feed: %w", err)
	}
	inserted, err := s.store.UpsertItems(ctx, id, items)
	if err != nil {
		return 0, fmt.Errorf("upsert items: %w", err)
	}
	if err := s.store.RecordFetch(ctx, id, "ok", ""); err != nil {
		s.logger.Error("record fetch failed", "feed_id", id, "error", err)
	}
	s.logger.Info("feed refreshed", "feed_id", id, "items", len(items), "new", inserted)
	s.record(ctx, "refresh", "feed", id, map[string]int{"new_items": inserted})
	return inserted, nil
}

// ListFeedItems returns the newest items for a feed.
func (s *Service) ListFeedItems(ctx context.Context, feedID string, limit int) ([]*store.FeedItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListItems(ctx, feedID, limit)
}

func (s *Service) fetchFeed(ctx context.Context, url string) ([]*store.FeedItem, error) {
	if err := s.urlValidator(url); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "encart-feed/1.0")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d", resp.StatusCode)
	}
	body, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return nil, err
	}
	parsed, err := feed.Parse(body)
	if err != nil {
		return nil, err
	}
	items := make([]*store.FeedItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		items = append(items, &store.FeedItem{
			GUID:      it.GUID,
			Title:     it.Title,
			Link:      it.Link,
			Summary:   s.renderer.Render(it.Summary, false),
			Published: it.Published,
		})
	}
	return items, nil
}
