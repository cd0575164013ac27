// CLAUDE:SUMMARY RSS 2.0 / Atom 1.0 parser for the feed-refresh trigger, auto-detected from the XML root.
// Package feed parses RSS 2.0 and Atom 1.0 documents using encoding/xml.
//
// Auto-detects format from the XML root element:
//   - <rss ...> / <rdf ...> → RSS 2.0
//   - <feed ...> → Atom 1.0
//
// Item summaries are raw upstream markup; callers sanitize them before
// storage or display.
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Item is one entry in a feed.
type Item struct {
	GUID      string `json:"guid"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Summary   string `json:"summary"`
	Published string `json:"published"`
}

// Feed is a parsed RSS or Atom document.
type Feed struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Items []Item `json:"items"`
}

// Parse auto-detects and parses RSS 2.0 or Atom 1.0 XML.
func Parse(data []byte) (*Feed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("feed: empty data")
	}
	switch detectFormat(trimmed) {
	case "rss":
		return parseRSS(data)
	case "atom":
		return parseAtom(data)
	default:
		return nil, fmt.Errorf("feed: unknown format (expected <rss> or <feed>)")
	}
}

func detectFormat(data []byte) string {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss", "rdf":
				return "rss"
			case "feed":
				return "atom"
			default:
				return ""
			}
		}
	}
}

type rssRoot struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string `xml:"title"`
		Link  string `xml:"link"`
		Items []struct {
			GUID        string `xml:"guid"`
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

func parseRSS(data []byte) (*Feed, error) {
	var root rssRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("feed: parse rss: %w", err)
	}
	f := &Feed{
		Title: strings.TrimSpace(root.Channel.Title),
		Link:  strings.TrimSpace(root.Channel.Link),
		Items: make([]Item, 0, len(root.Channel.Items)),
	}
	for _, it := range root.Channel.Items {
		guid := strings.TrimSpace(it.GUID)
		if guid == "" {
			guid = strings.TrimSpace(it.Link)
		}
		f.Items = append(f.Items, Item{
			GUID:      guid,
			Title:     strings.TrimSpace(it.Title),
			Link:      strings.TrimSpace(it.Link),
			Summary:   strings.TrimSpace(it.Description),
			Published: strings.TrimSpace(it.PubDate),
		})
	}
	return f, nil
}

type atomRoot struct {
	XMLName xml.Name `xml:"feed"`
	Title   string   `xml:"title"`
	Entries []struct {
		ID        string     `xml:"id"`
		Title     string     `xml:"title"`
		Links     []atomLink `xml:"link"`
		Summary   string     `xml:"summary"`
		Published string     `xml:"published"`
		Updated   string     `xml:"updated"`
	} `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

func parseAtom(data []byte) (*Feed, error) {
	var root atomRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("feed: parse atom: %w", err)
	}
	f := &Feed{
		Title: strings.TrimSpace(root.Title),
		Items: make([]Item, 0, len(root.Entries)),
	}
	for _, e := range root.Entries {
		link := pickLink(e.Links)
		guid := strings.TrimSpace(e.ID)
		if guid == "" {
			guid = link
		}
		published := strings.TrimSpace(e.Published)
		if published == "" {
			published = strings.TrimSpace(e.Updated)
		}
		f.Items = append(f.Items, Item{
			GUID:      guid,
			Title:     strings.TrimSpace(e.Title),
			Link:      link,
			Summary:   strings.TrimSpace(e.Summary),
			Published: published,
		})
	}
	return f, nil
}

// pickLink prefers rel="alternate" (or unset rel), falling back to the
// first link present.
func pickLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}
