package feed

import (
	"strings"
	"testing"
)

func TestParseRSS(t *testing.T) {
	// WHAT: Standard RSS 2.0 parses with GUID falling back to link.
	// WHY: Half the feeds in the wild omit <guid>; dedup then keys on
	// the link instead.
	data := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Exemple</title>
    <link>https://example.com</link>
    <item>
      <guid>tag:example.com,1</guid>
      <title>Premier</title>
      <link>https://example.com/1</link>
      <description><![CDATA[<p>resume <b>riche</b></p>]]></description>
      <pubDate>Mon, 24 Aug 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Sans guid</title>
      <link>https://example.com/2</link>
    </item>
  </channel>
</rss>`
	f, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Title != "Exemple" || len(f.Items) != 2 {
		t.Fatalf("feed = %+v", f)
	}
	if f.Items[0].GUID != "tag:example.com,1" || f.Items[0].Published == "" {
		t.Errorf("item 0 = %+v", f.Items[0])
	}
	if !strings.Contains(f.Items[0].Summary, "<b>riche</b>") {
		t.Errorf("summary lost markup: %q", f.Items[0].Summary)
	}
	if f.Items[1].GUID != "https://example.com/2" {
		t.Errorf("guid fallback: %q", f.Items[1].GUID)
	}
}

func TestParseAtom(t *testing.T) {
	// WHAT: Atom 1.0 parses, preferring rel=alternate links and
	// falling back from published to updated.
	data := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Journal</title>
  <entry>
    <id>urn:uuid:1</id>
    <title>Billet</title>
    <link rel="self" href="https://example.com/entry/1.atom"/>
    <link rel="alternate" href="https://example.com/entry/1"/>
    <summary>court resume</summary>
    <updated>2026-08-20T08:00:00Z</updated>
  </entry>
</feed>`
	f, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Title != "Journal" || len(f.Items) != 1 {
		t.Fatalf("feed = %+v", f)
	}
	it := f.Items[0]
	if it.Link != "https://example.com/entry/1" {
		t.Errorf("link = %q, want the alternate", it.Link)
	}
	if it.Published != "2026-08-20T08:00:00Z" {
		t.Errorf("published fallback: %q", it.Published)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	// WHAT: Empty and non-feed documents error instead of yielding an
	// empty feed.
	// WHY: "Parsed zero items" and "not a feed" need different
	// operator responses.
	for _, data := range []string{"", "   ", "<html><body>pas un flux</body></html>", "{\"json\": true}"} {
		if _, err := Parse([]byte(data)); err == nil {
			t.Errorf("Parse(%q) succeeded", data)
		}
	}
}
