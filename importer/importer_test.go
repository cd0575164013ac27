package importer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articlePage = `<!DOCTYPE html>
<html><head><title>Mon article — Le Site</title></head>
<body>
<nav><a href="/">Accueil</a></nav>
<article>
<h1>Mon article</h1>
<p>Premier paragraphe avec du <strong>gras</strong>.</p>
<p>Second paragraphe avec un <a href="/suite">lien relatif</a>.</p>
<script>trackPageView()</script>
</article>
<footer>mentions legales</footer>
</body></html>`

func testImporter(t *testing.T) *Importer {
	t.Helper()
	// Loopback fetches fail SSRF validation; tests bypass it.
	return New(nil, WithURLValidator(func(string) error { return nil }))
}

func TestImportArticle(t *testing.T) {
	// WHAT: A full page round trip — fetch, isolate <article>, convert
	// to markdown with the page title attached.
	// WHY: This is the operation editors click; boilerplate in the
	// result means hand-cleaning every import.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	art, err := testImporter(t).Import(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if art.Title != "Mon article — Le Site" {
		t.Errorf("title = %q", art.Title)
	}
	if !strings.Contains(art.Markdown, "# Mon article") {
		t.Errorf("heading lost: %q", art.Markdown)
	}
	if !strings.Contains(art.Markdown, "**gras**") {
		t.Errorf("bold lost: %q", art.Markdown)
	}
	for _, boiler := range []string{"Accueil", "mentions legales", "trackPageView"} {
		if strings.Contains(art.Markdown, boiler) {
			t.Errorf("boilerplate %q in markdown: %q", boiler, art.Markdown)
		}
	}
}

func TestImportRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	if _, err := testImporter(t).Import(context.Background(), srv.URL); err == nil {
		t.Error("PDF accepted")
	}
}

func TestImportEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>vide</title></head><body><nav>menu</nav></body></html>`))
	}))
	defer srv.Close()

	_, err := testImporter(t).Import(context.Background(), srv.URL)
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("err = %v, want ErrNoContent", err)
	}
}

func TestImportErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(404)
	}))
	defer srv.Close()

	if _, err := testImporter(t).Import(context.Background(), srv.URL); err == nil {
		t.Error("404 accepted")
	}
}

func TestExtractMainFallsBackToDensestDiv(t *testing.T) {
	// WHAT: Pages without <article>/<main> fall back to the div with
	// the most paragraph text.
	// WHY: Plenty of CMS themes mark nothing semantic.
	long := strings.Repeat("Beaucoup de texte interessant ici. ", 20)
	page := `<html><body>
<div class="sidebar"><p>court</p></div>
<div class="content"><p>` + long + `</p><p>` + long + `</p></div>
</body></html>`

	_, content, err := extractMain([]byte(page))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "Beaucoup de texte") {
		t.Errorf("content region missed: %q", content)
	}
	if strings.Contains(content, "court") {
		t.Errorf("sidebar included: %q", content)
	}
}
