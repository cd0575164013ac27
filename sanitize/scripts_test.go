package sanitize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hazyhaar/encart/policy"
)

func TestExtractScriptsRemovesAll(t *testing.T) {
	// WHAT: Every script element leaves the HTML, admitted or not.
	// WHY: The HTML field is injected verbatim downstream; a single
	// surviving script tag defeats the whole pipeline.
	pol := policy.Default()

	in := `<div>avant</div>` +
		`<script src="https://www.googletagmanager.com/gtm.js?id=GTM-X"></script>` +
		`<p>entre</p>` +
		`<script>alert(1)</script>` +
		`<span>apres</span>`
	ex := ExtractScripts(in, pol)

	if strings.Contains(ex.HTML, "<script") {
		t.Fatalf("script element in HTML: %q", ex.HTML)
	}
	if strings.Contains(ex.HTML, "alert") {
		t.Errorf("rejected body leaked into HTML: %q", ex.HTML)
	}
	for _, frag := range []string{"<div>avant</div>", "<p>entre</p>", "<span>apres</span>"} {
		if !strings.Contains(ex.HTML, frag) {
			t.Errorf("lost %q: %q", frag, ex.HTML)
		}
	}
	if len(ex.Scripts) != 1 || ex.Scripts[0] != "https://www.googletagmanager.com/gtm.js?id=GTM-X" {
		t.Errorf("Scripts = %v", ex.Scripts)
	}
	if len(ex.InlineScripts) != 0 {
		t.Errorf("InlineScripts = %v", ex.InlineScripts)
	}
}

func TestExtractScriptsTopLevelScriptOnly(t *testing.T) {
	// WHAT: A snippet that is nothing but one trusted script tag
	// yields empty HTML and one script URL.
	// WHY: Ad tags are routinely saved as bare script elements.
	pol := policy.Default()

	ex := ExtractScripts(`<script src="https://www.googletagmanager.com/gtm.js?id=GTM-ABCD"></script>`, pol)
	if strings.TrimSpace(ex.HTML) != "" {
		t.Errorf("HTML = %q, want empty", ex.HTML)
	}
	if len(ex.Scripts) != 1 || ex.Scripts[0] != "https://www.googletagmanager.com/gtm.js?id=GTM-ABCD" {
		t.Errorf("Scripts = %v", ex.Scripts)
	}
}

func TestExtractScriptsInlineClassification(t *testing.T) {
	// WHAT: Safe inline bodies are admitted in document order; hostile
	// ones vanish entirely.
	// WHY: The inline allow-list is shape-based — order and exactness
	// both matter to the client that re-executes them.
	pol := policy.Default()

	in := `<script>(adsbygoogle = window.adsbygoogle || []).push({});</script>` +
		`<script>document.cookie</script>` +
		`<script>window.dataLayer = window.dataLayer || [];</script>`
	ex := ExtractScripts(in, pol)

	if len(ex.InlineScripts) != 2 {
		t.Fatalf("InlineScripts = %v", ex.InlineScripts)
	}
	if !strings.Contains(ex.InlineScripts[0], "adsbygoogle") || !strings.Contains(ex.InlineScripts[1], "dataLayer") {
		t.Errorf("wrong order or content: %v", ex.InlineScripts)
	}
}

func TestExtractionJSONEmptySlices(t *testing.T) {
	// WHAT: An extraction with nothing admitted marshals with [] for
	// both script fields, never null.
	// WHY: The client iterates these fields without null checks.
	ex := ExtractScripts(`<p>rien</p>`, policy.Default())
	data, err := json.Marshal(ex)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, `"scripts":[]`) || !strings.Contains(s, `"inlineScripts":[]`) {
		t.Errorf("marshal = %s", s)
	}
}

func TestStripUnsafe(t *testing.T) {
	// WHAT: The second pass removes object/embed/form subtrees, the
	// enumerated event handlers, and script-scheme URL values.
	// WHY: Script extraction alone leaves handler attributes behind;
	// this pass closes the rest of the execution vectors.
	cases := []struct {
		name string
		in   string
		bad  []string
		good []string
	}{
		{
			"event handler",
			`<div onclick="alert(1)" class="pub">ok</div>`,
			[]string{"onclick"},
			[]string{`class="pub"`, "ok"},
		},
		{
			"img onerror",
			`<img src="/banniere.png" onerror="alert(1)">`,
			[]string{"onerror"},
			[]string{`src="/banniere.png"`},
		},
		{
			"javascript url",
			`<a href="javascript:alert(1)">clic</a>`,
			[]string{"javascript:"},
			[]string{"clic"},
		},
		{
			"obfuscated scheme",
			"<a href=\"java\tscript:alert(1)\">clic</a>",
			[]string{"script:"},
			[]string{"clic"},
		},
		{
			"data html url",
			`<iframe src="data:text/html,<script>alert(1)</script>"></iframe>`,
			[]string{"data:text/html"},
			nil,
		},
		{
			"object subtree",
			`<p>avant</p><object data="x.swf"><param name="y"></object><p>apres</p>`,
			[]string{"object", "param"},
			[]string{"<p>avant</p>", "<p>apres</p>"},
		},
		{
			"form subtree",
			`<form action="/phish"><input name="mdp"></form><span>ok</span>`,
			[]string{"form", "input"},
			[]string{"<span>ok</span>"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := StripUnsafe(c.in)
			for _, b := range c.bad {
				if strings.Contains(out, b) {
					t.Errorf("%q survived: %q", b, out)
				}
			}
			for _, g := range c.good {
				if !strings.Contains(out, g) {
					t.Errorf("%q lost: %q", g, out)
				}
			}
		})
	}
}

func TestStripUnsafeIdempotent(t *testing.T) {
	// WHAT: Running the pass on its own output is a no-op.
	// WHY: Serve may re-process stored output after edits.
	in := `<div onclick="x()" class="a"><a href="javascript:y()">l</a><img src="/i.png"></div>`
	once := StripUnsafe(in)
	twice := StripUnsafe(once)
	if once != twice {
		t.Errorf("not idempotent:\n once: %q\ntwice: %q", once, twice)
	}
}

func TestStripUnsafeKeepsVendorAttrs(t *testing.T) {
	// WHAT: Attributes that merely start with "on", and data-*
	// attributes, survive the pass.
	// WHY: Ad SDK markup leans on data-ad-client etc.; over-stripping
	// breaks the exact snippets this system exists to serve.
	in := `<ins class="adsbygoogle" data-ad-client="ca-pub-1234" data-ad-slot="5678"></ins>`
	out := StripUnsafe(in)
	for _, want := range []string{"data-ad-client", "data-ad-slot", "adsbygoogle"} {
		if !strings.Contains(out, want) {
			t.Errorf("%q lost: %q", want, out)
		}
	}
}
