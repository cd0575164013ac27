// CLAUDE:SUMMARY Central admission policy: trusted script domains, safe inline patterns, tag/attribute allow-lists.
// Package policy is the single source of truth for what third-party
// content is admitted into rendered pages. Both the content renderer
// and the snippet-serving endpoint consume the same Policy instance,
// so the domain and pattern lists cannot drift apart.
package policy

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Class is the admission verdict for a single script.
type Class int

const (
	// ClassRejected means the script is dropped: not served, not executed.
	ClassRejected Class = iota
	// ClassTrusted means an external script whose host is allow-listed.
	ClassTrusted
	// ClassSafeInline means an inline script matching a known SDK shape.
	ClassSafeInline
)

func (c Class) String() string {
	switch c {
	case ClassTrusted:
		return "trusted"
	case ClassSafeInline:
		return "safe_inline"
	default:
		return "rejected"
	}
}

// Script is one script element found in raw markup, before any verdict.
type Script struct {
	Src  string // external URL; empty for inline scripts
	Body string // inline text; empty for external scripts
}

// Policy holds the admission rules. Construct with Default() and inject
// it where needed; do not share mutable instances across reconfigures.
type Policy struct {
	// TrustedDomains are hostname suffixes allowed as <script src> origins.
	// A URL host matches when it equals the entry or ends in "." + entry.
	TrustedDomains []string

	// SafeInlinePatterns describe the shapes of known ad/analytics SDK
	// bootstrap code. An inline script survives only if its trimmed text
	// matches one of these in full.
	SafeInlinePatterns []*regexp.Regexp

	// UntrustedElements / UntrustedAttrs bound reader-facing content.
	UntrustedElements []string
	UntrustedAttrs    []string

	// TrustedExtraElements widen the allow-list for publisher/admin
	// long-form content (iframes, media). Scripts are never handled by
	// the markup sanitizer in either mode.
	TrustedExtraElements []string
}

// defaultTrustedDomains is the versioned built-in allow-list: ad
// networks, analytics, and social embed hosts. Suffix semantics — any
// subdomain of an entry is trusted.
var defaultTrustedDomains = []string{
	"googlesyndication.com",
	"googletagmanager.com",
	"google-analytics.com",
	"googleadservices.com",
	"doubleclick.net",
	"gstatic.com",
	"adsbygoogle.com",
	"media.net",
	"taboola.com",
	"outbrain.com",
	"plausible.io",
	"matomo.cloud",
	"platform.twitter.com",
	"connect.facebook.net",
	"instagram.com",
	"youtube.com",
	"player.vimeo.com",
}

// gtagArgs matches one gtag(...) argument list: no statements, no
// nested calls except the literal new Date() the GTM snippet uses.
const gtagArgs = `[^;()]*(?:new\s+Date\s*\(\s*\)[^;()]*)*`

// defaultSafeInlinePatterns match the bootstrap shapes emitted by the
// SDKs above. Each pattern anchors the whole (trimmed) script body —
// partial matches never count. Interiors exclude `;(){}` so a payload
// cannot hide between safe-looking bookends (`var x = {}; evil();
// var y = {}`) or execute inside an argument list (`gtag(alert(1))`).
var defaultSafeInlinePatterns = []*regexp.Regexp{
	// var x = {...}; / let x = ... / const x = ... / window.x = {...}
	regexp.MustCompile(`(?s)^\s*((var|let|const)\s+|window\.)[\w.$]+\s*=\s*[\[{][^;(){}]*[\]}]\s*;?\s*$`),
	// (adsbygoogle = window.adsbygoogle || []).push({...});
	regexp.MustCompile(`(?s)^\s*\(\s*adsbygoogle\s*=\s*window\.adsbygoogle\s*\|\|\s*\[\s*\]\s*\)\s*\.push\s*\(\s*\{[^;(){}]*\}\s*\)\s*;?\s*$`),
	// queue push: somequeue.push({...}) or somequeue.push(arguments)
	regexp.MustCompile(`(?s)^\s*[\w.$]+\.push\s*\(\s*(\{[^;(){}]*\}|arguments)\s*\)\s*;?\s*$`),
	// dataLayer bootstrap: window.dataLayer = window.dataLayer || [];
	// optionally followed by the canonical gtag function and gtag(...)
	// calls. The function body is pinned to dataLayer.push(arguments);
	// any other body would execute on the first gtag call.
	regexp.MustCompile(`(?s)^\s*window\.dataLayer\s*=\s*window\.dataLayer\s*\|\|\s*\[\s*\]\s*;?(\s*function\s+gtag\s*\(\s*\)\s*\{\s*dataLayer\.push\s*\(\s*arguments\s*\)\s*;?\s*\}\s*;?)?(\s*gtag\s*\(` + gtagArgs + `\)\s*;?)*\s*$`),
	// bare gtag call sequence: gtag('js', new Date()); gtag('config', 'G-XXX');
	regexp.MustCompile(`(?s)^\s*(gtag\s*\(` + gtagArgs + `\)\s*;?\s*)+$`),
	// dotted method-call sequence: someSDK.init('...', 123); — a bare
	// call like alert(1) deliberately does not match.
	regexp.MustCompile(`(?s)^\s*([\w$]+(\.[\w$]+)+\s*\([^;(){}]*\)\s*;?\s*)+$`),
}

var defaultUntrustedElements = []string{
	"h1", "h2", "h3", "h4", "h5", "h6",
	"p", "br", "hr", "b", "strong", "i", "em", "u", "s", "del", "ins",
	"sub", "sup", "small", "mark", "abbr", "cite", "q", "code", "pre",
	"kbd", "samp", "var", "blockquote",
	"ul", "ol", "li", "dl", "dt", "dd",
	"a", "img", "picture", "source", "figure", "figcaption",
	"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
	"div", "span", "section", "article", "aside", "header", "footer",
	"details", "summary",
}

var defaultUntrustedAttrs = []string{
	"href", "src", "srcset", "alt", "title", "width", "height",
	"colspan", "rowspan", "align", "class", "id", "lang", "dir",
	"loading", "media", "type", "datetime", "cite", "start", "reversed",
	"target", "rel",
}

// No object/embed here: the snippet path strips those subtrees, and the
// two surfaces must agree on what a trusted author may embed.
var defaultTrustedExtraElements = []string{
	"iframe", "video", "audio", "track",
}

// Default returns the built-in policy. Each call returns a fresh value
// so callers may append overrides without affecting others.
func Default() *Policy {
	return &Policy{
		TrustedDomains:       append([]string(nil), defaultTrustedDomains...),
		SafeInlinePatterns:   defaultSafeInlinePatterns,
		UntrustedElements:    append([]string(nil), defaultUntrustedElements...),
		UntrustedAttrs:       append([]string(nil), defaultUntrustedAttrs...),
		TrustedExtraElements: append([]string(nil), defaultTrustedExtraElements...),
	}
}

// TrustedScriptURL reports whether raw is an http(s) URL whose hostname
// matches a trusted domain by suffix. Unparseable URLs, other schemes,
// and protocol-relative forms without a resolvable host are untrusted.
func (p *Policy) TrustedScriptURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	// Protocol-relative src ("//host/path") is common in older ad tags.
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, d := range p.TrustedDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// SafeInline reports whether an inline script body matches one of the
// known SDK bootstrap shapes. Arbitrary JavaScript never matches,
// regardless of where the snippet came from.
func (p *Policy) SafeInline(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}
	// Hard rejections before shape matching: anything that smells like
	// DOM or cookie access is not SDK bootstrap code.
	lower := strings.ToLower(trimmed)
	for _, bad := range []string{
		"document.", "eval(", "innerhtml", "localstorage", "sessionstorage",
		"settimeout", "setinterval", "fetch(", "xmlhttprequest",
		"window.location", "location.href", "location.assign", "location.replace",
		"window.open", "navigator.", "<script",
		"import(", "new image", "atob(", "websocket",
	} {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	for _, pat := range p.SafeInlinePatterns {
		if pat.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// Classify returns the admission verdict for a script element. External
// scripts are judged by origin, inline scripts by shape; a script with
// both src and body is judged as external (browsers ignore the body).
func (p *Policy) Classify(s Script) Class {
	if s.Src != "" {
		if p.TrustedScriptURL(s.Src) {
			return ClassTrusted
		}
		return ClassRejected
	}
	if p.SafeInline(s.Body) {
		return ClassSafeInline
	}
	return ClassRejected
}

// fileOverride is the YAML shape for site-level policy adjustments.
// Only domains can be adjusted; inline patterns stay compiled-in.
type fileOverride struct {
	TrustedDomains struct {
		Add    []string `yaml:"add"`
		Remove []string `yaml:"remove"`
	} `yaml:"trusted_domains"`
}

// LoadYAML applies a site override file to the policy. A missing file
// is not an error; a malformed one is.
func (p *Policy) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("policy: read %s: %w", path, err)
	}
	var ov fileOverride
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return fmt.Errorf("policy: parse %s: %w", path, err)
	}
	removed := make(map[string]bool, len(ov.TrustedDomains.Remove))
	for _, d := range ov.TrustedDomains.Remove {
		removed[strings.ToLower(strings.TrimSpace(d))] = true
	}
	var domains []string
	for _, d := range p.TrustedDomains {
		if !removed[strings.ToLower(d)] {
			domains = append(domains, d)
		}
	}
	for _, d := range ov.TrustedDomains.Add {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	p.TrustedDomains = domains
	return nil
}
