// CLAUDE:SUMMARY Two-mode content renderer: bluemonday allow-lists, plain-text fallback, external link hardening.
// Package sanitize turns untrusted markup into strings safe to inject
// into a page. It never fails: hostile input yields less output, down
// to the empty string, but no error.
//
// Two trust modes exist. Untrusted is the default for reader-facing
// article and notification content. Trusted widens the element
// allow-list for publisher/admin long-form content; script elements are
// not handled here in either mode — ExtractScripts is the only door
// through which script content leaves this package.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/encart/policy"
)

// looksLikeHTML matches content that starts with a tag. Everything else
// is treated as plain text and never interpreted as markup.
var looksLikeHTML = regexp.MustCompile(`^\s*<[a-zA-Z!/]`)

var blankLines = regexp.MustCompile(`\n\s*\n`)

// Renderer sanitizes content against one policy. Build it once at
// startup and inject it; tests construct isolated instances.
type Renderer struct {
	pol       *policy.Policy
	untrusted *bluemonday.Policy
	trusted   *bluemonday.Policy
}

// NewRenderer builds a Renderer from the given admission policy.
func NewRenderer(pol *policy.Policy) *Renderer {
	return &Renderer{
		pol:       pol,
		untrusted: buildMarkupPolicy(pol, false),
		trusted:   buildMarkupPolicy(pol, true),
	}
}

func buildMarkupPolicy(pol *policy.Policy, trusted bool) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	elements := pol.UntrustedElements
	if trusted {
		elements = append(append([]string(nil), elements...), pol.TrustedExtraElements...)
	}
	p.AllowElements(elements...)
	p.AllowAttrs(pol.UntrustedAttrs...).Globally()
	if trusted {
		p.AllowAttrs("allow", "allowfullscreen", "frameborder", "scrolling",
			"controls", "autoplay", "loop", "muted", "poster", "preload").Globally()
	}
	// Parseable http/https/mailto URLs only — kills javascript: and
	// data: vectors in href/src at the attribute level.
	p.AllowStandardURLs()
	return p
}

// Render produces a safe string from raw content.
//
// Content that does not look like HTML is split on blank lines and
// rendered as escaped paragraphs — the default, safest path. HTML-ish
// content goes through the mode's allow-list; if the sanitized result
// is empty, Render returns "" rather than falling back to plain text,
// so hostile markup can never be reinterpreted as content.
func (r *Renderer) Render(content string, trusted bool) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if !looksLikeHTML.MatchString(content) {
		return renderPlainText(content)
	}
	pol := r.untrusted
	if trusted {
		pol = r.trusted
	}
	out := pol.Sanitize(content)
	if strings.TrimSpace(out) == "" {
		return ""
	}
	return hardenLinks(out)
}

// RenderWithScripts renders trusted content and returns the admitted
// script URLs and safe inline bodies separately. The returned HTML
// contains no script elements.
func (r *Renderer) RenderWithScripts(content string) (string, []string, []string) {
	if !looksLikeHTML.MatchString(content) {
		return r.Render(content, true), nil, nil
	}
	ex := ExtractScripts(content, r.pol)
	return r.Render(ex.HTML, true), ex.Scripts, ex.InlineScripts
}

// renderPlainText escapes text and wraps blank-line-separated blocks in
// paragraph tags. Single newlines inside a block become <br>.
func renderPlainText(content string) string {
	blocks := blankLines.Split(strings.ReplaceAll(content, "\r\n", "\n"), -1)
	var b strings.Builder
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("<p>")
		lines := strings.Split(block, "\n")
		for i, line := range lines {
			if i > 0 {
				b.WriteString("<br>")
			}
			b.WriteString(html.EscapeString(strings.TrimSpace(line)))
		}
		b.WriteString("</p>")
	}
	return b.String()
}

// hardenLinks forces absolute external links to open in a new browsing
// context with rel="noopener noreferrer" (tab-napping prevention).
// Idempotent: re-running on its own output changes nothing.
func hardenLinks(markup string) string {
	nodes, err := parseFragment(markup)
	if err != nil {
		// Already-sanitized markup that still fails to parse is not
		// worth guessing about.
		return markup
	}
	for _, n := range nodes {
		walkNodes(n, func(el *html.Node) {
			if el.Data != "a" {
				return
			}
			href := getAttr(el, "href")
			if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
				return
			}
			setAttr(el, "target", "_blank")
			setAttr(el, "rel", "noopener noreferrer")
		})
	}
	return renderNodes(nodes)
}
