// CLAUDE:SUMMARY Script extraction/classification over a parsed tree, plus the narrow second-pass stripper.
package sanitize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/encart/policy"
)

// Extraction is the result of pulling scripts out of raw markup. The
// HTML field contains zero script elements; admitted scripts are
// surfaced out-of-band so callers inject them under their own control.
type Extraction struct {
	HTML          string   `json:"html"`
	Scripts       []string `json:"scripts"`
	InlineScripts []string `json:"inlineScripts"`
}

// ExtractScripts removes every <script> element from rawHTML and
// classifies each against pol. Trusted external URLs land in Scripts,
// safe inline bodies in InlineScripts, both in document order;
// everything else is dropped silently. The raw script text never
// reaches the returned HTML.
func ExtractScripts(rawHTML string, pol *policy.Policy) Extraction {
	ex := Extraction{Scripts: []string{}, InlineScripts: []string{}}
	if strings.TrimSpace(rawHTML) == "" {
		return ex
	}
	nodes, err := parseFragment(rawHTML)
	if err != nil {
		// Unparseable input yields no output at all — safer than
		// passing mystery bytes through.
		return ex
	}
	nodes = filterNodes(nodes, func(el *html.Node) bool {
		if el.DataAtom != atom.Script && el.Data != "script" {
			return false
		}
		s := policy.Script{Src: getAttr(el, "src"), Body: textContent(el)}
		switch pol.Classify(s) {
		case policy.ClassTrusted:
			ex.Scripts = append(ex.Scripts, strings.TrimSpace(s.Src))
		case policy.ClassSafeInline:
			ex.InlineScripts = append(ex.InlineScripts, strings.TrimSpace(s.Body))
		}
		return true
	})
	ex.HTML = renderNodes(nodes)
	return ex
}

// unsafeEventAttrs is the enumerated handler set stripped by the second
// pass. Enumerated rather than on\w+ so attribute names that merely
// start with "on" (onetime, online-format vendor attrs) survive.
var unsafeEventAttrs = map[string]bool{
	"onclick": true, "onerror": true, "onload": true, "onmouseover": true,
	"onfocus": true, "onblur": true, "onchange": true, "onsubmit": true,
	"onkeydown": true, "onkeyup": true, "onkeypress": true,
	"onmousedown": true, "onmouseup": true, "onmouseout": true,
	"oninput": true, "onwheel": true, "ontouchstart": true, "ontouchend": true,
	"ondblclick": true, "oncontextmenu": true, "ondrag": true, "ondrop": true,
}

// strippedElements lose their whole subtree in the second pass.
var strippedElements = map[string]bool{
	"object": true, "embed": true, "form": true,
}

// StripUnsafe is the narrow second sanitization pass applied to snippet
// markup after script extraction: drops object/embed/form subtrees,
// the enumerated event-handler attributes, and javascript: /
// data:text/html URL values. It is idempotent.
func StripUnsafe(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}
	nodes, err := parseFragment(markup)
	if err != nil {
		return ""
	}
	nodes = filterNodes(nodes, func(el *html.Node) bool {
		return strippedElements[strings.ToLower(el.Data)]
	})
	for _, n := range nodes {
		walkNodes(n, scrubAttrs)
	}
	return renderNodes(nodes)
}

func scrubAttrs(el *html.Node) {
	kept := el.Attr[:0]
	for _, a := range el.Attr {
		key := strings.ToLower(a.Key)
		if unsafeEventAttrs[key] {
			continue
		}
		if isURLAttr(key) && unsafeURLValue(a.Val) {
			continue
		}
		kept = append(kept, a)
	}
	el.Attr = kept
}

func isURLAttr(key string) bool {
	switch key {
	case "href", "src", "srcset", "action", "formaction", "data", "poster", "cite":
		return true
	}
	return false
}

func unsafeURLValue(val string) bool {
	v := strings.ToLower(strings.TrimSpace(val))
	// Strip embedded whitespace/control chars that browsers tolerate
	// inside scheme names ("java\tscript:").
	v = strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, v)
	if strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:") {
		return true
	}
	if strings.HasPrefix(v, "data:text/html") {
		return true
	}
	return false
}
