package sanitize

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parseFragment parses markup as body content and returns the top-level
// nodes. Using fragment parsing keeps html.Render from wrapping the
// output in html/head/body scaffolding.
func parseFragment(markup string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(markup), ctx)
}

// renderNodes serializes nodes back to markup.
func renderNodes(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return ""
		}
	}
	return buf.String()
}

// walkNodes applies fn to every element node in the tree rooted at n,
// including n itself.
func walkNodes(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNodes(c, fn)
	}
}

// filterNodes drops top-level fragment nodes matching match and prunes
// matching descendants from the survivors.
func filterNodes(nodes []*html.Node, match func(*html.Node) bool) []*html.Node {
	kept := nodes[:0]
	for _, n := range nodes {
		if n.Type == html.ElementNode && match(n) {
			continue
		}
		removeMatching(n, match)
		kept = append(kept, n)
	}
	return kept
}

// removeMatching removes every child element (and its subtree) for
// which match returns true, walking depth-first. The root itself is
// left alone; filterNodes handles top-level nodes.
func removeMatching(n *html.Node, match func(*html.Node) bool) {
	var c *html.Node
	for c = n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && match(c) {
			n.RemoveChild(c)
		} else {
			removeMatching(c, match)
		}
		c = next
	}
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// textContent concatenates all text nodes under n.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(m *html.Node) {
		if m.Type == html.TextNode {
			b.WriteString(m.Data)
		}
		for c := m.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
