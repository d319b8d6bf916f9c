package transform

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FindByID returns the first element under n with the given id attribute
func FindByID(n *html.Node, id string) *html.Node {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if node.Type == html.ElementNode {
			if v, ok := Attr(node, "id"); ok && v == id {
				found = node
				return true
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(n)
	return found
}

// FindAll returns every descendant element of n matching one of the given
// tags, in document order. n itself is not included.
func FindAll(n *html.Node, tags ...atom.Atom) []*html.Node {
	nodes := make([]*html.Node, 0)
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.ElementNode {
				for _, tag := range tags {
					if child.DataAtom == tag {
						nodes = append(nodes, child)
						break
					}
				}
			}
			walk(child)
		}
	}
	walk(n)
	return nodes
}

// IsElement reports whether n is an element of the given tag
func IsElement(n *html.Node, tag atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == tag
}

// Attr returns the value of the attribute key on n
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets key on n, replacing an existing value in place
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// AddClass appends class to the class attribute unless it is already present
func AddClass(n *html.Node, class string) bool {
	current, _ := Attr(n, "class")
	for _, c := range strings.Fields(current) {
		if c == class {
			return false
		}
	}
	if current = strings.TrimSpace(current); current == "" {
		SetAttr(n, "class", class)
	} else {
		SetAttr(n, "class", current+" "+class)
	}
	return true
}

// TextContent concatenates all text nodes under n
func TextContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// Element creates a detached element node
func Element(tag atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: tag,
		Data:     tag.String(),
		Attr:     attrs,
	}
}

// Replace swaps old for replacement in old's parent
func Replace(old, replacement *html.Node) {
	if old.Parent == nil {
		return
	}
	old.Parent.InsertBefore(replacement, old)
	old.Parent.RemoveChild(old)
}

// Detach removes n from its parent, if any
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// ParseFragment parses markup as children of an element of the given tag
func ParseFragment(markup string, context atom.Atom) ([]*html.Node, error) {
	return html.ParseFragment(strings.NewReader(markup), Element(context))
}

// Render serializes n and its subtree
func Render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// IsBlank reports whether n is a text node holding only whitespace
func IsBlank(n *html.Node) bool {
	return n.Type == html.TextNode && strings.TrimSpace(n.Data) == "" ||
		n.Type == html.CommentNode
}
