package transform

import (
	"context"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Figure turns a paragraph that starts with an image into a figure. Whatever
// follows the image in the paragraph becomes the caption.
type Figure struct{}

func (Figure) Name() string { return "figure" }

func (Figure) Apply(ctx context.Context, page *Page) (bool, error) {
	content := page.Content()
	if content == nil {
		return false, nil
	}

	changed := false
	for _, img := range FindAll(content, atom.Img) {
		paragraph := img.Parent
		if !IsElement(paragraph, atom.P) || !leadsParagraph(img) {
			continue
		}

		SetAttr(img, "loading", "lazy")
		SetAttr(img, "decoding", "async")

		figure := Element(atom.Figure)
		Replace(paragraph, figure)

		// Collect the caption before moving the image so the sibling chain stays intact.
		rest := make([]*html.Node, 0)
		for sibling := img.NextSibling; sibling != nil; sibling = sibling.NextSibling {
			rest = append(rest, sibling)
		}

		Detach(img)
		figure.AppendChild(img)

		if hasSignificant(rest) {
			caption := Element(atom.Figcaption)
			for _, n := range rest {
				Detach(n)
				caption.AppendChild(n)
			}
			figure.AppendChild(caption)
		}
		changed = true
	}
	return changed, nil
}

// leadsParagraph reports whether nothing but whitespace precedes img
func leadsParagraph(img *html.Node) bool {
	for prev := img.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if !IsBlank(prev) {
			return false
		}
	}
	return true
}

func hasSignificant(nodes []*html.Node) bool {
	for _, n := range nodes {
		if !IsBlank(n) {
			return true
		}
	}
	return false
}
