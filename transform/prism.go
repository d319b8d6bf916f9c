package transform

import (
	"context"

	"golang.org/x/net/html/atom"
)

// PrismClass is added to every code block so the highlighter styles pick it up
const PrismClass = "prism"

// Prism marks article code blocks for syntax highlighting
type Prism struct{}

func (Prism) Name() string { return "prism" }

func (Prism) Apply(ctx context.Context, page *Page) (bool, error) {
	content := page.Content()
	if content == nil {
		return false, nil
	}

	changed := false
	for _, pre := range FindAll(content, atom.Pre) {
		if AddClass(pre, PrismClass) {
			changed = true
		}
	}
	return changed, nil
}
