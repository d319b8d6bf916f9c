package transform

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/net/html/atom"
)

// Anchors gives every h2-h6 heading in the article an id slugged from its text
type Anchors struct{}

func (Anchors) Name() string { return "anchors" }

func (Anchors) Apply(ctx context.Context, page *Page) (bool, error) {
	content := page.Content()
	if content == nil {
		return false, nil
	}

	changed := false
	for _, heading := range FindAll(content, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6) {
		id := slug.Make(strings.TrimSpace(TextContent(heading)))
		if id == "" {
			continue
		}
		if current, ok := Attr(heading, "id"); ok && current == id {
			continue
		}
		SetAttr(heading, "id", id)
		changed = true
	}
	return changed, nil
}
