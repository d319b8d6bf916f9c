package transform

import (
	"context"

	"golang.org/x/net/html"
)

// Page is one rendered HTML document handed to the transforms
type Page struct {
	// OutputPath is the page location including the output root,
	// e.g. dist/articles/foo/index.html.
	OutputPath string
	Doc        *html.Node
	ContentID  string
}

// Content returns the article content container, or nil when the page has none
func (p *Page) Content() *html.Node {
	if p.Doc == nil {
		return nil
	}
	return FindByID(p.Doc, p.ContentID)
}

// Transform mutates a page in place and reports whether anything changed
type Transform interface {
	Name() string
	Apply(ctx context.Context, page *Page) (bool, error)
}
