package transform

import (
	"context"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const demoCaption = `
	<figcaption>
		<a class="action" href="%s" target="_blank">
			Open in the new tab
			<svg class="action__icon" width="24" height="24" aria-hidden="true">
				<use href="/images/icons.svg#external"></use>
			</svg>
		</a>
	</figcaption>
`

// Demos wraps embedded demo iframes in a figure with a link that opens the
// demo in a new tab.
type Demos struct {
	Minifier *Minifier
}

func (Demos) Name() string { return "demos" }

func (d Demos) Apply(ctx context.Context, page *Page) (bool, error) {
	content := page.Content()
	if content == nil {
		return false, nil
	}

	changed := false
	for _, iframe := range FindAll(content, atom.Iframe) {
		if IsElement(iframe.Parent, atom.Figure) {
			continue
		}

		source, _ := Attr(iframe, "src")
		markup := []byte(fmt.Sprintf(demoCaption, html.EscapeString(source)))
		if d.Minifier != nil {
			var err error
			if markup, err = d.Minifier.HTML(markup); err != nil {
				return changed, err
			}
		}

		nodes, err := ParseFragment(string(markup), atom.Figure)
		if err != nil {
			return changed, fmt.Errorf("failed to parse demo caption: %w", err)
		}

		figure := Element(atom.Figure)
		Replace(iframe, figure)
		figure.AppendChild(iframe)
		for _, n := range nodes {
			if IsBlank(n) {
				continue
			}
			figure.AppendChild(n)
		}
		changed = true
	}
	return changed, nil
}
