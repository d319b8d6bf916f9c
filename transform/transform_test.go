package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func newPage(t *testing.T, body string) *Page {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<!DOCTYPE html><html><head></head><body>" + body + "</body></html>"))
	require.NoError(t, err)
	return &Page{OutputPath: "dist/articles/test/index.html", Doc: doc, ContentID: "article-content"}
}

func renderContent(t *testing.T, page *Page) string {
	t.Helper()
	content := page.Content()
	require.NotNil(t, content)
	var sb strings.Builder
	for child := content.FirstChild; child != nil; child = child.NextSibling {
		out, err := Render(child)
		require.NoError(t, err)
		sb.WriteString(out)
	}
	return sb.String()
}

func TestTransformsWithoutContainer(t *testing.T) {
	transforms := []Transform{Anchors{}, Prism{}, Figure{}, Demos{}}

	for _, tr := range transforms {
		t.Run(tr.Name(), func(t *testing.T) {
			page := newPage(t, `<main><h2>Title</h2><pre>x</pre><p><img src="a.png"></p><iframe src="/demo/"></iframe></main>`)
			changed, err := tr.Apply(context.Background(), page)
			require.NoError(t, err)
			assert.False(t, changed)
		})
	}
}

func TestAnchors(t *testing.T) {
	page := newPage(t, `<h2>Outside</h2><div id="article-content"><h1>Top</h1><h2>Hello, World!</h2><h3> Nested <code>code</code> heading </h3><h6>Why Go?</h6></div>`)

	changed, err := Anchors{}.Apply(context.Background(), page)
	require.NoError(t, err)
	assert.True(t, changed)

	out := renderContent(t, page)
	assert.Contains(t, out, `<h1>Top</h1>`)
	assert.Contains(t, out, `<h2 id="hello-world">`)
	assert.Contains(t, out, `<h3 id="nested-code-heading">`)
	assert.Contains(t, out, `<h6 id="why-go">`)

	rendered, err := Render(page.Doc)
	require.NoError(t, err)
	assert.Contains(t, rendered, `<h2>Outside</h2>`, "headings outside the article are untouched")

	changed, err = Anchors{}.Apply(context.Background(), page)
	require.NoError(t, err)
	assert.False(t, changed, "second run should be a no-op")
}

func TestPrism(t *testing.T) {
	page := newPage(t, `<div id="article-content"><pre><code>a</code></pre><pre class="language-go">b</pre><pre class="prism">c</pre></div>`)

	changed, err := Prism{}.Apply(context.Background(), page)
	require.NoError(t, err)
	assert.True(t, changed)

	out := renderContent(t, page)
	assert.Contains(t, out, `<pre class="prism"><code>a</code></pre>`)
	assert.Contains(t, out, `<pre class="language-go prism">b</pre>`)
	assert.Equal(t, 3, strings.Count(out, "prism"), "existing class must not be duplicated")
}

func TestFigure(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		changed  bool
		contains []string
		excludes []string
	}{
		{
			name:    "image with caption",
			body:    `<p><img src="a.png" alt="A"> Caption with <a href="/x">link</a></p>`,
			changed: true,
			contains: []string{
				`<figure><img src="a.png" alt="A" loading="lazy" decoding="async"/><figcaption> Caption with <a href="/x">link</a></figcaption></figure>`,
			},
			excludes: []string{"<p>"},
		},
		{
			name:     "image alone",
			body:     `<p><img src="a.png"></p>`,
			changed:  true,
			contains: []string{`<figure><img src="a.png" loading="lazy" decoding="async"/></figure>`},
			excludes: []string{"figcaption"},
		},
		{
			name:     "image after text stays inline",
			body:     `<p>Inline <img src="a.png"> image</p>`,
			changed:  false,
			contains: []string{`<p>Inline <img src="a.png"/> image</p>`},
			excludes: []string{"<figure>", "loading="},
		},
		{
			name:     "image after inline element stays inline",
			body:     `<p><em>See</em> <img src="a.png"></p>`,
			changed:  false,
			contains: []string{`<p><em>See</em> <img src="a.png"/></p>`},
			excludes: []string{"<figure>"},
		},
		{
			name:     "image outside paragraph",
			body:     `<div><img src="a.png"></div>`,
			changed:  false,
			contains: []string{`<div><img src="a.png"/></div>`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newPage(t, `<article id="article-content">`+tt.body+`</article>`)
			changed, err := Figure{}.Apply(context.Background(), page)
			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)

			out := renderContent(t, page)
			for _, c := range tt.contains {
				assert.Contains(t, out, c)
			}
			for _, e := range tt.excludes {
				assert.NotContains(t, out, e)
			}
		})
	}
}

func TestDemos(t *testing.T) {
	page := newPage(t, `<div id="article-content"><iframe src="https://demo.example/a?x=1&amp;y=2" title="Demo"></iframe></div>`)

	d := Demos{Minifier: NewMinifier()}
	changed, err := d.Apply(context.Background(), page)
	require.NoError(t, err)
	assert.True(t, changed)

	out := renderContent(t, page)
	assert.True(t, strings.HasPrefix(out, `<figure><iframe src="https://demo.example/a?x=1&amp;y=2" title="Demo"></iframe><figcaption>`), out)
	assert.Contains(t, out, `<a class="action" href="https://demo.example/a?x=1&amp;y=2" target="_blank">`)
	assert.Contains(t, out, `Open in the new tab`)
	assert.Contains(t, out, `icons.svg#external`)

	changed, err = d.Apply(context.Background(), page)
	require.NoError(t, err)
	assert.False(t, changed, "wrapped iframes are not wrapped again")
}
