// Package filters holds the template helpers the generator calls into:
// URL absolutization for feeds and date formatting.
package filters

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sitekit/config"
	"sitekit/transform"
)

// Filters are bound to one site configuration
type Filters struct {
	domain *url.URL
}

// New creates filters for the given site. The domain must be an absolute URL.
func New(site config.SiteConfig) (*Filters, error) {
	domain, err := url.Parse(strings.TrimSuffix(site.Domain, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid domain %q: %w", site.Domain, err)
	}
	if domain.Scheme == "" || domain.Host == "" {
		return nil, fmt.Errorf("domain %q must be an absolute URL", site.Domain)
	}
	return &Filters{domain: domain}, nil
}

var linkAttrs = map[string]bool{"src": true, "href": true}

// Absolute rewrites relative src and href attributes in content so the
// markup works outside the page, e.g. in a feed. Page-relative links resolve
// against domain+pageURL, root-relative ones against the domain.
func (f *Filters) Absolute(content, pageURL string) (string, error) {
	base, err := f.domain.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}

	nodes, err := transform.ParseFragment(content, atom.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse content: %w", err)
	}

	var sb strings.Builder
	for _, n := range nodes {
		rewrite(n, base)
		if err := html.Render(&sb, n); err != nil {
			return "", fmt.Errorf("failed to render content: %w", err)
		}
	}
	return sb.String(), nil
}

func rewrite(n *html.Node, base *url.URL) {
	if n.Type == html.ElementNode {
		for i, a := range n.Attr {
			if a.Namespace != "" || !linkAttrs[a.Key] {
				continue
			}
			n.Attr[i].Val = resolve(base, a.Val)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		rewrite(child, base)
	}
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || strings.HasPrefix(ref, "//") {
		return ref
	}
	return base.ResolveReference(u).String()
}

// DateLong formats t like "January 2, 2006"
func DateLong(t time.Time) string {
	return t.Format("January 2, 2006")
}

// DateShort formats t like "January 2"
func DateShort(t time.Time) string {
	return t.Format("January 2")
}

// DateISO returns the UTC calendar date of t
func DateISO(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
