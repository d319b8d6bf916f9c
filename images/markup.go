package images

import (
	"fmt"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sitekit/transform"
)

// Attributes are the attributes read from the original <img>, in order
type Attributes []html.Attribute

// regenerated attributes are always derived from the metadata
var regenerated = map[string]bool{
	"src":    true,
	"srcset": true,
	"sizes":  true,
	"width":  true,
	"height": true,
}

// ReadAttributes copies the attributes of n and fills in sizes when absent.
// An empty sizes counts as absent.
func ReadAttributes(n *html.Node, defaultSizes string) Attributes {
	attrs := make(Attributes, 0, len(n.Attr)+1)
	hasSizes := false
	for _, a := range n.Attr {
		if a.Key == "sizes" {
			if a.Val == "" {
				continue
			}
			hasSizes = true
		}
		attrs = append(attrs, a)
	}
	if !hasSizes && defaultSizes != "" {
		attrs = append(attrs, html.Attribute{Key: "sizes", Val: defaultSizes})
	}
	return attrs
}

// Get returns the value of key
func (a Attributes) Get(key string) string {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// GeneratePicture builds the responsive markup for md: a <picture> with a
// <source> per non-fallback format and an <img> for the fallback format. A
// single format yields a bare <img>.
func GeneratePicture(md Metadata, attrs Attributes) (*html.Node, error) {
	if len(md.Formats) == 0 {
		return nil, fmt.Errorf("no formats in metadata")
	}
	fallback := md.Formats[len(md.Formats)-1]
	fallbackEntries := md.Entries[fallback]
	if len(fallbackEntries) == 0 {
		return nil, fmt.Errorf("no %s output in metadata", fallback)
	}

	sizes := attrs.Get("sizes")
	smallest := fallbackEntries[0]
	largest := fallbackEntries[len(fallbackEntries)-1]

	img := transform.Element(atom.Img)
	for _, a := range attrs {
		if !regenerated[a.Key] {
			img.Attr = append(img.Attr, a)
		}
	}
	img.Attr = append(img.Attr, html.Attribute{Key: "src", Val: smallest.URL})
	if len(fallbackEntries) > 1 {
		img.Attr = append(img.Attr, html.Attribute{Key: "srcset", Val: md.Srcset(fallback)})
		if sizes != "" {
			img.Attr = append(img.Attr, html.Attribute{Key: "sizes", Val: sizes})
		}
	}
	img.Attr = append(img.Attr,
		html.Attribute{Key: "width", Val: strconv.Itoa(largest.Width)},
		html.Attribute{Key: "height", Val: strconv.Itoa(largest.Height)},
	)

	if len(md.Formats) == 1 {
		return img, nil
	}

	picture := transform.Element(atom.Picture)
	for _, f := range md.Formats[:len(md.Formats)-1] {
		if len(md.Entries[f]) == 0 {
			continue
		}
		picture.AppendChild(source(md, f, sizes, ""))
	}
	picture.AppendChild(img)
	return picture, nil
}

// AddDarkSources prepends a media-gated <source> for every format of dark to
// picture, so a browser preferring a dark scheme matches them before the
// light sources. A bare <img> is wrapped in a <picture> first.
func AddDarkSources(markup *html.Node, dark Metadata, sizes string) *html.Node {
	picture := markup
	if !transform.IsElement(markup, atom.Picture) {
		picture = transform.Element(atom.Picture)
		picture.AppendChild(markup)
	}

	anchor := picture.FirstChild
	for _, f := range dark.Formats {
		if len(dark.Entries[f]) == 0 {
			continue
		}
		picture.InsertBefore(source(dark, f, sizes, DarkMedia), anchor)
	}
	return picture
}

func source(md Metadata, f Format, sizes, media string) *html.Node {
	s := transform.Element(atom.Source)
	if media != "" {
		s.Attr = append(s.Attr, html.Attribute{Key: "media", Val: media})
	}
	if t := f.MimeType(); t != "" {
		s.Attr = append(s.Attr, html.Attribute{Key: "type", Val: t})
	}
	s.Attr = append(s.Attr, html.Attribute{Key: "srcset", Val: md.Srcset(f)})
	if sizes != "" {
		s.Attr = append(s.Attr, html.Attribute{Key: "sizes", Val: sizes})
	}
	return s
}
