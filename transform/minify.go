package transform

import (
	"fmt"

	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"
	mxml "github.com/tdewolff/minify/v2/xml"
)

const (
	mimeHTML = "text/html"
	mimeXML  = "text/xml"
)

// Minifier strips comments and collapses whitespace in HTML and XML output.
// End tags, document tags, quotes and default attribute values are kept so
// the markup stays readable by other tooling.
type Minifier struct {
	m *minify.M
}

// NewMinifier creates a minifier for HTML and XML documents
func NewMinifier() *Minifier {
	m := minify.New()
	m.Add(mimeHTML, &mhtml.Minifier{
		KeepDefaultAttrVals: true,
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
	})
	m.Add(mimeXML, &mxml.Minifier{})
	return &Minifier{m: m}
}

// HTML minifies a complete document or a fragment
func (mf *Minifier) HTML(data []byte) ([]byte, error) {
	out, err := mf.m.Bytes(mimeHTML, data)
	if err != nil {
		return nil, fmt.Errorf("failed to minify html: %w", err)
	}
	return out, nil
}

// XML minifies an XML document such as a feed or sitemap
func (mf *Minifier) XML(data []byte) ([]byte, error) {
	out, err := mf.m.Bytes(mimeXML, data)
	if err != nil {
		return nil, fmt.Errorf("failed to minify xml: %w", err)
	}
	return out, nil
}
