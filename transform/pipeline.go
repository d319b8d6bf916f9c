package transform

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Pipeline runs transforms over every page of a rendered site
type Pipeline struct {
	logger     *zap.Logger
	contentID  string
	minifier   *Minifier
	transforms []Transform
}

// Stats summarizes a pipeline run
type Stats struct {
	Pages    int
	Changed  int
	Failed   int
	XMLFiles int
}

// NewPipeline creates a pipeline. A nil minifier disables minification.
func NewPipeline(logger *zap.Logger, contentID string, minifier *Minifier, transforms ...Transform) *Pipeline {
	return &Pipeline{
		logger:     logger,
		contentID:  contentID,
		minifier:   minifier,
		transforms: transforms,
	}
}

// Run processes every .html and .xml file below outputRoot, one page at a time
func (p *Pipeline) Run(ctx context.Context, outputRoot string) (Stats, error) {
	var stats Stats

	err := filepath.WalkDir(outputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".html":
			stats.Pages++
			changed, err := p.ProcessPage(ctx, path)
			if err != nil {
				stats.Failed++
				p.logger.Warn("page left unprocessed", zap.String("path", path), zap.Error(err))
				return nil
			}
			if changed {
				stats.Changed++
			}
		case ".xml":
			if p.minifier == nil {
				return nil
			}
			stats.XMLFiles++
			if err := p.minifyXML(path); err != nil {
				stats.Failed++
				p.logger.Warn("xml left unminified", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to walk %s: %w", outputRoot, err)
	}

	p.logger.Info("pipeline finished",
		zap.Int("pages", stats.Pages),
		zap.Int("changed", stats.Changed),
		zap.Int("failed", stats.Failed),
		zap.Int("xml", stats.XMLFiles))
	return stats, nil
}

// ProcessPage applies all transforms to one page and writes it back when
// anything changed. A failing transform leaves the file untouched.
func (p *Pipeline) ProcessPage(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read page: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("failed to parse page: %w", err)
	}

	page := &Page{OutputPath: path, Doc: doc, ContentID: p.contentID}

	changed := false
	for _, t := range p.transforms {
		c, err := t.Apply(ctx, page)
		if err != nil {
			return false, fmt.Errorf("%s transform failed: %w", t.Name(), err)
		}
		if c {
			p.logger.Debug("transform applied", zap.String("transform", t.Name()), zap.String("path", path))
		}
		changed = changed || c
	}

	if !changed && p.minifier == nil {
		return false, nil
	}

	out := data
	if changed {
		var buf bytes.Buffer
		if err := html.Render(&buf, doc); err != nil {
			return false, fmt.Errorf("failed to render page: %w", err)
		}
		out = buf.Bytes()
	}

	if p.minifier != nil {
		if out, err = p.minifier.HTML(out); err != nil {
			return false, err
		}
	}

	if bytes.Equal(out, data) {
		return false, nil
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return false, fmt.Errorf("failed to write page: %w", err)
	}
	return true, nil
}

func (p *Pipeline) minifyXML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := p.minifier.XML(data)
	if err != nil {
		return err
	}
	if bytes.Equal(out, data) {
		return nil
	}
	return os.WriteFile(path, out, 0644)
}
