package images

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"sitekit/config"
	"sitekit/transform"
)

// Transformer rewrites article images into responsive pictures and hands the
// actual resizing to a Materializer.
type Transformer struct {
	resolver     Resolver
	widths       []int
	formats      []string
	sizes        string
	allowUpscale bool
	jpegQuality  map[string]int
	concurrency  int

	materializer *Materializer
	logger       *zap.Logger
}

// NewTransformer creates an image transform from the site configuration
func NewTransformer(cfg *config.Config, materializer *Materializer, logger *zap.Logger) *Transformer {
	return &Transformer{
		resolver: Resolver{
			SourceRoot: cfg.Site.SourceDir,
			OutputRoot: cfg.Site.OutputDir,
			CacheRoot:  cfg.Images.CacheDir,
			Blacklist:  cfg.Images.ExtBlacklist,
		},
		widths:       cfg.Images.Widths,
		formats:      cfg.Images.Formats,
		sizes:        cfg.Images.Sizes,
		allowUpscale: cfg.Images.AllowUpscale,
		jpegQuality:  cfg.Images.JPEGQuality,
		concurrency:  cfg.Images.Concurrency,
		materializer: materializer,
		logger:       logger,
	}
}

func (t *Transformer) Name() string { return "images" }

// replacement is the planned outcome for one <img>
type replacement struct {
	img    *html.Node
	markup *html.Node
	jobs   []Job
}

// Apply plans every image in the article concurrently, then swaps the
// elements in document order. Images that cannot be processed stay as they are.
func (t *Transformer) Apply(ctx context.Context, page *transform.Page) (bool, error) {
	content := page.Content()
	if content == nil {
		return false, nil
	}

	imgs := make([]*html.Node, 0)
	for _, img := range transform.FindAll(content, atom.Img) {
		if transform.IsElement(img.Parent, atom.Picture) {
			continue
		}
		imgs = append(imgs, img)
	}
	if len(imgs) == 0 {
		return false, nil
	}

	plans := make([]*replacement, len(imgs))
	g, gctx := errgroup.WithContext(ctx)
	if t.concurrency > 0 {
		g.SetLimit(t.concurrency)
	}
	for i, img := range imgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plans[i] = t.plan(page.OutputPath, img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	changed := false
	for _, p := range plans {
		if p == nil {
			continue
		}
		transform.Replace(p.img, p.markup)
		for _, job := range p.jobs {
			t.materializer.Enqueue(job)
		}
		changed = true
	}
	return changed, nil
}

// plan computes the markup for one image without touching the document.
// A nil result leaves the image untouched.
func (t *Transformer) plan(outputPath string, img *html.Node) *replacement {
	src, _ := transform.Attr(img, "src")
	log := t.logger.With(zap.String("page", outputPath), zap.String("src", src))

	paths, err := t.resolver.Resolve(outputPath, src)
	switch {
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrNotLocal):
		return nil
	case errors.Is(err, ErrSourceMissing):
		log.Warn("image does not exist", zap.String("path", paths.SourcePath))
		return nil
	case err != nil:
		log.Warn("failed to resolve image", zap.Error(err))
		return nil
	}

	attrs := ReadAttributes(img, t.sizes)

	variant, dual, err := CheckVariant(paths.SourcePath)
	if errors.Is(err, ErrVariantMissing) {
		log.Warn("color-scheme variant does not exist, using a single image",
			zap.String("path", variant.AltSourcePath))
	}

	if !dual {
		md, policy, err := t.stats(paths.SourcePath, paths)
		if err != nil {
			log.Warn("failed to read image", zap.Error(err))
			return nil
		}
		markup, err := GeneratePicture(md, attrs)
		if err != nil {
			log.Warn("failed to build picture", zap.Error(err))
			return nil
		}
		return &replacement{
			img:    img,
			markup: markup,
			jobs:   []Job{{Source: paths.SourcePath, Metadata: md, Policy: policy}},
		}
	}

	lightPath, darkPath := variant.Pair(paths.SourcePath)
	light, lightPolicy, err := t.stats(lightPath, paths)
	if err != nil {
		log.Warn("failed to read light variant", zap.String("path", lightPath), zap.Error(err))
		return nil
	}
	dark, darkPolicy, err := t.stats(darkPath, paths)
	if err != nil {
		log.Warn("failed to read dark variant", zap.String("path", darkPath), zap.Error(err))
		return nil
	}

	markup, err := GeneratePicture(light, attrs)
	if err != nil {
		log.Warn("failed to build picture", zap.Error(err))
		return nil
	}
	return &replacement{
		img:    img,
		markup: AddDarkSources(markup, dark, attrs.Get("sizes")),
		jobs: []Job{
			{Source: lightPath, Metadata: light, Policy: lightPolicy},
			{Source: darkPath, Metadata: dark, Policy: darkPolicy},
		},
	}
}

// stats builds fresh options for sourcePath and computes its metadata
func (t *Transformer) stats(sourcePath string, paths Paths) (Metadata, Policy, error) {
	native, err := Probe(sourcePath)
	if err != nil {
		return Metadata{}, nil, err
	}

	format := CanonicalFormat(extOf(sourcePath))
	if format.MimeType() == "" {
		return Metadata{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	opts := Options{
		URLPath:      paths.URLPath,
		OutputDir:    paths.CacheDir,
		Widths:       append(append([]int(nil), t.widths...), native.X),
		Formats:      OutputFormats(t.formats, format),
		Policy:       PolicyFor(format, t.jpegQuality),
		AllowUpscale: t.allowUpscale,
	}
	return Stats(sourcePath, native, opts), opts.Policy, nil
}
