package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitekit/cache"
	"sitekit/config"
	"sitekit/images"
	"sitekit/transform"
)

// Builder runs the site generator and post-processes its output
type Builder struct {
	cfg    *config.Config
	store  cache.Store
	logger *zap.Logger
}

// Result summarizes one build
type Result struct {
	BuildID   string
	Pages     transform.Stats
	Images    images.Report
	Published int
	Duration  time.Duration
}

// New creates a builder. A nil store keeps the image cache local.
func New(cfg *config.Config, store cache.Store, logger *zap.Logger) *Builder {
	if store == nil {
		store = cache.None{}
	}
	return &Builder{cfg: cfg, store: store, logger: logger}
}

// Build restores the image cache, runs the generator, post-processes the
// output and saves the cache again. Cache store failures only cost time, so
// they are logged and the build goes on.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	start := time.Now()
	id := uuid.NewString()
	log := b.logger.With(zap.String("build_id", id))
	log.Info("build started", zap.String("output", b.cfg.Site.OutputDir))

	if err := b.store.Restore(ctx); err != nil {
		log.Warn("failed to restore image cache", zap.Error(err))
	}

	if err := b.generate(ctx, log); err != nil {
		return Result{BuildID: id}, err
	}

	result, err := b.process(ctx, log)
	result.BuildID = id
	if err != nil {
		return result, err
	}

	if err := b.store.Save(ctx); err != nil {
		log.Warn("failed to save image cache", zap.Error(err))
	}

	result.Duration = time.Since(start)
	log.Info("build finished",
		zap.Int("pages", result.Pages.Pages),
		zap.Int("changed", result.Pages.Changed),
		zap.Int("images_written", result.Images.Written),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Process post-processes an output tree produced elsewhere
func (b *Builder) Process(ctx context.Context) (Result, error) {
	start := time.Now()
	id := uuid.NewString()
	log := b.logger.With(zap.String("build_id", id))

	result, err := b.process(ctx, log)
	result.BuildID = id
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}
	log.Info("output processed",
		zap.Int("pages", result.Pages.Pages),
		zap.Int("changed", result.Pages.Changed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (b *Builder) process(ctx context.Context, log *zap.Logger) (Result, error) {
	var result Result

	materializer := images.NewMaterializer(b.cfg.Images.Concurrency, log)
	pipeline := b.Pipeline(materializer, log)

	stats, err := pipeline.Run(ctx, b.cfg.Site.OutputDir)
	result.Pages = stats

	// Writes still in flight must land before the cache is published or the
	// process exits, even when the pipeline stopped early.
	report, waitErr := materializer.Wait(context.WithoutCancel(ctx))
	result.Images = report
	if err != nil {
		return result, fmt.Errorf("failed to process output: %w", err)
	}
	if waitErr != nil {
		return result, waitErr
	}

	published, err := Publish(b.cfg.Images.CacheDir, b.cfg.Site.OutputDir)
	result.Published = published
	if err != nil {
		return result, fmt.Errorf("failed to publish images: %w", err)
	}
	log.Debug("images published", zap.Int("files", published))
	return result, nil
}

// Pipeline assembles the enabled transforms in their run order
func (b *Builder) Pipeline(materializer *images.Materializer, log *zap.Logger) *transform.Pipeline {
	t := b.cfg.Transform

	var minifier *transform.Minifier
	if t.Minify || t.Demos {
		minifier = transform.NewMinifier()
	}

	transforms := make([]transform.Transform, 0, 5)
	if t.Demos {
		transforms = append(transforms, transform.Demos{Minifier: minifier})
	}
	if t.Anchors {
		transforms = append(transforms, transform.Anchors{})
	}
	if t.Prism {
		transforms = append(transforms, transform.Prism{})
	}
	if t.Figure {
		transforms = append(transforms, transform.Figure{})
	}
	if t.Images {
		transforms = append(transforms, images.NewTransformer(b.cfg, materializer, log))
	}

	if !t.Minify {
		minifier = nil
	}
	return transform.NewPipeline(log, b.cfg.Site.ContentID, minifier, transforms...)
}

// generate runs the configured static-site generator
func (b *Builder) generate(ctx context.Context, log *zap.Logger) error {
	gen := b.cfg.Generator
	if gen.Command == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, gen.Command, gen.Args...)
	cmd.Dir = gen.Dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Error("generator failed",
			zap.String("command", gen.Command),
			zap.String("output", string(output)))
		return fmt.Errorf("%s failed: %w", gen.Command, err)
	}
	log.Info("generator finished", zap.String("command", gen.Command))
	return nil
}

// Publish copies every generated image from cacheDir into the same place
// below outputDir. Files already there with the same size are left alone.
// It returns the number of files copied.
func Publish(cacheDir, outputDir string) (int, error) {
	if _, err := os.Stat(cacheDir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	copied := 0
	err := filepath.Walk(cacheDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(cacheDir, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(outputDir, relPath)

		if info.IsDir() {
			return os.MkdirAll(dstPath, 0755)
		}
		// temp files of an interrupted write
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		if dst, err := os.Stat(dstPath); err == nil && dst.Size() == info.Size() {
			return nil
		}
		if err := copyFile(path, dstPath, info.Mode()); err != nil {
			return fmt.Errorf("failed to copy %s: %w", relPath, err)
		}
		copied++
		return nil
	})
	return copied, err
}

// copyFile copies a single file
func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}
