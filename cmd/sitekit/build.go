package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sitekit/builder"
	"sitekit/cache"
	"sitekit/config"
	"sitekit/notify"
	"sitekit/watcher"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Restore the image cache, run the generator, post-process and save the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := newBuilder(ctx, cfg)
		if err != nil {
			return err
		}
		return build(ctx, b, notify.NewNtfy(cfg.Ntfy, logger))
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Post-process an already generated output tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := newBuilder(ctx, cfg)
		if err != nil {
			return err
		}
		_, err = b.Process(ctx)
		return err
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build, then rebuild whenever the source tree changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b := builder.New(cfg, nil, logger)
		ntfy := notify.NewNtfy(cfg.Ntfy, logger)
		if err := build(ctx, b, ntfy); err != nil {
			logger.Error("initial build failed", zap.Error(err))
		}

		w, err := watcher.NewWatcher(cfg.Site.SourceDir, cfg.Watch.Debounce, func(ctx context.Context) error {
			return build(ctx, b, ntfy)
		}, logger)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		logger.Info("watching for changes, press Ctrl+C to stop", zap.String("source", cfg.Site.SourceDir))

		go func() {
			for event := range w.Events() {
				logger.Debug("event", zap.Stringer("type", event.Type), zap.String("path", event.FilePath))
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down")
		return w.Stop()
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Move the image cache to or from the configured store",
}

var cacheRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Fill the local image cache from the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newStore(cmd.Context())
		if err != nil {
			return err
		}
		return store.Restore(cmd.Context())
	},
}

var cacheSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Copy the local image cache into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newStore(cmd.Context())
		if err != nil {
			return err
		}
		return store.Save(cmd.Context())
	},
}

func init() {
	cacheCmd.AddCommand(cacheRestoreCmd, cacheSaveCmd)
}

func newStore(ctx context.Context) (cache.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.New(ctx, cfg, logger)
}

// build runs one build and reports its outcome. A failed notification never
// fails the build.
func build(ctx context.Context, b *builder.Builder, ntfy *notify.Ntfy) error {
	result, err := b.Build(ctx)
	if err != nil {
		if nerr := ntfy.BuildFailed(ctx, result.BuildID, err); nerr != nil {
			logger.Warn("failed to send notification", zap.Error(nerr))
		}
		return err
	}
	if nerr := ntfy.BuildFinished(ctx, result.BuildID, result.Pages.Pages, result.Images.Written, result.Duration); nerr != nil {
		logger.Warn("failed to send notification", zap.Error(nerr))
	}
	return nil
}

func newBuilder(ctx context.Context, cfg *config.Config) (*builder.Builder, error) {
	store, err := cache.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return builder.New(cfg, store, logger), nil
}
