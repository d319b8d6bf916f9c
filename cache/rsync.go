package cache

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"sitekit/config"
)

// runFunc runs an external command and returns its combined output
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// RsyncStore mirrors the cache directory to a local path or an ssh target
// (user@host:path) with rsync.
type RsyncStore struct {
	dir    string
	target string
	sshKey string
	logger *zap.Logger
	run    runFunc
}

// NewRsyncStore creates an rsync store for dir
func NewRsyncStore(dir string, cfg config.RsyncConfig, logger *zap.Logger) *RsyncStore {
	return &RsyncStore{
		dir:    dir,
		target: strings.TrimSuffix(cfg.Target, "/"),
		sshKey: cfg.SSHKey,
		logger: logger,
		run:    runCommand,
	}
}

// Restore pulls the target into the cache directory. A local target that
// does not exist yet means there is nothing to restore.
func (r *RsyncStore) Restore(ctx context.Context) error {
	if !r.remote() {
		if _, err := os.Stat(r.target); os.IsNotExist(err) {
			r.logger.Info("no image cache to restore", zap.String("target", r.target))
			return nil
		}
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := r.sync(ctx, r.target+"/", r.dir+"/"); err != nil {
		return fmt.Errorf("failed to restore image cache: %w", err)
	}
	r.logger.Info("image cache restored", zap.String("target", r.target))
	return nil
}

// Save pushes the cache directory to the target, removing files that are no
// longer in the cache.
func (r *RsyncStore) Save(ctx context.Context) error {
	if _, err := os.Stat(r.dir); os.IsNotExist(err) {
		r.logger.Info("no image cache to save", zap.String("dir", r.dir))
		return nil
	}

	if !r.remote() {
		if err := os.MkdirAll(r.target, 0755); err != nil {
			return fmt.Errorf("failed to create cache target: %w", err)
		}
	}
	if err := r.sync(ctx, r.dir+"/", r.target+"/"); err != nil {
		return fmt.Errorf("failed to save image cache: %w", err)
	}
	r.logger.Info("image cache saved", zap.String("target", r.target))
	return nil
}

func (r *RsyncStore) sync(ctx context.Context, from, to string) error {
	// Trailing slashes copy directory contents rather than the directory itself.
	args := []string{"-a", "--delete"}
	if r.sshKey != "" {
		args = append(args, "-e", fmt.Sprintf("ssh -i %s", r.sshKey))
	}
	args = append(args, from, to)

	output, err := r.run(ctx, "rsync", args...)
	if err != nil {
		return fmt.Errorf("rsync failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// remote reports whether the target is an ssh location
func (r *RsyncStore) remote() bool {
	i := strings.Index(r.target, ":")
	return i > 0 && !strings.Contains(r.target[:i], "/")
}
