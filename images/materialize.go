package images

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Job asks for every file described by Metadata to be written for Source
type Job struct {
	Source   string
	Metadata Metadata
	Policy   Policy
}

// Report counts the outcome of materialized files
type Report struct {
	Written int
	Reused  int
	Failed  int
}

// Materializer writes resized files in the background on a bounded pool.
// Enqueue never blocks; Wait blocks until every enqueued job has finished.
type Materializer struct {
	logger *zap.Logger
	sem    chan struct{}
	wg     sync.WaitGroup

	mu   sync.Mutex
	seen map[string]bool

	written atomic.Int64
	reused  atomic.Int64
	failed  atomic.Int64
}

// NewMaterializer creates a materializer running at most concurrency jobs at once
func NewMaterializer(concurrency int, logger *zap.Logger) *Materializer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Materializer{
		logger: logger,
		sem:    make(chan struct{}, concurrency),
		seen:   make(map[string]bool),
	}
}

// Enqueue schedules job. A source already enqueued in this run is skipped.
func (m *Materializer) Enqueue(job Job) {
	m.mu.Lock()
	if m.seen[job.Source] {
		m.mu.Unlock()
		return
	}
	m.seen[job.Source] = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sem <- struct{}{}
		defer func() { <-m.sem }()

		r := m.materialize(job)
		m.written.Add(int64(r.Written))
		m.reused.Add(int64(r.Reused))
		m.failed.Add(int64(r.Failed))
	}()
}

// Wait blocks until all enqueued jobs are done or ctx is cancelled
func (m *Materializer) Wait(ctx context.Context) (Report, error) {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return m.report(), ctx.Err()
	}

	r := m.report()
	m.logger.Info("images materialized",
		zap.Int("written", r.Written),
		zap.Int("reused", r.Reused),
		zap.Int("failed", r.Failed))
	return r, nil
}

func (m *Materializer) report() Report {
	return Report{
		Written: int(m.written.Load()),
		Reused:  int(m.reused.Load()),
		Failed:  int(m.failed.Load()),
	}
}

// Materialize writes the files for job synchronously
func (m *Materializer) Materialize(job Job) Report {
	return m.materialize(job)
}

func (m *Materializer) materialize(job Job) Report {
	var r Report

	pending := make([]Descriptor, 0)
	for _, d := range job.Metadata.Descriptors() {
		if info, err := os.Stat(d.OutputPath); err == nil && info.Size() > 0 {
			r.Reused++
			continue
		}
		pending = append(pending, d)
	}
	if len(pending) == 0 {
		return r
	}

	src, err := imaging.Open(job.Source)
	if err != nil {
		m.logger.Warn("failed to decode image", zap.String("path", job.Source), zap.Error(err))
		r.Failed += len(pending)
		return r
	}

	// Resize once per width and reuse it for every format.
	resized := make(map[int]image.Image)
	for _, d := range pending {
		img, ok := resized[d.Width]
		if !ok {
			img = Resize(src, d.Width, d.Height)
			resized[d.Width] = img
		}

		if err := writeAtomic(d.OutputPath, func(f *os.File) error {
			return Encode(f, img, d.Format, job.Policy[d.Format])
		}); err != nil {
			m.logger.Warn("failed to write resized image",
				zap.String("source", job.Source),
				zap.String("path", d.OutputPath),
				zap.Error(err))
			r.Failed++
			continue
		}
		m.logger.Debug("resized image written", zap.String("path", d.OutputPath))
		r.Written++
	}
	return r
}

func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
