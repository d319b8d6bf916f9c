package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitekit/config"
)

// Ntfy sends build notifications to an ntfy topic
type Ntfy struct {
	cfg    config.NtfyConfig
	client *http.Client
	logger *zap.Logger
}

// Message is one ntfy notification
type Message struct {
	Title    string
	Body     string
	Tags     []string
	Priority int
}

// NewNtfy creates a sender. A disabled config makes every send a no-op.
func NewNtfy(cfg config.NtfyConfig, logger *zap.Logger) *Ntfy {
	return &Ntfy{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// BuildFinished reports a successful build
func (n *Ntfy) BuildFinished(ctx context.Context, buildID string, pages, images int, took time.Duration) error {
	return n.Send(ctx, Message{
		Title:    "Site built",
		Body:     fmt.Sprintf("%d pages, %d images written in %s (build %s)", pages, images, took.Round(time.Millisecond), buildID),
		Tags:     []string{"white_check_mark"},
		Priority: 2,
	})
}

// BuildFailed reports a failed build
func (n *Ntfy) BuildFailed(ctx context.Context, buildID string, err error) error {
	return n.Send(ctx, Message{
		Title:    "Site build failed",
		Body:     fmt.Sprintf("build %s: %v", buildID, err),
		Tags:     []string{"rotating_light"},
		Priority: 4,
	})
}

// Send posts msg to the topic, message as body and metadata as headers
func (n *Ntfy) Send(ctx context.Context, msg Message) error {
	if !n.cfg.Enabled {
		return nil
	}

	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(n.cfg.Server, "/"), n.cfg.Topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Title", msg.Title)
	if msg.Priority > 0 {
		req.Header.Set("Priority", fmt.Sprintf("%d", msg.Priority))
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	n.logger.Debug("ntfy notification sent", zap.String("title", msg.Title))
	return nil
}
