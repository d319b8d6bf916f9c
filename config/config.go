package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the build configuration
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Generator GeneratorConfig `yaml:"generator"`
	Images    ImagesConfig    `yaml:"images"`
	Transform TransformConfig `yaml:"transform"`
	Cache     CacheConfig     `yaml:"cache"`
	Watch     WatchConfig     `yaml:"watch"`
	Ntfy      NtfyConfig      `yaml:"ntfy"`
}

type SiteConfig struct {
	Domain    string `yaml:"domain"`
	SourceDir string `yaml:"source_dir"`
	OutputDir string `yaml:"output_dir"`
	ContentID string `yaml:"content_id"`
}

// GeneratorConfig describes the external static-site generator run before post-processing.
// An empty command means the output tree is produced elsewhere.
type GeneratorConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"dir"`
}

type ImagesConfig struct {
	CacheDir     string   `yaml:"cache_dir"`
	ExtBlacklist []string `yaml:"ext_blacklist"`
	Widths       []int    `yaml:"widths"`
	Sizes        string   `yaml:"sizes"`
	Formats      []string `yaml:"formats"`
	AllowUpscale bool     `yaml:"allow_upscale"`
	Concurrency  int      `yaml:"concurrency"`
	// JPEGQuality overrides the per-format quality used for jpg sources.
	JPEGQuality map[string]int `yaml:"jpeg_quality"`
}

type TransformConfig struct {
	Anchors bool `yaml:"anchors"`
	Prism   bool `yaml:"prism"`
	Figure  bool `yaml:"figure"`
	Demos   bool `yaml:"demos"`
	Images  bool `yaml:"images"`
	Minify  bool `yaml:"minify"`
}

type CacheConfig struct {
	Backend string      `yaml:"backend"`
	Rsync   RsyncConfig `yaml:"rsync"`
	S3      S3Config    `yaml:"s3"`
}

type RsyncConfig struct {
	Target string `yaml:"target"`
	SSHKey string `yaml:"ssh_key"`
}

type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// NtfyConfig controls build notifications sent to an ntfy topic
type NtfyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Server  string `yaml:"server"`
	Topic   string `yaml:"topic"`
}

const (
	CacheNone  = "none"
	CacheRsync = "rsync"
	CacheS3    = "s3"
)

// DefaultSizes is the sizes attribute used when an image does not declare one.
var DefaultSizes = strings.Join([]string{
	"(min-width: 1760px) 828px",
	"(min-width: 1024) calc(75vw - 20px - 2 * 42px)",
	"calc(100vw - 2 * 20px)",
}, ", ")

// Default returns a configuration matching the site layout src/ -> dist/
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			SourceDir: "src",
			OutputDir: "dist",
			ContentID: "article-content",
		},
		Images: ImagesConfig{
			CacheDir:     ".cache/images",
			ExtBlacklist: []string{"svg"},
			Widths:       []int{640, 960, 1280, 1920, 2560},
			Sizes:        DefaultSizes,
			Formats:      []string{"avif", "webp"},
			Concurrency:  runtime.NumCPU(),
		},
		Transform: TransformConfig{
			Anchors: true,
			Prism:   true,
			Figure:  true,
			Demos:   true,
			Images:  true,
			Minify:  true,
		},
		Cache: CacheConfig{Backend: CacheNone},
		Watch: WatchConfig{Debounce: 500 * time.Millisecond},
		Ntfy:  NtfyConfig{Server: "https://ntfy.sh"},
	}
}

// Load reads and parses the configuration file.
// A .env file next to the config is loaded first; variables already set in the
// environment take precedence over it.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides selected fields from SITEKIT_* variables
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("SITEKIT_DOMAIN"); ok {
		c.Site.Domain = v
	}
	if v, ok := os.LookupEnv("SITEKIT_CACHE_BACKEND"); ok {
		c.Cache.Backend = v
	}
	if v, ok := os.LookupEnv("SITEKIT_CACHE_S3_BUCKET"); ok {
		c.Cache.S3.Bucket = v
	}
	if v, ok := os.LookupEnv("SITEKIT_CACHE_RSYNC_TARGET"); ok {
		c.Cache.Rsync.Target = v
	}
	if v, ok := os.LookupEnv("SITEKIT_NTFY_TOPIC"); ok {
		c.Ntfy.Topic = v
		c.Ntfy.Enabled = v != ""
	}
	if v, ok := os.LookupEnv("SITEKIT_IMAGE_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SITEKIT_IMAGE_CONCURRENCY: %w", err)
		}
		c.Images.Concurrency = n
	}
	return nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Site.SourceDir == "" {
		c.Site.SourceDir = d.Site.SourceDir
	}
	if c.Site.OutputDir == "" {
		c.Site.OutputDir = d.Site.OutputDir
	}
	if c.Site.ContentID == "" {
		c.Site.ContentID = d.Site.ContentID
	}
	if c.Images.CacheDir == "" {
		c.Images.CacheDir = d.Images.CacheDir
	}
	if c.Images.Sizes == "" {
		c.Images.Sizes = d.Images.Sizes
	}
	if c.Images.Concurrency <= 0 {
		c.Images.Concurrency = d.Images.Concurrency
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheNone
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = d.Watch.Debounce
	}
	if c.Ntfy.Server == "" {
		c.Ntfy.Server = d.Ntfy.Server
	}
}

// Validate checks if required configuration fields are set
func (c *Config) Validate() error {
	if c.Site.SourceDir == "" {
		return fmt.Errorf("site.source_dir is required")
	}
	if c.Site.OutputDir == "" {
		return fmt.Errorf("site.output_dir is required")
	}
	if c.Images.CacheDir == "" {
		return fmt.Errorf("images.cache_dir is required")
	}
	for _, w := range c.Images.Widths {
		if w <= 0 {
			return fmt.Errorf("images.widths must be positive, got %d", w)
		}
	}
	for _, f := range c.Images.Formats {
		switch strings.ToLower(f) {
		case "avif", "webp", "png", "jpg", "jpeg", "gif":
		default:
			return fmt.Errorf("images.formats: unsupported format %q", f)
		}
	}

	switch c.Cache.Backend {
	case CacheNone:
	case CacheRsync:
		if c.Cache.Rsync.Target == "" {
			return fmt.Errorf("cache.rsync.target is required for the rsync backend")
		}
	case CacheS3:
		if c.Cache.S3.Bucket == "" {
			return fmt.Errorf("cache.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend)
	}

	if c.Ntfy.Enabled && c.Ntfy.Topic == "" {
		return fmt.Errorf("ntfy.topic is required when notifications are enabled")
	}
	return nil
}
