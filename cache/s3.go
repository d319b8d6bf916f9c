package cache

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"sitekit/config"
)

// S3API is the part of the S3 client the store uses
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the cache as objects under a bucket prefix. Generated file
// names never change for the same input, so objects are only transferred
// when missing on the other side.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	dir    string
	logger *zap.Logger
}

// NewS3Store creates an S3 store using the default AWS credential chain
func NewS3Store(ctx context.Context, dir string, cfg config.S3Config, logger *zap.Logger) (*S3Store, error) {
	opts := make([]func(*awsconfig.LoadOptions) error, 0, 1)
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3StoreWithClient(client, dir, cfg, logger), nil
}

// NewS3StoreWithClient creates an S3 store on an existing client
func NewS3StoreWithClient(client S3API, dir string, cfg config.S3Config, logger *zap.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		dir:    dir,
		logger: logger,
	}
}

// Restore downloads every object not yet present in the cache directory
func (s *S3Store) Restore(ctx context.Context) error {
	remote, err := s.list(ctx)
	if err != nil {
		return err
	}

	downloaded := 0
	for rel := range remote {
		local := filepath.Join(s.dir, filepath.FromSlash(rel))
		if _, err := os.Stat(local); err == nil {
			continue
		}
		if err := s.download(ctx, s.key(rel), local); err != nil {
			return err
		}
		downloaded++
	}

	s.logger.Info("image cache restored",
		zap.String("bucket", s.bucket),
		zap.Int("objects", len(remote)),
		zap.Int("downloaded", downloaded))
	return nil
}

// Save uploads every cache file whose object is missing or differs in size
func (s *S3Store) Save(ctx context.Context) error {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		s.logger.Info("no image cache to save", zap.String("dir", s.dir))
		return nil
	}

	remote, err := s.list(ctx)
	if err != nil {
		return err
	}

	uploaded := 0
	err = filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if size, ok := remote[rel]; ok && size == info.Size() {
			return nil
		}

		if err := s.upload(ctx, p, s.key(rel)); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save image cache: %w", err)
	}

	s.logger.Info("image cache saved", zap.String("bucket", s.bucket), zap.Int("uploaded", uploaded))
	return nil
}

// list returns the size of every object under the prefix, keyed by its
// path relative to the prefix
func (s *S3Store) list(ctx context.Context) (map[string]int64, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	objects := make(map[string]int64)
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, s.prefix+"/")
			if s.prefix == "" {
				rel = key
			}
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			objects[rel] = aws.ToInt64(obj.Size)
		}
	}
	return objects, nil
}

func (s *S3Store) key(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

func (s *S3Store) upload(ctx context.Context, local, key string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	s.logger.Debug("cache object uploaded", zap.String("key", key))
	return nil
}

func (s *S3Store) download(ctx context.Context, key, local string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), local)
}
