// Package source loads firmware images from a local path or an S3 object.
//
// Locations of the form s3://bucket/key are fetched with the AWS SDK default
// credential chain (env vars, shared config, IAM role); anything else is a
// file path. S3-compatible stores (MinIO, R2) work through S3Config.Endpoint.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/moffa90/go-esp32ota/firmware"
)

// S3Scheme is the location prefix selecting S3.
const S3Scheme = "s3://"

// DefaultMaxSize is the largest image accepted (16 MiB, the largest ESP32 flash).
const DefaultMaxSize = 16 * 1024 * 1024

// ErrTooLarge is returned for an image over the size limit.
var ErrTooLarge = errors.New("image exceeds size limit")

// ObjectGetter is the part of the S3 client the loader uses.
// *s3.Client implements it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds configuration for S3 access.
type S3Config struct {
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	UsePathStyle bool
}

// Loader reads images from files and S3.
type Loader struct {
	s3cfg   S3Config
	maxSize int64

	mu     sync.Mutex
	client ObjectGetter
}

// Option configures a Loader.
type Option func(*Loader)

// WithS3Config sets the S3 settings used to build the client on first use.
func WithS3Config(cfg S3Config) Option {
	return func(l *Loader) {
		l.s3cfg = cfg
	}
}

// WithS3Client sets the S3 client, bypassing the default config chain.
func WithS3Client(client ObjectGetter) Option {
	return func(l *Loader) {
		l.client = client
	}
}

// WithMaxSize sets the size limit. Values <= 0 are ignored.
func WithMaxSize(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsS3 reports whether location names an S3 object.
func IsS3(location string) bool {
	return strings.HasPrefix(location, S3Scheme)
}

// ParseS3URI splits s3://bucket/key into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, S3Scheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("s3 uri %q: want s3://bucket/key", uri)
	}
	return parts[0], parts[1], nil
}

// Load reads and validates the image at location.
func (l *Loader) Load(ctx context.Context, location string) (*firmware.Image, error) {
	data, err := l.Read(ctx, location)
	if err != nil {
		return nil, err
	}

	img, err := firmware.New(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	return img, nil
}

// Read returns the raw bytes at location without validating them.
func (l *Loader) Read(ctx context.Context, location string) ([]byte, error) {
	if IsS3(location) {
		return l.readS3(ctx, location)
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	return l.readAll(f, location)
}

func (l *Loader) readS3(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	client, err := l.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", uri, err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > l.maxSize {
		return nil, fmt.Errorf("%s: %d bytes: %w", uri, *out.ContentLength, ErrTooLarge)
	}

	return l.readAll(out.Body, uri)
}

func (l *Loader) readAll(r io.Reader, location string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", location, ErrTooLarge, l.maxSize)
	}
	return data, nil
}

// s3Client returns the configured client, building one from the AWS default
// config chain on first use.
func (l *Loader) s3Client(ctx context.Context) (ObjectGetter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}

	var opts []func(*config.LoadOptions) error
	if l.s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(l.s3cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if l.s3cfg.Endpoint != "" {
		endpoint := l.s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if l.s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	l.client = s3.NewFromConfig(awsConfig, s3Opts...)
	return l.client, nil
}
