// Package s3 implements the S3 protocol binding: packages are uploaded as
// objects under a key prefix. It serves archives fronted by object storage
// and S3-compatible services such as MinIO.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/transport"
)

// Hint keys understood by this binding.
const (
	HintBucket    = "bucket"
	HintKeyPrefix = "keyPrefix"
)

// Config holds the binding's defaults; hints override per deposit.
type Config struct {
	// Bucket is the target bucket name.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region (optional, SDK default when empty).
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible
	// services).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// KeyPrefix is prepended to all object keys. Should end with "/" if
	// non-empty.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// Client is the slice of the S3 API this binding uses.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Transport uploads packages to S3.
type Transport struct {
	cfg    Config
	client Client
}

// New creates an S3 transport with an existing client.
func New(client Client, cfg Config) *Transport {
	return &Transport{cfg: cfg, client: client}
}

// NewFromConfig creates an S3 transport by building a client from config.
// Userpass hints become static credentials; otherwise the SDK's ambient
// credential chain applies.
func NewFromConfig(ctx context.Context, cfg Config, hints transport.Hints) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if hints.AuthMode == transport.AuthUserPass {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(hints.Username, hints.Password, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// Open implements transport.Transport.
func (t *Transport) Open(ctx context.Context, hints transport.Hints) (transport.Session, error) {
	bucket := hints.Extra(HintBucket, t.cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3: no bucket configured")
	}
	return &session{
		client: t.client,
		bucket: bucket,
		prefix: hints.Extra(HintKeyPrefix, t.cfg.KeyPrefix),
	}, nil
}

type session struct {
	client Client
	bucket string
	prefix string
}

// Send uploads the package as one object. The body is buffered first:
// PutObject needs a seekable body for request signing, and the pipe is not
// seekable.
func (s *session) Send(ctx context.Context, stream packaging.PackageStream) (*transport.Response, error) {
	meta := stream.Metadata()
	key := s.prefix + meta.Name

	rc, err := stream.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: open package stream: %w", err)
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("s3: buffer package %q: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(meta.MimeType),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: put object s3://%s/%s: %w", s.bucket, key, err)
	}

	logger.Info("package uploaded", "bucket", s.bucket, "key", key, "size", buf.Len())
	uri := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	return &transport.Response{
		Accepted:    true,
		ExternalIDs: []string{uri},
		AccessURL:   uri,
	}, nil
}

func (s *session) Close() error { return nil }

// Interface guards.
var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Session   = (*session)(nil)
)
