// Package storage reads product pictures from S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/marketsync/internal/domain/integration"
	infraconfig "github.com/erp/marketsync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// DefaultMaxPictureSize bounds the bytes read for a single picture (10MB)
const DefaultMaxPictureSize = 10 * 1024 * 1024

var (
	// ErrPictureNotFound is returned when no object exists under the key
	ErrPictureNotFound = errors.New("storage: picture not found")
	// ErrPictureTooLarge is returned when an object exceeds the size limit
	ErrPictureTooLarge = errors.New("storage: picture exceeds size limit")
	// ErrEmptyKey is returned for an empty storage key
	ErrEmptyKey = errors.New("storage: key is required")
)

// Ensure S3PictureStore implements PictureSource
var _ integration.PictureSource = (*S3PictureStore)(nil)

// S3PictureStore loads product pictures from a bucket.
// It is compatible with any S3-compatible storage (AWS S3, MinIO, etc.)
type S3PictureStore struct {
	client  *s3.Client
	bucket  string
	maxSize int64
	logger  *zap.Logger
}

// S3PictureStoreOption is a functional option for configuring S3PictureStore
type S3PictureStoreOption func(*S3PictureStore)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3PictureStoreOption {
	return func(s *S3PictureStore) {
		s.logger = logger
	}
}

// WithMaxSize overrides the per-picture size limit
func WithMaxSize(n int64) S3PictureStoreOption {
	return func(s *S3PictureStore) {
		s.maxSize = n
	}
}

// WithHTTPClient replaces the HTTP client used by the S3 SDK
func WithHTTPClient(client *http.Client) S3PictureStoreOption {
	return func(s *S3PictureStore) {
		s.client = s3.New(s.client.Options(), func(o *s3.Options) {
			o.HTTPClient = client
		})
	}
}

// NewS3PictureStore creates a picture store from configuration
func NewS3PictureStore(ctx context.Context, cfg *infraconfig.StorageConfig, opts ...S3PictureStoreOption) (*S3PictureStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	// Without static keys the default chain applies (env, shared config, instance role)
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return nil, errors.New("storage access key and secret key must be set together")
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	store := &S3PictureStore{
		client:  client,
		bucket:  cfg.Bucket,
		maxSize: DefaultMaxPictureSize,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Load reads the picture stored under key
func (s *S3PictureStore) Load(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return nil, ErrEmptyKey
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrPictureNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > s.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrPictureTooLarge, key, *out.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(out.Body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: %s", ErrPictureTooLarge, key)
	}

	s.logger.Debug("Loaded picture", zap.String("key", key), zap.Int("bytes", len(data)))
	return data, nil
}

// Bucket returns the bucket name
func (s *S3PictureStore) Bucket() string {
	return s.bucket
}

// isNotFound recognizes missing objects across S3-compatible backends
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
