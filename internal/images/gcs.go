package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

// GCSConfig configures the bucket-backed store
type GCSConfig struct {
	Bucket string
	Prefix string // prepended to every reference, e.g. "scans/"

	// Endpoint overrides the API base path; Anonymous skips credentials.
	// Both exist for emulators and tests.
	Endpoint  string
	Anonymous bool

	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	BaseBackoff       time.Duration
}

// DefaultGCSConfig returns conservative request limits for bucket
func DefaultGCSConfig(bucket string) GCSConfig {
	return GCSConfig{
		Bucket:            bucket,
		RequestsPerSecond: 20,
		Burst:             10,
		MaxRetries:        3,
		BaseBackoff:       200 * time.Millisecond,
	}
}

// GCSStore downloads scans from a GCS bucket
type GCSStore struct {
	svc     *gcs.Service
	cfg     GCSConfig
	limiter *rate.Limiter
}

// NewGCSStore creates a bucket-backed store. Without Anonymous, application
// default credentials are used.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: bucket name is required")
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}

	svc, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &GCSStore{
		svc:     svc,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

// Fetch downloads prefix+ref from the bucket, retrying rate limiting, server
// errors and transport failures with exponential backoff
func (s *GCSStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	clean, err := cleanRef(ref)
	if err != nil {
		return nil, err
	}
	object := s.cfg.Prefix + clean

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := s.cfg.BaseBackoff << (attempt - 1)
			log.Debug().Str("object", object).Int("attempt", attempt).Dur("backoff", wait).Err(lastErr).Msg("Retrying image download")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := s.download(ctx, object)
		if err == nil {
			return data, nil
		}
		if isNotFound(err) {
			return nil, &NotFoundError{Ref: ref}
		}
		if !retryable(ctx, err) {
			return nil, fmt.Errorf("download gs://%s/%s: %w", s.cfg.Bucket, object, err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("download gs://%s/%s: giving up after %d attempts: %w", s.cfg.Bucket, object, s.cfg.MaxRetries+1, lastErr)
}

func (s *GCSStore) download(ctx context.Context, object string) ([]byte, error) {
	resp, err := s.svc.Objects.Get(s.cfg.Bucket, object).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound
	}
	return false
}

// retryable reports whether another attempt could succeed
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return true
}
