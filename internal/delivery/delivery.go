package delivery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"syndicate/internal/config"
	"syndicate/internal/transmission"
)

// RateLimited throttles uploads through a shared limiter.
type RateLimited struct {
	Next    transmission.Uploader
	Limiter *rate.Limiter
}

// Upload waits for a token, then delegates.
func (r *RateLimited) Upload(ctx context.Context, name string, data []byte) error {
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	return r.Next.Upload(ctx, name, data)
}

// Close closes the wrapped uploader.
func (r *RateLimited) Close() error {
	return r.Next.Close()
}

// Factory builds uploaders for upload locations.
type Factory struct {
	OutboxDir string
	Timeout   time.Duration
	Limiter   *rate.Limiter
}

// NewFactory configures a factory from delivery settings.
func NewFactory(cfg *config.Config) *Factory {
	f := &Factory{
		OutboxDir: cfg.Paths.OutboxDir,
		Timeout:   time.Duration(cfg.Delivery.TimeoutSeconds) * time.Second,
	}
	if cfg.Delivery.RatePerSecond > 0 {
		burst := cfg.Delivery.Burst
		if burst < 1 {
			burst = 1
		}
		f.Limiter = rate.NewLimiter(rate.Limit(cfg.Delivery.RatePerSecond), burst)
	}
	return f
}

// ForLocation returns an uploader for loc.
func (f *Factory) ForLocation(loc transmission.UploadLocation) (transmission.Uploader, error) {
	var up transmission.Uploader
	switch loc.Kind {
	case transmission.LocationFTP:
		ftpUp, err := ParseFTPURL(loc.Location, f.Timeout)
		if err != nil {
			return nil, err
		}
		up = ftpUp
	default:
		root := strings.TrimSpace(loc.Location)
		if root == "" {
			return nil, fmt.Errorf("upload location %d has no path", loc.ID)
		}
		if !filepath.IsAbs(root) {
			root = filepath.Join(f.OutboxDir, root)
		}
		up = &DirUploader{Root: root}
	}
	if f.Limiter != nil {
		up = &RateLimited{Next: up, Limiter: f.Limiter}
	}
	return up, nil
}
