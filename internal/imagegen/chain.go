package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Dev-Umb/wife-generate-game/internal/metrics"
)

// Backend is a named synthesizer inside a Chain.
type Backend struct {
	Name string
	Synthesizer
}

// Chain tries backends in order and returns the first image. A shared rate
// limiter bounds how fast attempts hit the backends.
type Chain struct {
	backends []Backend
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewChain creates a fallback chain. perMinute <= 0 disables rate limiting.
func NewChain(logger *zap.Logger, perMinute int, backends ...Backend) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = max(1, perMinute/10)
	}
	return &Chain{
		backends: backends,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
}

func (c *Chain) Synthesize(ctx context.Context, req Request) (string, error) {
	if len(c.backends) == 0 {
		return "", ErrNoImage
	}
	var errs []error
	for _, b := range c.backends {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("image rate limit: %w", err)
		}
		start := time.Now()
		url, err := b.Synthesize(ctx, req)
		if err == nil && url != "" {
			metrics.RecordImage(b.Name, req.Class.String(), "ok", time.Since(start))
			return url, nil
		}
		if err == nil {
			err = ErrNoImage
		}
		metrics.RecordImage(b.Name, req.Class.String(), "error", time.Since(start))
		c.logger.Warn("image backend failed, trying next",
			zap.String("backend", b.Name),
			zap.String("class", req.Class.String()),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}
