// Package fetcher wraps single upstream calls with classification-driven
// retries, backoff and cancellation. It is the only place retry policy
// lives; callers hand it one attempt closure and get back either a
// completed call or a classified failure.
package fetcher

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"net/url"
	"time"

	"go.uber.org/zap"

	"tradesync/internal/client/exchange"
	"tradesync/internal/config"
)

// ErrInterrupted is returned when the shared cancellation signal fires
// during an attempt or an in-flight wait.
var ErrInterrupted = errors.New("interrupted")

type class int

const (
	classRateLimit class = iota
	classNonce
	classNetwork
	classAuth
	classIneligible
	classUnexpected
)

type Fetcher struct {
	cfg    config.FetchConfig
	logger *zap.Logger
}

func New(cfg config.FetchConfig, logger *zap.Logger) *Fetcher {
	if cfg.RateLimitBase <= 0 {
		cfg.RateLimitBase = 2 * time.Second
	}
	if cfg.RateLimitCap <= 0 {
		cfg.RateLimitCap = 5 * time.Minute
	}
	if cfg.RateLimitRetries <= 0 {
		cfg.RateLimitRetries = 100
	}
	if cfg.NonceDelay <= 0 {
		cfg.NonceDelay = time.Second
	}
	if cfg.NonceRetries <= 0 {
		cfg.NonceRetries = 20
	}
	if cfg.NetworkInterval <= 0 {
		cfg.NetworkInterval = 10 * time.Second
	}
	if cfg.NetworkWindow <= 0 {
		cfg.NetworkWindow = 10 * time.Minute
	}
	if cfg.UnexpectedDelay <= 0 {
		cfg.UnexpectedDelay = 5 * time.Second
	}
	if cfg.UnexpectedRetries <= 0 {
		cfg.UnexpectedRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// AttemptFunc performs one upstream call; the closure captures its own
// result on success.
type AttemptFunc func(ctx context.Context) error

// Run invokes attempt until it succeeds, a retry budget is exhausted, or
// the context is cancelled. An ineligible-user response counts as success
// with nothing captured.
func (f *Fetcher) Run(ctx context.Context, op string, attempt AttemptFunc) error {
	var (
		rateAttempts  int
		nonceAttempts int
		unexpAttempts int
		degradedSince time.Time
	)

	for {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		err := attempt(ctx)
		if err == nil {
			if !degradedSince.IsZero() {
				f.logger.Info("network resumed", zap.String("op", op),
					zap.Duration("degraded_for", time.Since(degradedSince)))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ErrInterrupted
		}

		switch classify(err) {
		case classIneligible:
			f.logger.Debug("user not eligible, treating as empty result",
				zap.String("op", op))
			return nil

		case classAuth:
			return err

		case classRateLimit:
			rateAttempts++
			if rateAttempts > f.cfg.RateLimitRetries {
				return err
			}
			delay := f.rateLimitDelay(rateAttempts)
			f.logger.Debug("rate limited, backing off", zap.String("op", op),
				zap.Int("attempt", rateAttempts), zap.Duration("delay", delay))
			if err := sleep(ctx, delay); err != nil {
				return err
			}

		case classNonce:
			nonceAttempts++
			if nonceAttempts > f.cfg.NonceRetries {
				return err
			}
			if err := sleep(ctx, f.cfg.NonceDelay); err != nil {
				return err
			}

		case classNetwork:
			if degradedSince.IsZero() {
				degradedSince = time.Now()
				f.logger.Warn("network degraded", zap.String("op", op), zap.Error(err))
			}
			if time.Since(degradedSince) > f.cfg.NetworkWindow {
				return err
			}
			if err := sleep(ctx, f.cfg.NetworkInterval); err != nil {
				return err
			}

		default:
			unexpAttempts++
			if unexpAttempts > f.cfg.UnexpectedRetries {
				return err
			}
			f.logger.Warn("unexpected upstream error, retrying",
				zap.String("op", op), zap.Int("attempt", unexpAttempts), zap.Error(err))
			if err := sleep(ctx, f.cfg.UnexpectedDelay); err != nil {
				return err
			}
		}
	}
}

// rateLimitDelay grows by ~1.3x per attempt with jitter spread across the
// step to the next attempt, so consecutive delays never shrink until the
// cap. attempt counts from 1.
func (f *Fetcher) rateLimitDelay(attempt int) time.Duration {
	lo := float64(f.cfg.RateLimitBase) * math.Pow(1.3, float64(attempt-1))
	hi := lo * 1.3
	d := time.Duration(lo + rand.Float64()*(hi-lo))
	if d > f.cfg.RateLimitCap {
		d = f.cfg.RateLimitCap
	}
	return d
}

func classify(err error) class {
	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.UserIneligible():
			return classIneligible
		case apiErr.RateLimited():
			return classRateLimit
		case apiErr.NonceTooSmall():
			return classNonce
		case apiErr.AuthFailed():
			return classAuth
		case apiErr.Status >= 500:
			return classNetwork
		default:
			return classUnexpected
		}
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return classNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return classNetwork
	}
	return classUnexpected
}

// IsAuth reports whether err is a fatal authentication failure.
func IsAuth(err error) bool {
	var apiErr *exchange.APIError
	return errors.As(err, &apiErr) && apiErr.AuthFailed()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ErrInterrupted
	case <-t.C:
		return nil
	}
}
