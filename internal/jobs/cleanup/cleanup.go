// Package cleanup purges expired refresh tokens. Lookups already treat
// expired rows as absent, so the job only reclaims storage.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type expiredDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type Job struct {
	tokens   expiredDeleter
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func New(tokens expiredDeleter, interval time.Duration, logger *zap.Logger) *Job {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		tokens:   tokens,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run performs a single purge pass.
func (j *Job) Run(ctx context.Context) error {
	if j.tokens == nil {
		return nil
	}

	deleted, err := j.tokens.DeleteExpired(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	if deleted > 0 {
		j.logger.Info("purged expired refresh tokens", zap.Int64("deleted", deleted))
	}

	return nil
}

// Start runs purge passes on the configured interval until ctx is done.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("refresh token cleanup failed", zap.Error(err))
			}
		}
	}
}
