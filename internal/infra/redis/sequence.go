package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kislikjeka/coopledger/internal/sequence"
	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/pkg/logger"
)

const (
	sequenceKeyPrefix = "seq:"
	seedLockTTL       = 5 * time.Second
)

// SequenceAllocator allocates numbers with INCR. A missing counter key is
// seeded from the database under a distributed lock, so a flushed Redis
// never hands out a number that is already stored. Every allocated number is
// also advanced into the database counter, so switching back to database
// allocation continues after it.
type SequenceAllocator struct {
	client *redis.Client
	locker *redislock.Client
	source sequence.CounterSource
	logger *logger.Logger
}

// NewSequenceAllocator creates a Redis allocator seeded from source
func NewSequenceAllocator(client *redis.Client, source sequence.CounterSource, log *logger.Logger) *SequenceAllocator {
	return &SequenceAllocator{
		client: client,
		locker: redislock.New(client),
		source: source,
		logger: log.WithField("component", "sequence_redis"),
	}
}

func counterKey(tenantID uuid.UUID, series string) string {
	return fmt.Sprintf("%s%s:%s", sequenceKeyPrefix, tenantID, series)
}

// Next increments and returns the tenant series counter
func (a *SequenceAllocator) Next(ctx context.Context, tenantID uuid.UUID, series string) (int64, error) {
	key := counterKey(tenantID, series)

	exists, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, apperrors.Dependency("redis unavailable", err)
	}
	if exists == 0 {
		if err := a.seed(ctx, key, tenantID, series); err != nil {
			return 0, err
		}
	}

	n, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, apperrors.Dependency("failed to increment sequence", err)
	}

	// n stays burned in Redis if this fails; the caller sees an error and
	// the series gets a gap, never a reissue.
	if err := a.source.Advance(ctx, tenantID, series, n); err != nil {
		a.logger.WithContext(ctx).Error("failed to record allocated sequence number",
			"tenant_id", tenantID,
			"series", series,
			"value", n,
			"error", err,
		)
		return 0, fmt.Errorf("failed to record %s number %d: %w", series, n, err)
	}
	return n, nil
}

func (a *SequenceAllocator) seed(ctx context.Context, key string, tenantID uuid.UUID, series string) error {
	lock, err := a.locker.Obtain(ctx, "lock:"+key, seedLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 20),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return apperrors.Dependency("could not obtain sequence seed lock", err)
	}
	if err != nil {
		return apperrors.Dependency("failed to obtain sequence seed lock", err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	current, err := a.source.Current(ctx, tenantID, series)
	if err != nil {
		return fmt.Errorf("failed to read seed for %s: %w", series, err)
	}

	// SETNX: another process may have seeded while we waited for the lock
	set, err := a.client.SetNX(ctx, key, current, 0).Result()
	if err != nil {
		return apperrors.Dependency("failed to seed sequence", err)
	}
	if set {
		a.logger.WithContext(ctx).Info("sequence counter seeded",
			"tenant_id", tenantID,
			"series", series,
			"value", current,
		)
	}
	return nil
}
