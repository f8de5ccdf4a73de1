package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mansoorceksport/liftlog/internal/domain"
)

const progressKeyPrefix = "workout:progress:"

// RedisProgressRepository keeps the single in-progress workout of each user.
// Records never expire; the session clears them on finish or abandon.
type RedisProgressRepository struct {
	cache *RedisCacheRepository
}

func NewRedisProgressRepository(cache *RedisCacheRepository) *RedisProgressRepository {
	return &RedisProgressRepository{cache: cache}
}

// Load returns nil without error when the user has no stored progress.
func (r *RedisProgressRepository) Load(ctx context.Context, userID string) (*domain.WorkoutProgress, error) {
	var progress domain.WorkoutProgress
	err := r.cache.Get(ctx, progressKeyPrefix+userID, &progress)
	switch {
	case errors.Is(err, ErrCacheMiss):
		return nil, nil
	case errors.Is(err, ErrCacheCorrupt):
		return nil, fmt.Errorf("%w: %v", domain.ErrProgressCorrupt, err)
	case err != nil:
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	return &progress, nil
}

func (r *RedisProgressRepository) Save(ctx context.Context, userID string, progress *domain.WorkoutProgress) error {
	if err := r.cache.Set(ctx, progressKeyPrefix+userID, progress, 0); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (r *RedisProgressRepository) Clear(ctx context.Context, userID string) error {
	if err := r.cache.Delete(ctx, progressKeyPrefix+userID); err != nil {
		return fmt.Errorf("failed to clear progress: %w", err)
	}
	return nil
}
