package repository

import (
	"context"
	"time"

	"github.com/mansoorceksport/liftlog/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	programKeyPrefix  = "catalog:program:"
	exerciseKeyPrefix = "catalog:exercise:"
	programsListKey   = "catalog:programs"
	catalogKeyPattern = "catalog:*"
	catalogCacheTTL   = 10 * time.Minute
)

// CatalogSource is the backing store of the catalog cache.
type CatalogSource interface {
	domain.CatalogRepository
	ListPrograms(ctx context.Context) ([]*domain.Program, error)
}

// CachedCatalogRepository wraps the Mongo catalog with Redis caching
type CachedCatalogRepository struct {
	source CatalogSource
	cache  *RedisCacheRepository
}

// NewCachedCatalogRepository creates a new cached catalog repository
func NewCachedCatalogRepository(source CatalogSource, cache *RedisCacheRepository) *CachedCatalogRepository {
	return &CachedCatalogRepository{
		source: source,
		cache:  cache,
	}
}

// GetProgram retrieves a program with caching
func (r *CachedCatalogRepository) GetProgram(ctx context.Context, id string) (*domain.Program, error) {
	key := programKeyPrefix + id

	// Try cache first
	var program domain.Program
	if err := r.cache.Get(ctx, key, &program); err == nil {
		return &program, nil
	}

	// Cache miss - fetch from MongoDB
	result, err := r.source.GetProgram(ctx, id)
	if err != nil {
		return nil, err
	}

	// Store in cache (ignore cache errors)
	_ = r.cache.Set(ctx, key, result, catalogCacheTTL)

	return result, nil
}

// GetExercise retrieves an exercise with caching
func (r *CachedCatalogRepository) GetExercise(ctx context.Context, id string) (*domain.Exercise, error) {
	key := exerciseKeyPrefix + id

	var exercise domain.Exercise
	if err := r.cache.Get(ctx, key, &exercise); err == nil {
		return &exercise, nil
	}

	result, err := r.source.GetExercise(ctx, id)
	if err != nil {
		return nil, err
	}

	_ = r.cache.Set(ctx, key, result, catalogCacheTTL)

	return result, nil
}

// GetExercisesByIDs serves each exercise from the cache and loads the misses
// from MongoDB in a single query.
func (r *CachedCatalogRepository) GetExercisesByIDs(ctx context.Context, ids []string) (map[string]*domain.Exercise, error) {
	found := make([]*domain.Exercise, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			var exercise domain.Exercise
			if err := r.cache.Get(gctx, exerciseKeyPrefix+id, &exercise); err == nil {
				found[i] = &exercise
			}
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[string]*domain.Exercise, len(ids))
	var missing []string
	for i, id := range ids {
		if found[i] != nil {
			result[id] = found[i]
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	loaded, err := r.source.GetExercisesByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, exercise := range loaded {
		result[id] = exercise
		_ = r.cache.Set(ctx, exerciseKeyPrefix+id, exercise, catalogCacheTTL)
	}
	return result, nil
}

// ListPrograms retrieves the program list with caching
func (r *CachedCatalogRepository) ListPrograms(ctx context.Context) ([]*domain.Program, error) {
	var programs []*domain.Program
	if err := r.cache.Get(ctx, programsListKey, &programs); err == nil {
		return programs, nil
	}

	result, err := r.source.ListPrograms(ctx)
	if err != nil {
		return nil, err
	}

	_ = r.cache.Set(ctx, programsListKey, result, catalogCacheTTL)

	return result, nil
}

// Invalidate drops every cached catalog entry, used after the catalog is reseeded.
func (r *CachedCatalogRepository) Invalidate(ctx context.Context) error {
	return r.cache.DeleteByPattern(ctx, catalogKeyPattern)
}
