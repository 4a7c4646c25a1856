package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// AvailabilityVersionKey holds the generation counter of a professor's open slots.
func AvailabilityVersionKey(professorID string) string {
	return "availability:version:" + professorID
}

// AvailabilityCacheKey is the cache key holding a professor's open slots for one generation.
func AvailabilityCacheKey(professorID string, version int64) string {
	return fmt.Sprintf("availability:open:%s:%d", professorID, version)
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// AvailabilityKey resolves the key of the current generation of a professor's open slots.
// ok is false when caching is off or the generation cannot be read; callers must then skip the cache.
func (s *CacheService) AvailabilityKey(ctx context.Context, professorID string) (key string, ok bool) {
	if !s.Enabled() {
		return "", false
	}
	var version int64
	if err := s.repo.Get(ctx, AvailabilityVersionKey(professorID), &version); err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("availability version read failed", zap.String("professor_id", professorID), zap.Error(err))
		return "", false
	}
	return AvailabilityCacheKey(professorID, version), true
}

// InvalidateAvailability starts a new generation for the professor's open slots. A fill computed
// before the change lands under the old key, which is never read again and expires with its TTL.
func (s *CacheService) InvalidateAvailability(ctx context.Context, professorID string) error {
	if !s.Enabled() {
		return nil
	}
	if _, err := s.repo.Incr(ctx, AvailabilityVersionKey(professorID)); err != nil {
		s.logger.Warn("availability invalidate failed", zap.String("professor_id", professorID), zap.Error(err))
		return err
	}
	return nil
}
