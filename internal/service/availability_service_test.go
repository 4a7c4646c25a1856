package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/repository/memstore"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

func publish(date, start, end string) models.PublishSlotRequest {
	return models.PublishSlotRequest{Date: date, StartTime: start, EndTime: end}
}

func TestPublishSlotOverlapRules(t *testing.T) {
	store := memstore.New()
	metrics := NewMetricsService()
	svc := NewAvailabilityService(store.Availability(), nil, nil, metrics, nil, nil)
	ctx := context.Background()

	slot, err := svc.PublishSlot(ctx, "p1", models.RoleProfessor, publish("2024-06-01", "09:00", "10:00"))
	require.NoError(t, err)
	assert.False(t, slot.IsBooked)
	assert.NotEmpty(t, slot.ID)

	_, err = svc.PublishSlot(ctx, "p1", models.RoleProfessor, publish("2024-06-01", "09:30", "10:30"))
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSlotOverlap.Code, appErr.Code)
	assert.Equal(t, "Time slot overlaps with existing availability", appErr.Message)

	_, err = svc.PublishSlot(ctx, "p1", models.RoleProfessor, publish("2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	_, err = svc.PublishSlot(ctx, "p1", models.RoleProfessor, publish("2024-06-02", "09:30", "10:30"))
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.slotPublish.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.slotPublish.WithLabelValues(OutcomeConflict)))
}

func TestPublishSlotRequiresProfessor(t *testing.T) {
	svc := NewAvailabilityService(memstore.New().Availability(), nil, nil, nil, nil, nil)

	_, err := svc.PublishSlot(context.Background(), "s1", models.RoleStudent, publish("2024-06-01", "09:00", "10:00"))
	appErr := appErrors.FromError(err)
	assert.Equal(t, 403, appErr.Status)
	assert.Equal(t, "Only professors can set availability", appErr.Message)

	_, err = svc.PublishSlot(context.Background(), "x", models.UserRole("admin"), publish("2024-06-01", "09:00", "10:00"))
	assert.Equal(t, 403, appErrors.FromError(err).Status)
}

func TestPublishSlotValidation(t *testing.T) {
	svc := NewAvailabilityService(memstore.New().Availability(), nil, nil, nil, nil, nil)
	cases := []models.PublishSlotRequest{
		publish("", "09:00", "10:00"),
		publish("2024/06/01", "09:00", "10:00"),
		publish("2024-06-01", "9am", "10:00"),
		publish("2024-06-01", "10:00", "10:00"),
		publish("2024-06-01", "11:00", "10:00"),
		publish("2024-06-01", "23:00", "24:00"),
	}
	for _, req := range cases {
		_, err := svc.PublishSlot(context.Background(), "p1", models.RoleProfessor, req)
		require.Error(t, err, "%+v", req)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestPublishSlotNormalisesClock(t *testing.T) {
	svc := NewAvailabilityService(memstore.New().Availability(), nil, nil, nil, nil, nil)

	slot, err := svc.PublishSlot(context.Background(), "p1", models.RoleProfessor, publish("2024-06-01", "9:00", "9:30"))
	require.NoError(t, err)
	assert.Equal(t, "09:00", slot.StartTime)
	assert.Equal(t, "09:30", slot.EndTime)
}

func TestConcurrentPublishKeepsSlotsDisjoint(t *testing.T) {
	store := memstore.New()
	svc := NewAvailabilityService(store.Availability(), nil, nil, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.PublishSlot(context.Background(), "p1", models.RoleProfessor, publish("2024-06-01", "09:00", "10:00"))
		}()
	}
	wg.Wait()

	slots, err := store.Availability().ListByProfessorDate(context.Background(), "p1", "2024-06-01")
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestListUnbookedUsesCache(t *testing.T) {
	store := memstore.New()
	cacheRepo := newFakeCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewAvailabilityService(store.Availability(), nil, cache, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.PublishSlot(ctx, "p1", models.RoleProfessor, publish("2024-06-01", "09:00", "10:00"))
	require.NoError(t, err)

	slots, err := svc.ListUnbooked(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	firstKey, ok := cache.AvailabilityKey(ctx, "p1")
	require.True(t, ok)
	assert.True(t, cacheRepo.has(firstKey))

	_, err = svc.PublishSlot(ctx, "p1", models.RoleProfessor, publish("2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)
	nextKey, ok := cache.AvailabilityKey(ctx, "p1")
	require.True(t, ok)
	assert.NotEqual(t, firstKey, nextKey)
	assert.False(t, cacheRepo.has(nextKey))

	slots, err = svc.ListUnbooked(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}
