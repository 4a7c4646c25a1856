package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/office-hours-api/internal/models"
)

type flakyAuditRepo struct {
	mu       sync.Mutex
	failures int
	saved    []models.AuditLog
}

func (r *flakyAuditRepo) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("temporary failure")
	}
	r.saved = append(r.saved, *entry)
	return nil
}

func (r *flakyAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func TestAuditServicePersistsWithRetry(t *testing.T) {
	repo := &flakyAuditRepo{failures: 1}
	svc := NewAuditService(repo, AuditConfig{Workers: 1, BufferSize: 4, MaxRetries: 2, RetryDelay: 5 * time.Millisecond}, nil, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Record(models.AuditLog{Action: models.AuditActionLogin, Resource: "auth"})

	assert.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 5*time.Millisecond)
	repo.mu.Lock()
	assert.False(t, repo.saved[0].CreatedAt.IsZero())
	repo.mu.Unlock()
}

func TestAuditServiceDropsWhenNotStarted(t *testing.T) {
	repo := &flakyAuditRepo{}
	metrics := NewMetricsService()
	svc := NewAuditService(repo, AuditConfig{Workers: 1}, metrics, nil)

	svc.Record(models.AuditLog{Action: models.AuditActionLogin})

	assert.Equal(t, 0, repo.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.auditDropped))

	var nilSvc *AuditService
	assert.NotPanics(t, func() { nilSvc.Record(models.AuditLog{}) })
}
