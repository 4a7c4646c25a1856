package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/repository"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

type availabilityRepository interface {
	CreateExclusive(ctx context.Context, slot *models.AvailabilitySlot) error
	ListOpenByProfessor(ctx context.Context, professorID string) ([]models.AvailabilitySlot, error)
}

// AvailabilityService publishes professor slots and lists the open ones.
type AvailabilityService struct {
	repo      availabilityRepository
	validator *validator.Validate
	cache     *CacheService
	metrics   *MetricsService
	audit     auditRecorder
	logger    *zap.Logger
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(repo availabilityRepository, validate *validator.Validate, cache *CacheService, metrics *MetricsService, audit auditRecorder, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AvailabilityService{repo: repo, validator: validate, cache: cache, metrics: metrics, audit: audit, logger: logger}
}

// PublishSlot creates an open slot for the calling professor. The slot must not overlap any
// other slot the professor has on the same date, booked or not.
func (s *AvailabilityService) PublishSlot(ctx context.Context, callerID string, role models.UserRole, req models.PublishSlotRequest) (*models.AvailabilitySlot, error) {
	switch role {
	case models.RoleProfessor:
	case models.RoleStudent:
		s.metrics.RecordPublish(OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only professors can set availability")
	default:
		s.metrics.RecordPublish(OutcomeRejected)
		return nil, appErrors.ErrForbidden
	}

	slot, err := s.buildSlot(callerID, req)
	if err != nil {
		s.metrics.RecordPublish(OutcomeRejected)
		return nil, err
	}

	if err := s.repo.CreateExclusive(ctx, slot); err != nil {
		if errors.Is(err, repository.ErrSlotOverlap) {
			s.metrics.RecordPublish(OutcomeConflict)
			return nil, appErrors.ErrSlotOverlap
		}
		s.metrics.RecordPublish(OutcomeError)
		return nil, appErrors.Internal(err, "failed to save availability")
	}
	s.metrics.RecordPublish(OutcomeSuccess)
	_ = s.cache.InvalidateAvailability(ctx, callerID)

	if s.audit != nil {
		s.audit.Record(models.AuditLog{
			UserID:     strPtr(callerID),
			Action:     models.AuditActionSlotPublish,
			Resource:   "availability_slot",
			ResourceID: strPtr(slot.ID),
			NewValues:  auditValues(map[string]interface{}{"date": slot.Date, "start_time": slot.StartTime, "end_time": slot.EndTime}),
		})
	}
	s.logger.Info("availability published",
		zap.String("professor_id", callerID),
		zap.String("slot_id", slot.ID),
		zap.String("date", slot.Date),
		zap.String("start_time", slot.StartTime),
		zap.String("end_time", slot.EndTime),
	)
	return slot, nil
}

// ListUnbooked returns the professor's open slots, served from cache when enabled.
func (s *AvailabilityService) ListUnbooked(ctx context.Context, professorID string) ([]models.AvailabilitySlot, error) {
	professorID = strings.TrimSpace(professorID)
	if professorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "professor id is required")
	}

	// The key is resolved before reading the store so a fill that raced with a booking
	// is written under a generation nobody reads anymore.
	key, cacheable := s.cache.AvailabilityKey(ctx, professorID)
	if cacheable {
		var cached []models.AvailabilitySlot
		if hit, _ := s.cache.Get(ctx, key, &cached); hit && cached != nil {
			return cached, nil
		}
	}

	slots, err := s.repo.ListOpenByProfessor(ctx, professorID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load availability")
	}
	if cacheable {
		_ = s.cache.Set(ctx, key, slots, 0)
	}
	return slots, nil
}

func (s *AvailabilityService) buildSlot(professorID string, req models.PublishSlotRequest) (*models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date, startTime and endTime are required")
	}
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must use YYYY-MM-DD")
	}
	start, err := parseClock(req.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(req.EndTime)
	if err != nil {
		return nil, err
	}
	if start >= end {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
	}
	return &models.AvailabilitySlot{
		ProfessorID: professorID,
		Date:        date.Format(models.DateLayout),
		StartTime:   start,
		EndTime:     end,
	}, nil
}

// parseClock accepts H:MM or HH:MM and returns the zero padded HH:MM form.
func parseClock(raw string) (string, error) {
	t, err := time.Parse(models.TimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid time %q, expected HH:MM", raw))
	}
	return t.Format(models.TimeLayout), nil
}
