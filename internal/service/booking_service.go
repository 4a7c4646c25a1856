package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/repository"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
)

type bookingRepository interface {
	Claim(ctx context.Context, slotID, studentID string) (*models.Appointment, error)
	Release(ctx context.Context, appointmentID string, authorize func(models.Appointment) error) (*models.Appointment, error)
	ListForStudent(ctx context.Context, studentID string) ([]models.AppointmentView, error)
	ListForProfessor(ctx context.Context, professorID string) ([]models.AppointmentView, error)
}

// BookingService claims and releases slots on behalf of students and professors.
type BookingService struct {
	repo    bookingRepository
	cache   *CacheService
	metrics *MetricsService
	audit   auditRecorder
	logger  *zap.Logger
}

// NewBookingService constructs a BookingService.
func NewBookingService(repo bookingRepository, cache *CacheService, metrics *MetricsService, audit auditRecorder, logger *zap.Logger) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{repo: repo, cache: cache, metrics: metrics, audit: audit, logger: logger}
}

// BookSlot claims slotID for the calling student. Of several concurrent callers at most one wins;
// the rest receive SLOT_UNAVAILABLE.
func (s *BookingService) BookSlot(ctx context.Context, callerID string, role models.UserRole, slotID string) (*models.Appointment, error) {
	switch role {
	case models.RoleStudent:
	case models.RoleProfessor:
		s.metrics.RecordClaim(OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Only students can book appointments")
	default:
		s.metrics.RecordClaim(OutcomeRejected)
		return nil, appErrors.ErrForbidden
	}
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		s.metrics.RecordClaim(OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot id is required")
	}

	appointment, err := s.repo.Claim(ctx, slotID, callerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotNotFound):
			s.metrics.RecordClaim(OutcomeNotFound)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Slot not found")
		case errors.Is(err, repository.ErrSlotTaken):
			s.metrics.RecordClaim(OutcomeUnavailable)
			s.logger.Info("slot already booked", zap.String("slot_id", slotID), zap.String("student_id", callerID))
			return nil, appErrors.ErrSlotUnavailable
		case errors.Is(err, repository.ErrStudentNotFound):
			s.metrics.RecordClaim(OutcomeRejected)
			s.logger.Warn("booking by unknown student", zap.String("slot_id", slotID), zap.String("student_id", callerID))
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Invalid token")
		default:
			s.metrics.RecordClaim(OutcomeError)
			s.logger.Error("slot claim failed", zap.String("slot_id", slotID), zap.Error(err))
			return nil, appErrors.Internal(err, "failed to book appointment")
		}
	}
	s.metrics.RecordClaim(OutcomeSuccess)
	_ = s.cache.InvalidateAvailability(ctx, appointment.ProfessorID)

	if s.audit != nil {
		s.audit.Record(models.AuditLog{
			UserID:     strPtr(callerID),
			Action:     models.AuditActionAppointmentBook,
			Resource:   "appointment",
			ResourceID: strPtr(appointment.ID),
			NewValues:  auditValues(map[string]interface{}{"slot_id": slotID, "status": appointment.Status}),
		})
	}
	s.logger.Info("appointment booked",
		zap.String("appointment_id", appointment.ID),
		zap.String("slot_id", slotID),
		zap.String("student_id", callerID),
		zap.String("professor_id", appointment.ProfessorID),
	)
	return appointment, nil
}

// ListAppointments returns the caller's appointments, as student or as professor.
func (s *BookingService) ListAppointments(ctx context.Context, callerID string, role models.UserRole) ([]models.AppointmentView, error) {
	var (
		views []models.AppointmentView
		err   error
	)
	switch role {
	case models.RoleStudent:
		views, err = s.repo.ListForStudent(ctx, callerID)
	case models.RoleProfessor:
		views, err = s.repo.ListForProfessor(ctx, callerID)
	default:
		return nil, appErrors.ErrForbidden
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load appointments")
	}
	return views, nil
}

// CancelAppointment cancels an appointment owned by the calling professor and reopens its slot.
func (s *BookingService) CancelAppointment(ctx context.Context, callerID string, role models.UserRole, appointmentID string) (*models.Appointment, error) {
	switch role {
	case models.RoleProfessor:
	case models.RoleStudent:
		s.metrics.RecordCancel(OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Only professors can cancel appointments")
	default:
		s.metrics.RecordCancel(OutcomeRejected)
		return nil, appErrors.ErrForbidden
	}

	appointment, err := s.repo.Release(ctx, strings.TrimSpace(appointmentID), func(a models.Appointment) error {
		if a.ProfessorID != callerID {
			return appErrors.Clone(appErrors.ErrForbidden, "Only the owning professor can cancel this appointment")
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		switch {
		case errors.As(err, &appErr):
			s.metrics.RecordCancel(OutcomeRejected)
			return nil, appErr
		case errors.Is(err, repository.ErrAppointmentNotFound):
			s.metrics.RecordCancel(OutcomeNotFound)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Appointment not found")
		case errors.Is(err, repository.ErrAppointmentCancelled):
			s.metrics.RecordCancel(OutcomeConflict)
			return nil, appErrors.Clone(appErrors.ErrConflict, "Appointment already cancelled")
		default:
			s.metrics.RecordCancel(OutcomeError)
			s.logger.Error("appointment cancel failed", zap.String("appointment_id", appointmentID), zap.Error(err))
			return nil, appErrors.Internal(err, "failed to cancel appointment")
		}
	}
	s.metrics.RecordCancel(OutcomeSuccess)
	_ = s.cache.InvalidateAvailability(ctx, appointment.ProfessorID)

	if s.audit != nil {
		s.audit.Record(models.AuditLog{
			UserID:     strPtr(callerID),
			Action:     models.AuditActionAppointmentCancel,
			Resource:   "appointment",
			ResourceID: strPtr(appointment.ID),
			NewValues:  auditValues(map[string]interface{}{"slot_id": appointment.AvailabilitySlotID, "status": appointment.Status}),
		})
	}
	s.logger.Info("appointment cancelled",
		zap.String("appointment_id", appointment.ID),
		zap.String("slot_id", appointment.AvailabilitySlotID),
		zap.String("professor_id", callerID),
	)
	return appointment, nil
}
