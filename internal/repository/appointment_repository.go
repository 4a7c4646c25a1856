package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/pkg/database"
)

const appointmentColumns = `id, student_id, professor_id, availability_slot_id, date, start_time, end_time, status, created_at, updated_at`

const appointmentViewQuery = `SELECT a.id, a.student_id, a.professor_id, a.availability_slot_id, a.date, a.start_time, a.end_time, a.status, a.created_at, a.updated_at,
	p.id AS "professor.id", p.name AS "professor.name", p.email AS "professor.email",
	s.id AS "student.id", s.name AS "student.name", s.email AS "student.email"
FROM appointments a
JOIN users p ON p.id = a.professor_id
JOIN users s ON s.id = a.student_id`

// AppointmentRepository owns appointments and the slot claim/release transitions.
type AppointmentRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAppointmentRepository creates a new appointment repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Claim marks the slot booked and inserts the student's appointment in one transaction.
// The slot flag is flipped with a conditional update, so of several concurrent claims only one
// sees an affected row. Returns ErrSlotNotFound or ErrSlotTaken when the claim cannot proceed.
func (r *AppointmentRepository) Claim(ctx context.Context, slotID, studentID string) (*models.Appointment, error) {
	var appointment models.Appointment
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		const claim = `UPDATE availability_slots SET is_booked = TRUE WHERE id = $1 AND is_booked = FALSE RETURNING ` + slotColumns
		var slot models.AvailabilitySlot
		if err := tx.GetContext(ctx, &slot, claim, slotID); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("claim slot: %w", err)
			}
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM availability_slots WHERE id = $1)`, slotID); err != nil {
				return fmt.Errorf("check slot: %w", err)
			}
			if !exists {
				return ErrSlotNotFound
			}
			return ErrSlotTaken
		}

		appointment = models.NewAppointmentFromSlot(uuid.NewString(), studentID, slot, r.now())
		const insert = `INSERT INTO appointments (` + appointmentColumns + `) VALUES (:id, :student_id, :professor_id, :availability_slot_id, :date, :start_time, :end_time, :status, :created_at, :updated_at)`
		if _, err := sqlx.NamedExecContext(ctx, tx, insert, &appointment); err != nil {
			switch {
			case isUniqueViolation(err):
				return ErrSlotTaken
			case isForeignKeyViolation(err):
				// the slot row exists, so the dangling reference is the student
				return ErrStudentNotFound
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &appointment, nil
}

// Release cancels the appointment and reopens its slot in one transaction. authorize runs against
// the locked row before any write; its error aborts the release unchanged.
func (r *AppointmentRepository) Release(ctx context.Context, appointmentID string, authorize func(models.Appointment) error) (*models.Appointment, error) {
	var appointment models.Appointment
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		const lock = `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &appointment, lock, appointmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAppointmentNotFound
			}
			return fmt.Errorf("lock appointment: %w", err)
		}
		if authorize != nil {
			if err := authorize(appointment); err != nil {
				return err
			}
		}
		if appointment.Status == models.AppointmentCancelled {
			return ErrAppointmentCancelled
		}

		now := r.now()
		const cancel = `UPDATE appointments SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
		res, err := tx.ExecContext(ctx, cancel, appointment.ID, models.AppointmentCancelled, now, models.AppointmentBooked)
		if err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		} else if affected == 0 {
			return ErrAppointmentCancelled
		}

		if _, err := tx.ExecContext(ctx, `UPDATE availability_slots SET is_booked = FALSE WHERE id = $1`, appointment.AvailabilitySlotID); err != nil {
			return fmt.Errorf("release slot: %w", err)
		}

		appointment.Status = models.AppointmentCancelled
		appointment.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &appointment, nil
}

// FindByID loads an appointment by id. Missing appointments yield ErrAppointmentNotFound.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	const query = `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var appointment models.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("find appointment: %w", err)
	}
	return &appointment, nil
}

// ListForStudent returns a student's appointments ordered by date and start time.
func (r *AppointmentRepository) ListForStudent(ctx context.Context, studentID string) ([]models.AppointmentView, error) {
	return r.listViews(ctx, "a.student_id", studentID)
}

// ListForProfessor returns a professor's appointments ordered by date and start time.
func (r *AppointmentRepository) ListForProfessor(ctx context.Context, professorID string) ([]models.AppointmentView, error) {
	return r.listViews(ctx, "a.professor_id", professorID)
}

func (r *AppointmentRepository) listViews(ctx context.Context, column, userID string) ([]models.AppointmentView, error) {
	query := appointmentViewQuery + ` WHERE ` + column + ` = $1 ORDER BY a.date ASC, a.start_time ASC`
	views := []models.AppointmentView{}
	if err := r.db.SelectContext(ctx, &views, query, userID); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return views, nil
}
