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

const slotColumns = `id, professor_id, date, start_time, end_time, is_booked, created_at`

// AvailabilityRepository persists professor availability slots.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// CreateExclusive inserts slot unless it overlaps another slot of the same professor and date.
// The overlap check and the insert share a transaction serialised per (professor, date) by an
// advisory lock, so concurrent publishes cannot both pass the check.
func (r *AvailabilityRepository) CreateExclusive(ctx context.Context, slot *models.AvailabilitySlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}
	slot.IsBooked = false

	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot.ProfessorID+"|"+slot.Date); err != nil {
			return fmt.Errorf("lock professor day: %w", err)
		}

		existing, err := listByProfessorDate(ctx, tx, slot.ProfessorID, slot.Date)
		if err != nil {
			return err
		}
		if _, overlaps := models.FirstOverlap(existing, *slot); overlaps {
			return ErrSlotOverlap
		}

		const insert = `INSERT INTO availability_slots (id, professor_id, date, start_time, end_time, is_booked, created_at) VALUES (:id, :professor_id, :date, :start_time, :end_time, :is_booked, :created_at)`
		if _, err := sqlx.NamedExecContext(ctx, tx, insert, slot); err != nil {
			return fmt.Errorf("create availability slot: %w", err)
		}
		return nil
	})
}

// FindByID loads a slot by id. Missing slots yield ErrSlotNotFound.
func (r *AvailabilityRepository) FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	const query = `SELECT ` + slotColumns + ` FROM availability_slots WHERE id = $1`
	var slot models.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("find availability slot: %w", err)
	}
	return &slot, nil
}

// ListByProfessorDate returns every slot, booked or not, for a professor on date.
func (r *AvailabilityRepository) ListByProfessorDate(ctx context.Context, professorID, date string) ([]models.AvailabilitySlot, error) {
	return listByProfessorDate(ctx, r.db, professorID, date)
}

// ListOpenByProfessor returns the unbooked slots of a professor.
func (r *AvailabilityRepository) ListOpenByProfessor(ctx context.Context, professorID string) ([]models.AvailabilitySlot, error) {
	const query = `SELECT ` + slotColumns + ` FROM availability_slots WHERE professor_id = $1 AND is_booked = FALSE ORDER BY date ASC, start_time ASC`
	slots := []models.AvailabilitySlot{}
	if err := r.db.SelectContext(ctx, &slots, query, professorID); err != nil {
		return nil, fmt.Errorf("list open availability: %w", err)
	}
	return slots, nil
}

func listByProfessorDate(ctx context.Context, q sqlx.QueryerContext, professorID, date string) ([]models.AvailabilitySlot, error) {
	const query = `SELECT ` + slotColumns + ` FROM availability_slots WHERE professor_id = $1 AND date = $2 ORDER BY start_time ASC`
	slots := []models.AvailabilitySlot{}
	if err := sqlx.SelectContext(ctx, q, &slots, query, professorID, date); err != nil {
		return nil, fmt.Errorf("list availability by day: %w", err)
	}
	return slots, nil
}
