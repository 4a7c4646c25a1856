package models

import "time"

// Wall clock layouts used for slot dates and times. Both sort lexicographically.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// AvailabilitySlot is a professor-published interval on a single date.
type AvailabilitySlot struct {
	ID          string    `db:"id" json:"id"`
	ProfessorID string    `db:"professor_id" json:"professor_id"`
	Date        string    `db:"date" json:"date"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	IsBooked    bool      `db:"is_booked" json:"is_booked"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Overlaps reports whether the half-open ranges [start,end) of s and other intersect on the same date.
func (s AvailabilitySlot) Overlaps(other AvailabilitySlot) bool {
	if s.Date != other.Date {
		return false
	}
	return s.StartTime < other.EndTime && s.EndTime > other.StartTime
}

// FirstOverlap returns the first slot in existing that overlaps candidate.
func FirstOverlap(existing []AvailabilitySlot, candidate AvailabilitySlot) (*AvailabilitySlot, bool) {
	for i := range existing {
		if existing[i].ID == candidate.ID {
			continue
		}
		if candidate.Overlaps(existing[i]) {
			return &existing[i], true
		}
	}
	return nil, false
}

// PublishSlotRequest is the payload professors send to publish availability.
type PublishSlotRequest struct {
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}
