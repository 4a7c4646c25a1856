package models

import "time"

// AppointmentStatus tracks the lifecycle of an appointment.
type AppointmentStatus string

const (
	AppointmentBooked    AppointmentStatus = "booked"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a student's claim on a slot. Date and times are copied from the slot at booking.
type Appointment struct {
	ID                 string            `db:"id" json:"id"`
	StudentID          string            `db:"student_id" json:"student_id"`
	ProfessorID        string            `db:"professor_id" json:"professor_id"`
	AvailabilitySlotID string            `db:"availability_slot_id" json:"availability_slot_id"`
	Date               string            `db:"date" json:"date"`
	StartTime          string            `db:"start_time" json:"start_time"`
	EndTime            string            `db:"end_time" json:"end_time"`
	Status             AppointmentStatus `db:"status" json:"status"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// NewAppointmentFromSlot snapshots slot into a booked appointment for studentID.
func NewAppointmentFromSlot(id, studentID string, slot AvailabilitySlot, now time.Time) Appointment {
	return Appointment{
		ID:                 id,
		StudentID:          studentID,
		ProfessorID:        slot.ProfessorID,
		AvailabilitySlotID: slot.ID,
		Date:               slot.Date,
		StartTime:          slot.StartTime,
		EndTime:            slot.EndTime,
		Status:             AppointmentBooked,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// AppointmentView is an appointment joined with both parties' public identity.
type AppointmentView struct {
	Appointment
	Professor UserSummary `json:"professor"`
	Student   UserSummary `json:"student"`
}
