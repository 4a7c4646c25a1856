package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors returned by the storage layer. Services translate them into API errors.
var (
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrSlotNotFound         = errors.New("availability slot not found")
	ErrSlotTaken            = errors.New("availability slot already booked")
	ErrSlotOverlap          = errors.New("availability slot overlaps an existing slot")
	ErrStudentNotFound      = errors.New("student not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrAppointmentCancelled = errors.New("appointment already cancelled")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	return hasPQCode(err, uniqueViolation)
}

func isForeignKeyViolation(err error) bool {
	return hasPQCode(err, foreignKeyViolation)
}

func hasPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == code
	}
	return false
}
