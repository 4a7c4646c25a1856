// Package memstore keeps users, slots and appointments in process memory. It satisfies the same
// contracts as the PostgreSQL repositories and returns the same sentinel errors, so services
// behave identically on either backend.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/repository"
)

// Store is a mutex guarded in-memory database.
type Store struct {
	mu           sync.RWMutex
	users        map[string]models.User
	emails       map[string]string
	slots        map[string]models.AvailabilitySlot
	appointments map[string]models.Appointment
	audits       []models.AuditLog
	now          func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:        make(map[string]models.User),
		emails:       make(map[string]string),
		slots:        make(map[string]models.AvailabilitySlot),
		appointments: make(map[string]models.Appointment),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Users exposes the identity contract.
func (s *Store) Users() *UserStore { return &UserStore{s} }

// Availability exposes the slot contract.
func (s *Store) Availability() *AvailabilityStore { return &AvailabilityStore{s} }

// Appointments exposes the booking contract.
func (s *Store) Appointments() *AppointmentStore { return &AppointmentStore{s} }

// Audit exposes the audit log sink.
func (s *Store) Audit() *AuditStore { return &AuditStore{s} }

// UserStore implements the identity store.
type UserStore struct{ s *Store }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail returns sql.ErrNoRows when no account matches.
func (u *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	id, ok := u.s.emails[normalizeEmail(email)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	user := u.s.users[id]
	return &user, nil
}

// FindByID returns sql.ErrNoRows when no account matches.
func (u *UserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

// Create stores user, rejecting a taken email with repository.ErrDuplicateEmail.
func (u *UserStore) Create(_ context.Context, user *models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	key := normalizeEmail(user.Email)
	if _, taken := u.s.emails[key]; taken {
		return repository.ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = u.s.now()
	}
	u.s.users[user.ID] = *user
	u.s.emails[key] = user.ID
	return nil
}

// AvailabilityStore implements the availability ledger.
type AvailabilityStore struct{ s *Store }

// CreateExclusive inserts slot unless it overlaps another slot of the professor on that date.
func (a *AvailabilityStore) CreateExclusive(_ context.Context, slot *models.AvailabilitySlot) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, overlaps := models.FirstOverlap(a.s.slotsFor(slot.ProfessorID, slot.Date), *slot); overlaps {
		return repository.ErrSlotOverlap
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = a.s.now()
	}
	slot.IsBooked = false
	a.s.slots[slot.ID] = *slot
	return nil
}

// FindByID returns repository.ErrSlotNotFound for unknown ids.
func (a *AvailabilityStore) FindByID(_ context.Context, id string) (*models.AvailabilitySlot, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	slot, ok := a.s.slots[id]
	if !ok {
		return nil, repository.ErrSlotNotFound
	}
	return &slot, nil
}

// ListByProfessorDate returns every slot of a professor on date.
func (a *AvailabilityStore) ListByProfessorDate(_ context.Context, professorID, date string) ([]models.AvailabilitySlot, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return a.s.slotsFor(professorID, date), nil
}

// ListOpenByProfessor returns unbooked slots ordered by date and start time.
func (a *AvailabilityStore) ListOpenByProfessor(_ context.Context, professorID string) ([]models.AvailabilitySlot, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	slots := []models.AvailabilitySlot{}
	for _, slot := range a.s.slots {
		if slot.ProfessorID == professorID && !slot.IsBooked {
			slots = append(slots, slot)
		}
	}
	sortSlots(slots)
	return slots, nil
}

func (s *Store) slotsFor(professorID, date string) []models.AvailabilitySlot {
	slots := []models.AvailabilitySlot{}
	for _, slot := range s.slots {
		if slot.ProfessorID == professorID && slot.Date == date {
			slots = append(slots, slot)
		}
	}
	sortSlots(slots)
	return slots
}

func sortSlots(slots []models.AvailabilitySlot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Date != slots[j].Date {
			return slots[i].Date < slots[j].Date
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}

// AppointmentStore implements the booking engine storage.
type AppointmentStore struct{ s *Store }

// Claim books the slot for studentID. The whole transition happens under the write lock.
func (b *AppointmentStore) Claim(_ context.Context, slotID, studentID string) (*models.Appointment, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	slot, ok := b.s.slots[slotID]
	if !ok {
		return nil, repository.ErrSlotNotFound
	}
	if slot.IsBooked {
		return nil, repository.ErrSlotTaken
	}
	if _, ok := b.s.users[studentID]; !ok {
		return nil, repository.ErrStudentNotFound
	}
	slot.IsBooked = true
	b.s.slots[slotID] = slot

	appointment := models.NewAppointmentFromSlot(uuid.NewString(), studentID, slot, b.s.now())
	b.s.appointments[appointment.ID] = appointment
	return &appointment, nil
}

// Release cancels the appointment and reopens its slot. authorize sees the current row first.
func (b *AppointmentStore) Release(_ context.Context, appointmentID string, authorize func(models.Appointment) error) (*models.Appointment, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	appointment, ok := b.s.appointments[appointmentID]
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	if authorize != nil {
		if err := authorize(appointment); err != nil {
			return nil, err
		}
	}
	if appointment.Status == models.AppointmentCancelled {
		return nil, repository.ErrAppointmentCancelled
	}

	appointment.Status = models.AppointmentCancelled
	appointment.UpdatedAt = b.s.now()
	b.s.appointments[appointmentID] = appointment

	if slot, ok := b.s.slots[appointment.AvailabilitySlotID]; ok {
		slot.IsBooked = false
		b.s.slots[slot.ID] = slot
	}
	return &appointment, nil
}

// FindByID returns repository.ErrAppointmentNotFound for unknown ids.
func (b *AppointmentStore) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	appointment, ok := b.s.appointments[id]
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	return &appointment, nil
}

// ListForStudent returns the student's appointments with both parties attached.
func (b *AppointmentStore) ListForStudent(_ context.Context, studentID string) ([]models.AppointmentView, error) {
	return b.list(func(a models.Appointment) bool { return a.StudentID == studentID }), nil
}

// ListForProfessor returns the professor's appointments with both parties attached.
func (b *AppointmentStore) ListForProfessor(_ context.Context, professorID string) ([]models.AppointmentView, error) {
	return b.list(func(a models.Appointment) bool { return a.ProfessorID == professorID }), nil
}

func (b *AppointmentStore) list(match func(models.Appointment) bool) []models.AppointmentView {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	views := []models.AppointmentView{}
	for _, appointment := range b.s.appointments {
		if !match(appointment) {
			continue
		}
		view := models.AppointmentView{Appointment: appointment}
		if professor, ok := b.s.users[appointment.ProfessorID]; ok {
			view.Professor = professor.Summary()
		}
		if student, ok := b.s.users[appointment.StudentID]; ok {
			view.Student = student.Summary()
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Date != views[j].Date {
			return views[i].Date < views[j].Date
		}
		return views[i].StartTime < views[j].StartTime
	})
	return views
}

// AuditStore collects audit entries.
type AuditStore struct{ s *Store }

// CreateAuditLog appends entry.
func (a *AuditStore) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.s.now()
	}
	a.s.audits = append(a.s.audits, *entry)
	return nil
}

// Entries returns a copy of the collected audit entries.
func (a *AuditStore) Entries() []models.AuditLog {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	out := make([]models.AuditLog, len(a.s.audits))
	copy(out, a.s.audits)
	return out
}
