package memstore

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/repository"
)

func TestUsersEmailIsCaseInsensitive(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Users().Create(ctx, &models.User{Name: "Ada", Email: "Ada@Example.com", Role: models.RoleProfessor}))
	err := store.Users().Create(ctx, &models.User{Name: "Ada 2", Email: "ada@example.com", Role: models.RoleStudent})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)

	user, err := store.Users().FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)

	_, err = store.Users().FindByID(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateExclusiveOverlap(t *testing.T) {
	store := New()
	ctx := context.Background()
	slots := store.Availability()

	require.NoError(t, slots.CreateExclusive(ctx, &models.AvailabilitySlot{ProfessorID: "p1", Date: "2024-06-01", StartTime: "09:00", EndTime: "10:00"}))
	err := slots.CreateExclusive(ctx, &models.AvailabilitySlot{ProfessorID: "p1", Date: "2024-06-01", StartTime: "09:30", EndTime: "10:30"})
	assert.ErrorIs(t, err, repository.ErrSlotOverlap)
	require.NoError(t, slots.CreateExclusive(ctx, &models.AvailabilitySlot{ProfessorID: "p1", Date: "2024-06-01", StartTime: "10:00", EndTime: "11:00"}))
	require.NoError(t, slots.CreateExclusive(ctx, &models.AvailabilitySlot{ProfessorID: "p2", Date: "2024-06-01", StartTime: "09:30", EndTime: "10:30"}))

	all, err := slots.ListByProfessorDate(ctx, "p1", "2024-06-01")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func addStudent(t *testing.T, store *Store, email string) string {
	t.Helper()
	student := &models.User{Name: "Student", Email: email, Role: models.RoleStudent}
	require.NoError(t, store.Users().Create(context.Background(), student))
	return student.ID
}

func TestConcurrentClaimsHaveSingleWinner(t *testing.T) {
	store := New()
	ctx := context.Background()
	slot := &models.AvailabilitySlot{ProfessorID: "p1", Date: "2024-06-01", StartTime: "09:00", EndTime: "10:00"}
	require.NoError(t, store.Availability().CreateExclusive(ctx, slot))
	studentID := addStudent(t, store, "student@example.com")

	const claimants = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		refused int
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Appointments().Claim(ctx, slot.ID, studentID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, repository.ErrSlotTaken) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, claimants-1, refused)
}

func TestReleaseReopensSlot(t *testing.T) {
	store := New()
	ctx := context.Background()
	slot := &models.AvailabilitySlot{ProfessorID: "p1", Date: "2024-06-01", StartTime: "09:00", EndTime: "10:00"}
	require.NoError(t, store.Availability().CreateExclusive(ctx, slot))
	first := addStudent(t, store, "s1@example.com")
	second := addStudent(t, store, "s2@example.com")

	appointment, err := store.Appointments().Claim(ctx, slot.ID, first)
	require.NoError(t, err)
	open, _ := store.Availability().ListOpenByProfessor(ctx, "p1")
	assert.Empty(t, open)

	cancelled, err := store.Appointments().Release(ctx, appointment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, cancelled.Status)

	_, err = store.Appointments().Release(ctx, appointment.ID, nil)
	assert.ErrorIs(t, err, repository.ErrAppointmentCancelled)

	open, _ = store.Availability().ListOpenByProfessor(ctx, "p1")
	require.Len(t, open, 1)
	assert.False(t, open[0].IsBooked)

	_, err = store.Appointments().Claim(ctx, slot.ID, second)
	assert.NoError(t, err)
}

func TestClaimUnknownStudentLeavesSlotOpen(t *testing.T) {
	store := New()
	ctx := context.Background()
	slot := &models.AvailabilitySlot{ProfessorID: "p1", Date: "2024-06-01", StartTime: "09:00", EndTime: "10:00"}
	require.NoError(t, store.Availability().CreateExclusive(ctx, slot))

	_, err := store.Appointments().Claim(ctx, slot.ID, "ghost")
	assert.ErrorIs(t, err, repository.ErrStudentNotFound)

	open, err := store.Availability().ListOpenByProfessor(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
