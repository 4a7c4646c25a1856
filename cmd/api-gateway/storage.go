package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/repository"
	"github.com/noah-isme/office-hours-api/internal/repository/memstore"
	"github.com/noah-isme/office-hours-api/migrations"
	"github.com/noah-isme/office-hours-api/pkg/config"
	"github.com/noah-isme/office-hours-api/pkg/database"
)

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type availabilityStore interface {
	CreateExclusive(ctx context.Context, slot *models.AvailabilitySlot) error
	ListOpenByProfessor(ctx context.Context, professorID string) ([]models.AvailabilitySlot, error)
}

type appointmentStore interface {
	Claim(ctx context.Context, slotID, studentID string) (*models.Appointment, error)
	Release(ctx context.Context, appointmentID string, authorize func(models.Appointment) error) (*models.Appointment, error)
	ListForStudent(ctx context.Context, studentID string) ([]models.AppointmentView, error)
	ListForProfessor(ctx context.Context, professorID string) ([]models.AppointmentView, error)
}

type auditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type storage struct {
	users        userStore
	availability availabilityStore
	appointments appointmentStore
	audit        auditStore
	ping         func(ctx context.Context) error
	close        func()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, logr *zap.Logger) (*storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logr.Warn("using in-memory storage, data is lost on restart")
		store := memstore.New()
		return &storage{
			users:        store.Users(),
			availability: store.Availability(),
			appointments: store.Appointments(),
			audit:        store.Audit(),
			close:        func() {},
		}, nil
	case config.DriverPostgres, "":
		db, err := database.NewPostgres(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := migrations.Up(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logr.Info("migrations applied")
		}
		return &storage{
			users:        repository.NewUserRepository(db),
			availability: repository.NewAvailabilityRepository(db),
			appointments: repository.NewAppointmentRepository(db),
			audit:        repository.NewAuditRepository(db),
			ping:         db.PingContext,
			close: func() {
				if err := db.Close(); err != nil {
					logr.Warn("closing database", zap.Error(err))
				}
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}
