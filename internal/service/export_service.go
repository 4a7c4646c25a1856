package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/export"
)

// Export formats accepted by ExportAppointments.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type appointmentLister interface {
	ListAppointments(ctx context.Context, callerID string, role models.UserRole) ([]models.AppointmentView, error)
}

type renderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders a caller's appointment list as CSV or PDF.
type ExportService struct {
	appointments appointmentLister
	renderers    map[string]renderer
	logger       *zap.Logger
	now          func() time.Time
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(appointments appointmentLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		appointments: appointments,
		renderers: map[string]renderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var appointmentExportHeaders = []string{"Date", "Start", "End", "Status", "Professor", "Professor Email", "Student", "Student Email"}

// ExportAppointments renders the appointments visible to the caller in format.
func (s *ExportService) ExportAppointments(ctx context.Context, callerID string, role models.UserRole, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	views, err := s.appointments.ListAppointments(ctx, callerID, role)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(views))
	for _, view := range views {
		rows = append(rows, map[string]string{
			"Date":            view.Date,
			"Start":           view.StartTime,
			"End":             view.EndTime,
			"Status":          string(view.Status),
			"Professor":       view.Professor.Name,
			"Professor Email": view.Professor.Email,
			"Student":         view.Student.Name,
			"Student Email":   view.Student.Email,
		})
	}

	now := s.now()
	payload, err := r.Render(export.Dataset{Headers: appointmentExportHeaders, Rows: rows}, fmt.Sprintf("Appointments %s", now.Format(models.DateLayout)))
	if err != nil {
		s.logger.Error("appointment export failed", zap.String("format", format), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to render export")
	}

	return &ExportFile{
		Filename:    fmt.Sprintf("appointments_%s.%s", now.Format("20060102_150405"), r.Extension()),
		ContentType: r.ContentType(),
		Payload:     payload,
	}, nil
}
