package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-hours-api/internal/service"
	"github.com/noah-isme/office-hours-api/pkg/response"
)

// AppointmentHandler exposes booking, listing, cancellation and export.
type AppointmentHandler struct {
	booking *service.BookingService
	export  *service.ExportService
}

// NewAppointmentHandler constructs the handler.
func NewAppointmentHandler(booking *service.BookingService, export *service.ExportService) *AppointmentHandler {
	return &AppointmentHandler{booking: booking, export: export}
}

// Book godoc
// @Summary Book a slot
// @Description Students claim an open slot. Concurrent claims on one slot yield a single appointment.
// @Tags Appointments
// @Produce json
// @Security BearerAuth
// @Param slotId path string true "Slot ID"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /appointment/{slotId} [post]
func (h *AppointmentHandler) Book(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	appointment, err := h.booking.BookSlot(c.Request.Context(), claims.UserID, claims.Role, c.Param("slotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Appointment booked successfully", gin.H{"appointment": appointment})
}

// List godoc
// @Summary List my appointments
// @Tags Appointments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	views, err := h.booking.ListAppointments(c.Request.Context(), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"appointments": views}, map[string]interface{}{"total": len(views)})
}

// Cancel godoc
// @Summary Cancel an appointment
// @Description The owning professor cancels an appointment and its slot becomes bookable again.
// @Tags Appointments
// @Produce json
// @Security BearerAuth
// @Param appointmentId path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /appointments/{appointmentId} [delete]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	appointment, err := h.booking.CancelAppointment(c.Request.Context(), claims.UserID, claims.Role, c.Param("appointmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Appointment cancelled successfully", gin.H{"appointment": appointment})
}

// Export godoc
// @Summary Export my appointments
// @Tags Appointments
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /appointments/export [get]
func (h *AppointmentHandler) Export(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	file, err := h.export.ExportAppointments(c.Request.Context(), claims.UserID, claims.Role, c.DefaultQuery("format", service.ExportFormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}
