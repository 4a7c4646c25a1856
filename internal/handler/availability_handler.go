package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-hours-api/internal/middleware"
	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/service"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/response"
)

// AvailabilityHandler exposes slot publication and lookup.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Publish godoc
// @Summary Publish availability
// @Description Professors publish a bookable slot. Slots of the same professor on the same date may not overlap.
// @Tags Availability
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.PublishSlotRequest true "Slot"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /availability [post]
func (h *AvailabilityHandler) Publish(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var req models.PublishSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}

	slot, err := h.service.PublishSlot(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Availability set successfully", gin.H{"availability": slot})
}

// ListForProfessor godoc
// @Summary Open slots of a professor
// @Tags Availability
// @Produce json
// @Security BearerAuth
// @Param professorId path string true "Professor ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /professor/{professorId}/availability [get]
func (h *AvailabilityHandler) ListForProfessor(c *gin.Context) {
	slots, err := h.service.ListUnbooked(c.Request.Context(), c.Param("professorId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"available_slots": slots}, middleware.ExtractMeta(c))
}
