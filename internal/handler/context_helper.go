package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-hours-api/internal/middleware"
	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/response"
)

// currentClaims writes a 401 and returns false when the JWT middleware did not run.
func currentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
