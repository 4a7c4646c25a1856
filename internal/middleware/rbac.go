package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/office-hours-api/internal/models"
	appErrors "github.com/noah-isme/office-hours-api/pkg/errors"
	"github.com/noah-isme/office-hours-api/pkg/response"
)

// RequireRoles rejects callers whose role is not listed. It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return requireRoles(appErrors.ErrForbidden, roles)
}

// RequireRolesWithMessage is RequireRoles with a custom 403 message.
func RequireRolesWithMessage(message string, roles ...models.UserRole) gin.HandlerFunc {
	return requireRoles(appErrors.Clone(appErrors.ErrForbidden, message), roles)
}

func requireRoles(denied *appErrors.Error, roles []models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Abort(c, denied)
			return
		}
		c.Next()
	}
}
