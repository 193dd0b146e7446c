// internal/handlers/context.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

// currentUserID resolves the authenticated user's id from the gin context.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	idStr, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func currentUserRole(c *gin.Context) (models.UserRole, bool) {
	roleStr, ok := utils.GetUserRoleFromContext(c)
	if !ok {
		return "", false
	}
	return models.UserRole(roleStr), true
}
