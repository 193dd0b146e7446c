// internal/handlers/errors.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/agribazaar/agribazaar-backend/internal/services"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

// respondServiceError maps the service error taxonomy onto HTTP responses.
// Anything unrecognized is a 500 with a generic message; the original error
// is left for the request logger.
func respondServiceError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		utils.BadRequestResponse(c, validationErr.Error(), nil)
		return
	}

	var notFoundErr *services.NotFoundError
	if errors.As(err, &notFoundErr) {
		utils.NotFoundResponse(c, notFoundErr.Error())
		return
	}

	var stockErr *services.InsufficientStockError
	if errors.As(err, &stockErr) {
		utils.ConflictResponse(c, stockErr.Error())
		return
	}

	var concurrentErr *services.ConcurrentModificationError
	if errors.As(err, &concurrentErr) {
		utils.ConflictResponse(c, concurrentErr.Error())
		return
	}

	var stateErr *services.InvalidStateError
	if errors.As(err, &stateErr) {
		utils.ConflictResponse(c, stateErr.Error())
		return
	}

	var mismatchErr *services.PaymentMismatchError
	if errors.As(err, &mismatchErr) {
		utils.BadRequestResponse(c, mismatchErr.Error(), nil)
		return
	}

	var permissionErr *services.PermissionError
	if errors.As(err, &permissionErr) {
		utils.ForbiddenResponse(c, permissionErr.Error())
		return
	}

	utils.InternalErrorResponse(c, "internal server error")
}
