package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	contractdomain "github.com/viewdeal/viewdeal/internal/contract/domain"
	"github.com/viewdeal/viewdeal/internal/providers/billing"
	revenuedomain "github.com/viewdeal/viewdeal/internal/revenue/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

// ErrorHandlingMiddleware turns errors attached to the gin context into one
// JSON error response. Handlers push errors and abort; mapping lives here.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, contractdomain.ErrContractNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "contract not found",
		}
	case errors.Is(err, contractdomain.ErrStateConflict),
		errors.Is(err, contractdomain.ErrNotAccepted):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, contractdomain.ErrInvalidParty),
		errors.Is(err, contractdomain.ErrSameParty),
		errors.Is(err, contractdomain.ErrInvalidVideo),
		errors.Is(err, contractdomain.ErrInvalidModel),
		errors.Is(err, contractdomain.ErrInvalidRate),
		errors.Is(err, contractdomain.ErrInvalidCurrency),
		errors.Is(err, revenuedomain.ErrInvalidContract):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, contractdomain.ErrBillingFailed),
		errors.Is(err, billing.ErrCreateFailed),
		errors.Is(err, billing.ErrReportFailed):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "billing provider unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
