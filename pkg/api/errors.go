package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbwo/engine/pkg/tbworder"
)

// writeError maps an engine/domain sentinel error (§7) to an HTTP
// response. Grounded on the teacher's pkg/api/errors.go mapServiceError,
// adapted from echo.HTTPError to gin's c.JSON.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tbworder.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, tbworder.ErrPreconditionFailed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, tbworder.ErrContractViolation):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, tbworder.ErrBudgetExhausted):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, tbworder.ErrCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, tbworder.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, tbworder.ErrToolFailure), errors.Is(err, tbworder.ErrModelFailure):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		slog.Error("unexpected api error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
