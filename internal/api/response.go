package api

import (
	"errors"   // Domain error unwrapping
	"net/http" // HTTP status codes

	"bank_ledger/internal/domain" // Error kinds

	"github.com/gin-gonic/gin" // Gin web framework
)

// statusForKind maps a stable domain error kind to an HTTP status code
func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindInsufficientFunds:
		return http.StatusBadRequest
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error response for a ledger failure. Storage
// faults are reported generically so no internal detail leaks to clients.
func respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	message := "Internal error"
	var de *domain.Error
	if errors.As(err, &de) && kind != domain.KindStorageFailure {
		message = de.Message
	}
	c.JSON(statusForKind(kind), gin.H{"error": message, "kind": kind})
}
