package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"skillup/core"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(c *gin.Context, status int, code, msg string, details any) {
	c.AbortWithStatusJSON(status, apiError{Code: code, Message: msg, Details: details})
}

// fail maps an engine or catalog error onto an HTTP status.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, core.ErrNotFound):
		writeError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, core.ErrConflict):
		writeError(c, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, core.ErrStoreUnavailable):
		writeError(c, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable", nil)
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}
