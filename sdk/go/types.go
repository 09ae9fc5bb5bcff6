package sdk

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"skillup/core"
)

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
}

// APIError is a non-2xx response. It matches the core sentinel errors with
// errors.Is, so callers can test for core.ErrNotFound and friends.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case core.ErrInvalidInput:
		return e.Status == http.StatusBadRequest
	case core.ErrNotFound:
		return e.Status == http.StatusNotFound
	case core.ErrConflict:
		return e.Status == http.StatusConflict
	case core.ErrStoreUnavailable:
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr)
		return apiErr
	}
	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
