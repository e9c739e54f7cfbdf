package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

// isTransientStatus reports whether an HTTP status is worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// statusError classifies a non-2xx backend response.
func statusError(code int, body string) error {
	msg := fmt.Sprintf("embedding request failed with status %d", code)
	if body != "" {
		msg += ": " + truncate(body, 200)
	}
	if isTransientStatus(code) {
		return apperrors.TransientProviderError(msg, nil).WithDetail("status", fmt.Sprint(code))
	}
	return apperrors.PermanentProviderError(msg, nil).WithDetail("status", fmt.Sprint(code))
}

// transportError classifies a failure to obtain a response at all.
// Connection failures and attempt timeouts are transient; cancellation of
// the caller's context passes through unchanged.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.TransientProviderError("embedding backend unreachable", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
