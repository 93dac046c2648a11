package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/notesync/internal/common"
)

// HTTPError is a non-2xx answer from the remote service.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// classify attaches the common sentinels to an HTTP failure so callers can
// match on meaning rather than status codes.
func classify(err error) error {
	var he *HTTPError
	if !errors.As(err, &he) {
		return err
	}
	switch he.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", common.ErrRemoteNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", &common.CredentialExpiredError{StatusCode: he.StatusCode, Reason: he.Message}, err)
	default:
		return err
	}
}
