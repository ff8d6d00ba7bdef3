package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cloudmirror/cloudmirror/models"
)

// outcomeError converts a wire outcome into the domain error callers branch
// on with errors.Is / errors.As. Returns nil for OutcomeOK.
func outcomeError(w models.WireOutcome) error {
	switch w.Code {
	case models.OutcomeOK:
		return nil
	case models.OutcomeConflict:
		return &ConflictError{Server: w.Record}
	case models.OutcomeRateLimited:
		retry := time.Duration(w.RetryAfterSeconds) * time.Second
		if retry <= 0 {
			retry = 30 * time.Second
		}
		return &RateLimitError{RetryAfter: retry}
	case models.OutcomeZoneNotFound:
		return &ZoneLossError{EncryptedDataReset: w.EncryptedDataReset}
	case models.OutcomeNotFound:
		return fmt.Errorf("%w: %s", ErrRecordNotFound, w.ID.Name)
	case models.OutcomeCancelled:
		return ErrCancelled
	default:
		if w.Message != "" {
			return errors.New(w.Message)
		}
		return fmt.Errorf("record store error for %s", w.ID.Name)
	}
}

// mapHTTPError converts a request-level response into a domain error.
// Per-record outcomes inside a 200 response are handled by outcomeError.
func mapHTTPError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))

	switch code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	case http.StatusNotFound:
		if strings.Contains(strings.ToLower(body), "zone") {
			return &ZoneLossError{}
		}
		return ErrRecordNotFound
	}

	if body == "" {
		body = http.StatusText(code)
	}
	return fmt.Errorf("http %d: %s", code, body)
}

func retryAfter(resp *resty.Response) time.Duration {
	if v := resp.Header().Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 30 * time.Second
}

// IsTransient reports whether the error is worth an in-place transport
// retry (as opposed to the pause-until path driven by RateLimitError).
func IsTransient(err error) bool {
	var rle *RateLimitError
	var cfe *ConflictError
	if errors.As(err, &rle) || errors.As(err, &cfe) {
		return false
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrZoneNotFound) || errors.Is(err, ErrRecordNotFound) {
		return false
	}
	return true
}
