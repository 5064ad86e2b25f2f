package twitter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// ErrorCodeRateLimitExceeded is the API error code returned alongside HTTP 429.
	ErrorCodeRateLimitExceeded = 88
	// ErrorCodeUserNotFound is returned when a user identifier no longer resolves.
	ErrorCodeUserNotFound = 50
	// ErrorCodeUserSuspended is returned for suspended accounts.
	ErrorCodeUserSuspended = 63

	apiErrorFormat           = "twitter api status %d"
	apiErrorDetailFormat     = "%s (code %d)"
	apiErrorDetailsSeparator = "; "
)

// ErrorDetail is one entry of the API error envelope.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError is returned for any non-2xx API response.
type APIError struct {
	StatusCode int           `json:"-"`
	Errors     []ErrorDetail `json:"errors"`
}

// Error implements the error interface.
func (apiError *APIError) Error() string {
	message := fmt.Sprintf(apiErrorFormat, apiError.StatusCode)
	if len(apiError.Errors) == 0 {
		return message
	}
	details := make([]string, 0, len(apiError.Errors))
	for _, detail := range apiError.Errors {
		details = append(details, fmt.Sprintf(apiErrorDetailFormat, detail.Message, detail.Code))
	}
	return message + ": " + strings.Join(details, apiErrorDetailsSeparator)
}

// HasCode reports whether the envelope carries the given error code.
func (apiError *APIError) HasCode(code int) bool {
	for _, detail := range apiError.Errors {
		if detail.Code == code {
			return true
		}
	}
	return false
}

// IsRateLimited reports whether err was caused by the API rate limiter.
func IsRateLimited(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	return apiError.StatusCode == http.StatusTooManyRequests || apiError.HasCode(ErrorCodeRateLimitExceeded)
}

// IsAPIError reports whether err originated from an API response rather than the transport.
func IsAPIError(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError)
}
