package upstream

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
)

// GenericFailureMessage is surfaced when an error response has no message.
const GenericFailureMessage = "Request failed"

// APIError is a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Message    string
}

// Error returns the upstream message verbatim so it can be shown to the user.
func (e *APIError) Error() string {
	return e.Message
}

// errorBody is the upstream error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// newAPIError builds an APIError from a response body.
func newAPIError(status int, body []byte) *APIError {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		return &APIError{StatusCode: status, Message: GenericFailureMessage}
	}
	return &APIError{StatusCode: status, Message: eb.Error}
}

// Message extracts the user-facing message from any error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
