// Package apperr defines the error taxonomy shared by the proxy gateway, the
// upstream API clients and the HTTP layer that maps them to status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validation is a shorthand for building a *ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports missing or unusable configuration at construction time.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// Configuration is a shorthand for building a *ConfigurationError.
func Configuration(format string, args ...any) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// UpstreamHTTPError is returned when the proxied transport answered with a non-2xx status.
type UpstreamHTTPError struct {
	Status int
	Body   string
}

func (e *UpstreamHTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512]
	}
	if body == "" {
		return fmt.Sprintf("upstream status=%d", e.Status)
	}
	return fmt.Sprintf("upstream status=%d body=%s", e.Status, body)
}

// UpstreamLogicalError is returned when the upstream answered 2xx but its own
// envelope signals failure.
type UpstreamLogicalError struct {
	Message string
}

func (e *UpstreamLogicalError) Error() string {
	return e.Message
}

// NotFoundError reports an empty normalized result the HTTP layer treats as 404.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// HTTPStatus maps an error from any layer onto the status code the API answers with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var (
		validation *ValidationError
		notFound   *NotFoundError
		config     *ConfigurationError
		upHTTP     *UpstreamHTTPError
		upLogical  *UpstreamLogicalError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &config):
		return http.StatusInternalServerError
	case errors.As(err, &upHTTP), errors.As(err, &upLogical):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
