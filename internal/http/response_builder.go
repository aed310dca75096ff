// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses and the
// mapping from domain errors to status codes and error bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"steady/internal/core"
	"steady/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// StoreVersion exposes the snapshot version a response was computed from.
func (b *JSONResponseBuilder) StoreVersion(v uint64) *JSONResponseBuilder {
	return b.Header("X-Store-Version", fmt.Sprint(v))
}

// Write encodes the body before touching w, so an encoding failure still
// produces a clean 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	var payload []byte
	if b.body != nil {
		var err error
		payload, err = json.Marshal(b.body)
		if err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
			http.Error(w, `{"error":{"kind":"internal","message":"response encoding failed"}}`, http.StatusInternalServerError)
			return
		}
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if payload != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(b.statusCode)
	if payload != nil {
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n"))
	}
}

type (
	ErrorBody struct {
		Error ErrorDetail `json:"error"`
	}

	ErrorDetail struct {
		Kind       string `json:"kind"`
		Field      string `json:"field,omitempty"`
		Constraint string `json:"constraint,omitempty"`
		Need       int    `json:"need,omitempty"`
		Have       int    `json:"have,omitempty"`
		Message    string `json:"message"`
	}
)

// StatusFor maps a domain error kind to an HTTP status.
func StatusFor(err error) int {
	switch core.ErrorKind(err) {
	case "overlap", "ordering":
		return http.StatusConflict
	case "insufficient_data", "validation":
		return http.StatusUnprocessableEntity
	case "invalid_configuration":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// DescribeError extracts the offending field and constraint from a typed
// domain error. Internal errors are reported without their message.
func DescribeError(err error) ErrorDetail {
	d := ErrorDetail{Kind: core.ErrorKind(err), Message: err.Error()}

	var (
		ve  *core.ValidationError
		ce  *core.InvalidConfigurationError
		ide *core.InsufficientDataError
		oe  *core.OverlapError
		ore *core.OrderingError
		nfe *core.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		d.Field, d.Constraint = ve.Field, ve.Constraint
	case errors.As(err, &ce):
		d.Field, d.Constraint = ce.Field, ce.Constraint
	case errors.As(err, &ide):
		d.Constraint, d.Need, d.Have = ide.Constraint, ide.Need, ide.Have
	case errors.As(err, &oe):
		d.Field, d.Constraint = "start", "overlaps another period in the batch"
		if oe.Existing != "" {
			d.Constraint = "overlaps period " + string(oe.Existing)
		}
	case errors.As(err, &ore):
		d.Field, d.Constraint = "start", "must not precede the end of the latest period"
	case errors.As(err, &nfe):
		d.Field = "id"
	}

	if d.Kind == "internal" {
		d.Message = "internal error"
	}
	return d
}

// ErrorResponse builds the error body for err with its mapped status.
func ErrorResponse(err error) *JSONResponseBuilder {
	return NewJSONResponse().Status(StatusFor(err)).Body(ErrorBody{Error: DescribeError(err)})
}

// writeError logs err against the request logger and writes its response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	sl := log.NewStructuredLogger(log.FromContext(r.Context()))
	sl.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
	ErrorResponse(err).Write(w)
}

// writeRateLimited is the limiter's rejection response.
func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Body(ErrorBody{Error: ErrorDetail{Kind: "rate_limited", Message: "rate limit exceeded, retry later"}}).
		Write(w)
}
