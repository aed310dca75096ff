package log

import (
	"context"
	"log/slog"
	"net/http"

	"steady/internal/core"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// Middleware creates HTTP middleware that adds a logger to the request context
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithLogger(r.Context(), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context, falling back to the default
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// RequestIDMiddleware adds request ID to logger context
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := extractRequestID(r)
			logger := FromContext(r.Context()).With(FieldRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPEnd logs the completion of an HTTP request at a level matching its status
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogPeriodsAppended logs a committed batch of periods
func (sl *StructuredLogger) LogPeriodsAppended(ctx context.Context, periods []core.EarningsPeriod, version uint64) {
	fields := NewFields().
		WithOperation(OpAppend).
		WithVersion(version).
		WithComponent(ComponentLedger)
	fields[FieldPeriods] = len(periods)
	if len(periods) == 1 {
		fields.WithPeriod(periods[0])
	}
	sl.logger.Logger.InfoContext(ctx, "Earnings periods appended", fields.ToSlice()...)
}

// LogCorrection logs a committed correction
func (sl *StructuredLogger) LogCorrection(ctx context.Context, rec core.CorrectionRecord, version uint64) {
	fields := NewFields().
		WithOperation(OpCorrect).
		WithVersion(version).
		WithComponent(ComponentLedger)
	fields[FieldPeriodID] = string(rec.PeriodID)
	fields["reason"] = rec.Reason
	fields["gross_before"] = rec.Before.Gross.StringFixed(2)
	fields["gross_after"] = rec.After.Gross.StringFixed(2)
	sl.logger.Logger.InfoContext(ctx, "Earnings period corrected", fields.ToSlice()...)
}

// LogError logs an error with structured context. Caller errors are logged at warn.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	level := slog.LevelError
	if core.IsCallerError(err) {
		level = slog.LevelWarn
	}
	sl.logger.Logger.Log(ctx, level, msg, allFields.ToSlice()...)
}
