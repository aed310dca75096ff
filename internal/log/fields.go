package log

import (
	"time"

	"steady/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorKind     = "error_kind"
	FieldOperation     = "operation"
	FieldPeriodID      = "period_id"
	FieldPeriodStart   = "period_start"
	FieldPeriodEnd     = "period_end"
	FieldGross         = "gross"
	FieldStoreVersion  = "store_version"
	FieldPeriods       = "periods"
	FieldMessageType   = "message_type"
	FieldCorrelationID = "correlation_id"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentLedger  = "ledger"
	ComponentQuery   = "query"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentDigest  = "digest"
	ComponentImport  = "import"
)

// Operations defines standard operation names
const (
	OpAppend    = "append"
	OpCorrect   = "correct"
	OpQuery     = "query"
	OpForecast  = "forecast"
	OpInsights  = "insights"
	OpOverview  = "overview"
	OpPublish   = "publish"
	OpValidate  = "validate"
	OpGoal      = "goal"
	OpRecommend = "recommend"
	OpSchedule  = "schedule"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message and its caller-facing kind
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorKind] = core.ErrorKind(err)
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithPeriod adds identity, range and gross of an earnings period
func (f LogFields) WithPeriod(p core.EarningsPeriod) LogFields {
	f[FieldPeriodID] = string(p.ID)
	f[FieldPeriodStart] = p.Start.Format(time.RFC3339)
	f[FieldPeriodEnd] = p.End.Format(time.RFC3339)
	f[FieldGross] = p.Gross.StringFixed(2)
	return f
}

func (f LogFields) WithVersion(v uint64) LogFields {
	f[FieldStoreVersion] = v
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
