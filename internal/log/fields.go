package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldResource    = "resource"
	FieldRecordID    = "record_id"
	FieldUserID      = "user_id"
	FieldFilter      = "filter"
	FieldGeneration  = "generation"
	FieldGroups      = "groups"
	FieldRecords     = "records"
	FieldAccountType = "account_type"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentAPI          = "api"
	ComponentSession      = "session"
	ComponentAggregate    = "aggregate"
	ComponentLedger       = "ledger"
	ComponentSubscription = "subscription"
	ComponentEvents       = "events"
	ComponentReport       = "report"
	ComponentCache        = "cache"
	ComponentWatch        = "watch"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpGrouped  = "list_grouped"
	OpLogin    = "login"
	OpLogout   = "logout"
	OpSync     = "sync"
	OpExport   = "export"
	OpValidate = "validate"
	OpPublish  = "publish"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRecord adds the resource name and record id
func (f LogFields) WithRecord(resource, id string) LogFields {
	f[FieldResource] = resource
	if id != "" {
		f[FieldRecordID] = id
	}
	return f
}

// WithRequest adds outgoing request fields
func (f LogFields) WithRequest(method, path string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	return f
}

// WithResponse adds response fields
func (f LogFields) WithResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode == 200
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
