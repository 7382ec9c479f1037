package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldPeriodLabel = "period_label"
	FieldVersion     = "version"
	FieldClosingID   = "closing_id"
	FieldSource      = "source"
	FieldRowCount    = "row_count"
	FieldSkippedRows = "skipped_rows"
	FieldArtifact    = "artifact"
	FieldDriveFileID = "drive_file_id"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentClosing = "closing"
	ComponentHistory = "history"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentDrive   = "drive"
)

// Operations defines standard operation names
const (
	OpParse    = "parse"
	OpRun      = "run"
	OpSave     = "save"
	OpList     = "list"
	OpSync     = "sync"
	OpUpload   = "upload"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
