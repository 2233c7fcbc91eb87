package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldNetwork      = "network"
	FieldSubUnit      = "sub_unit"
	FieldSubUnitAddr  = "sub_unit_address"
	FieldProposalID   = "proposal_id"
	FieldRecipient    = "recipient"
	FieldDenom        = "denom"
	FieldAmount       = "amount"
	FieldMessageKind  = "message_kind"
	FieldJobID        = "job_id"
	FieldProposals    = "proposals"
	FieldPayments     = "payments"
	FieldUnrecognized = "unrecognized"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentIndexer = "indexer"
	ComponentExtract = "extract"
	ComponentReport  = "report"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentExport  = "export"
	ComponentTokens  = "tokens"
	ComponentPrices  = "prices"
)

// Operations defines standard operation names
const (
	OpFetch    = "fetch"
	OpExtract  = "extract"
	OpStore    = "store"
	OpReport   = "report"
	OpRefresh  = "refresh"
	OpExportOp = "export"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
