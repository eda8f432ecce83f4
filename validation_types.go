package genaistream

// Severity indicates how serious a validation warning is
type Severity string

const (
	SeverityInfo    Severity = "info"    // Informational (might be expected)
	SeverityWarning Severity = "warning" // Potentially problematic
	SeverityError   Severity = "error"   // Likely to make the stream fail
)

// WarningCode is a machine-readable identifier for validation warnings
type WarningCode string

const (
	// URL warnings
	WarningCodeURLInvalid       WarningCode = "URL_INVALID"
	WarningCodeURLSchemeUnknown WarningCode = "URL_SCHEME_UNKNOWN"

	// Header warnings
	WarningCodeAcceptMissing WarningCode = "ACCEPT_MISSING"

	// Body warnings
	WarningCodeBodyNotJSON         WarningCode = "BODY_NOT_JSON"
	WarningCodeMultipartNoBoundary WarningCode = "MULTIPART_NO_BOUNDARY"
	WarningCodeContentTypeMissing  WarningCode = "CONTENT_TYPE_MISSING"
	WarningCodePayloadFieldMissing WarningCode = "PAYLOAD_FIELD_MISSING"

	// Variant and transport warnings
	WarningCodeVariantMismatch   WarningCode = "VARIANT_MISMATCH"
	WarningCodeTransportMismatch WarningCode = "TRANSPORT_MISMATCH"
	WarningCodeVariantTransport  WarningCode = "VARIANT_TRANSPORT_UNUSUAL"

	// Parameter warnings
	WarningCodeTemperatureOutOfRange  WarningCode = "TEMPERATURE_OUT_OF_RANGE"
	WarningCodeTopPOutOfRange         WarningCode = "TOP_P_OUT_OF_RANGE"
	WarningCodeTopKOutOfRange         WarningCode = "TOP_K_OUT_OF_RANGE"
	WarningCodeMaxNewTokensOutOfRange WarningCode = "MAX_NEW_TOKENS_OUT_OF_RANGE"
)

// ValidationWarning represents a potential issue that might make a stream fail.
// These are informational - the library doesn't block requests based on warnings.
// Backends are the source of truth for validation.
type ValidationWarning struct {
	Code     WarningCode // Machine-readable code
	Category string      // "url", "header", "body", "variant", "parameter"
	Field    string      // Field that might cause issues
	Value    any         // The potentially problematic value
	Message  string      // Human-readable warning
	Severity Severity    // How serious this warning is
}

// ValidationInput is what the rules look at.
type ValidationInput struct {
	Endpoint  *Endpoint      // may be nil for ad hoc requests
	Request   *StreamRequest // never nil
	Transport TransportID
	Variant   Variant
}

// ValidationRule interface allows adding custom validation logic
type ValidationRule interface {
	// Name returns a human-readable name for this rule
	Name() string

	// Check validates a request and returns warnings
	Check(in *ValidationInput) []ValidationWarning
}
