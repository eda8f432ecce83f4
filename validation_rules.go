package genaistream

import (
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultParamLimits returns the limits used when an endpoint carries none.
func DefaultParamLimits() ParamLimits {
	return ParamLimits{
		TemperatureMin:  0.0,
		TemperatureMax:  2.0,
		TopPMin:         0.0,
		TopPMax:         1.0,
		TopKMin:         1,
		TopKMax:         1000,
		MaxNewTokensMax: 8192,
	}
}

// URLValidationRule checks that the URL is absolute with a known scheme
type URLValidationRule struct{}

func (r *URLValidationRule) Name() string {
	return "URL Validation"
}

func (r *URLValidationRule) Check(in *ValidationInput) []ValidationWarning {
	var warnings []ValidationWarning

	u, err := url.Parse(in.Request.URL)
	if err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "") {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeURLInvalid,
			Category: "url",
			Field:    "url",
			Value:    in.Request.URL,
			Message:  fmt.Sprintf("URL %q is not absolute (check the environment)", in.Request.URL),
			Severity: SeverityError,
		})
		return warnings
	}

	switch {
	case u.Scheme == "http" || u.Scheme == "https":
	case u.Scheme == "lorem" && in.Transport == TransportLorem:
	default:
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeURLSchemeUnknown,
			Category: "url",
			Field:    "url",
			Value:    u.Scheme,
			Message:  fmt.Sprintf("Scheme %s is not supported by the %s transport", u.Scheme, in.Transport),
			Severity: SeverityError,
		})
	}

	return warnings
}

// HeaderValidationRule checks the Accept header of framed streams
type HeaderValidationRule struct{}

func (r *HeaderValidationRule) Name() string {
	return "Header Validation"
}

func (r *HeaderValidationRule) Check(in *ValidationInput) []ValidationWarning {
	var warnings []ValidationWarning

	if !in.Variant.IsFramed() || in.Transport == TransportLorem {
		return warnings
	}
	if in.Endpoint != nil && !in.Endpoint.Streaming {
		return warnings
	}

	accept := in.Request.Header("Accept")
	if !strings.Contains(accept, ContentTypeEventStream) {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeAcceptMissing,
			Category: "header",
			Field:    "Accept",
			Value:    accept,
			Message:  fmt.Sprintf("Variant %s expects an event stream but Accept is %q", in.Variant, accept),
			Severity: SeverityInfo,
		})
	}

	return warnings
}

// BodyValidationRule checks that the body matches its content type
type BodyValidationRule struct{}

func (r *BodyValidationRule) Name() string {
	return "Body Validation"
}

func (r *BodyValidationRule) Check(in *ValidationInput) []ValidationWarning {
	var warnings []ValidationWarning

	req := in.Request
	if len(req.Body) == 0 {
		return warnings
	}

	contentType := req.Header("Content-Type")
	if contentType == "" {
		contentType = req.ContentType
	}
	if contentType == "" {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeContentTypeMissing,
			Category: "body",
			Field:    "Content-Type",
			Value:    len(req.Body),
			Message:  "Request has a body but no Content-Type",
			Severity: SeverityWarning,
		})
		return warnings
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	switch mediaType {
	case ContentTypeJSON:
		if !gjson.ValidBytes(req.Body) || !gjson.ParseBytes(req.Body).IsObject() {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeBodyNotJSON,
				Category: "body",
				Field:    "body",
				Value:    clip(string(req.Body)),
				Message:  "Content-Type is JSON but the body is not a JSON object",
				Severity: SeverityError,
			})
			return warnings
		}
		if field := payloadField(in.Endpoint); field != "" && !gjson.GetBytes(req.Body, field).Exists() {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodePayloadFieldMissing,
				Category: "body",
				Field:    field,
				Value:    nil,
				Message:  fmt.Sprintf("Endpoint %s reads the prompt from %q which is missing", in.Endpoint.Name, field),
				Severity: SeverityWarning,
			})
		}

	case "multipart/form-data":
		if params["boundary"] == "" {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeMultipartNoBoundary,
				Category: "body",
				Field:    "Content-Type",
				Value:    contentType,
				Message:  "Multipart body without a boundary parameter",
				Severity: SeverityError,
			})
		}
	}

	return warnings
}

func payloadField(ep *Endpoint) string {
	if ep == nil || ep.Multipart {
		return ""
	}
	if ep.PayloadField == "" {
		return "messages"
	}
	return ep.PayloadField
}

// VariantValidationRule checks the variant and transport against the endpoint
type VariantValidationRule struct{}

func (r *VariantValidationRule) Name() string {
	return "Variant Validation"
}

func (r *VariantValidationRule) Check(in *ValidationInput) []ValidationWarning {
	var warnings []ValidationWarning

	if in.Endpoint != nil {
		if in.Endpoint.Variant != in.Variant {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeVariantMismatch,
				Category: "variant",
				Field:    "variant",
				Value:    in.Variant,
				Message:  fmt.Sprintf("Endpoint %s streams %s, decoding as %s", in.Endpoint.Name, in.Endpoint.Variant, in.Variant),
				Severity: SeverityWarning,
			})
		}
		if in.Endpoint.Transport != in.Transport && in.Transport != TransportLorem {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeTransportMismatch,
				Category: "variant",
				Field:    "transport",
				Value:    in.Transport,
				Message:  fmt.Sprintf("Endpoint %s is configured for %s, opened with %s", in.Endpoint.Name, in.Endpoint.Transport, in.Transport),
				Severity: SeverityInfo,
			})
		}
	}

	// the SSE transport removes framing; byte-string lines are not SSE frames
	if in.Transport == TransportSSE && (in.Variant == VariantByteStringSSE || in.Variant == VariantRawText) {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeVariantTransport,
			Category: "variant",
			Field:    "variant",
			Value:    in.Variant,
			Message:  fmt.Sprintf("Variant %s is usually read with the fetch transport", in.Variant),
			Severity: SeverityInfo,
		})
	}

	return warnings
}

// ParameterValidationRule checks parameter range warnings in a JSON body
type ParameterValidationRule struct {
	defaults ParamLimits
}

func (r *ParameterValidationRule) Name() string {
	return "Parameter Validation"
}

func (r *ParameterValidationRule) Check(in *ValidationInput) []ValidationWarning {
	var warnings []ValidationWarning

	body := in.Request.Body
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return warnings
	}

	constraints := r.defaults
	if in.Endpoint != nil && in.Endpoint.Limits != (ParamLimits{}) {
		constraints = in.Endpoint.Limits
	}

	// Check temperature
	if v := gjson.GetBytes(body, "temperature"); v.Type == gjson.Number {
		temp := v.Float()
		if temp < constraints.TemperatureMin || temp > constraints.TemperatureMax {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeTemperatureOutOfRange,
				Category: "parameter",
				Field:    "temperature",
				Value:    temp,
				Message:  fmt.Sprintf("Temperature %.2f outside recommended range [%.2f, %.2f]", temp, constraints.TemperatureMin, constraints.TemperatureMax),
				Severity: SeverityWarning,
			})
		}
	}

	// Check top_p
	if v := gjson.GetBytes(body, "top_p"); v.Type == gjson.Number {
		topP := v.Float()
		if topP < constraints.TopPMin || topP > constraints.TopPMax {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeTopPOutOfRange,
				Category: "parameter",
				Field:    "top_p",
				Value:    topP,
				Message:  fmt.Sprintf("TopP %.2f outside recommended range [%.2f, %.2f]", topP, constraints.TopPMin, constraints.TopPMax),
				Severity: SeverityWarning,
			})
		}
	}

	// Check top_k
	if v := gjson.GetBytes(body, "top_k"); v.Type == gjson.Number {
		topK := int(v.Int())
		if topK < constraints.TopKMin || topK > constraints.TopKMax {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeTopKOutOfRange,
				Category: "parameter",
				Field:    "top_k",
				Value:    topK,
				Message:  fmt.Sprintf("TopK %d outside recommended range [%d, %d]", topK, constraints.TopKMin, constraints.TopKMax),
				Severity: SeverityWarning,
			})
		}
	}

	// Check max_new_tokens
	if v := gjson.GetBytes(body, "max_new_tokens"); v.Type == gjson.Number && constraints.MaxNewTokensMax > 0 {
		maxTokens := int(v.Int())
		if maxTokens > constraints.MaxNewTokensMax {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeMaxNewTokensOutOfRange,
				Category: "parameter",
				Field:    "max_new_tokens",
				Value:    maxTokens,
				Message:  fmt.Sprintf("max_new_tokens %d above maximum %d (will likely fail)", maxTokens, constraints.MaxNewTokensMax),
				Severity: SeverityError,
			})
		}
	}

	return warnings
}
