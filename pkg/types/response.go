package types

// SuccessEnvelope wraps every 2xx body: {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the shopper-facing error body. Message is safe to render in
// the storefront; Details only carries field errors and unorderable cart lines.
// RequestID echoes X-Request-Id so support can find the matching log line.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorEnvelope wraps every non-2xx body: {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
