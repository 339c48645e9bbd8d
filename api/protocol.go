package api

const applyMaxBodySize = 64 * 1024 // 64 KiB

// Error codes returned in API error bodies.
const (
	codeValidation = "VALIDATION_ERROR"
	codeNotFound   = "NOT_FOUND"
	codeDuplicate  = "DUPLICATE_REQUEST"
	codeInternal   = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// applyResponse lists the resolved epic, the user story and every task in
// creation order. The epic leads even when it was reused rather than created.
type applyResponse struct {
	Created    []any `json:"created"`
	EpicReused bool  `json:"epicReused,omitempty"`
}
