package errors

// represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`             // error code (e.g., "not_found")
	Message string `json:"message"`           // user-friendly message
	Details string `json:"details,omitempty"` // optional details (sanitized in production)
}

// standard error codes
const (
	CodeNotFound        = "not_found"
	CodeBadRequest      = "bad_request"
	CodeServerError     = "server_error"
	CodeTooManyRequests = "too_many_requests"
)
