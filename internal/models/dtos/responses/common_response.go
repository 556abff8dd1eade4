package responses

import "time"

// APIResponse is the envelope every admin endpoint answers with. Status is
// "success" or "error"; Data is the endpoint-specific payload.
type APIResponse[T any] struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
	Data      *T        `json:"data,omitempty"`
}
