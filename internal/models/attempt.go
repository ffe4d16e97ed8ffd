package models

// Attempt records one upstream request variant that was tried and failed.
// Attempts are diagnostic only and are never persisted; they are returned to
// the caller when every variant has been exhausted.
type Attempt struct {
	Label  string `json:"path"`
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
	Body   string `json:"body,omitempty"`
}
