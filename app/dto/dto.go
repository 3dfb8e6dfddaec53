// Package dto defines the request and response shapes of the HTTP API
package dto

// APIResponse is the envelope every endpoint responds with
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// ErrorDetail carries a machine-readable error code and optional field details
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}
