package dto

import (
	"time"

	"github.com/turtacn/aegis/pkg/errors"
)

// APIResponse is the envelope of every API response.
type APIResponse struct {
	Success   bool                  `json:"success"`
	Data      interface{}           `json:"data,omitempty"`
	Error     *errors.ErrorResponse `json:"error,omitempty"`
	TraceID   string                `json:"trace_id,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// SuccessResponse wraps data in a successful response.
func SuccessResponse(data interface{}, traceID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorResponse converts err into a response and its HTTP status code.
func ErrorResponse(err error, traceID string) (int, *APIResponse) {
	status, body := errors.ToErrorResponse(err)
	return status, &APIResponse{
		Success:   false,
		Error:     body,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}
