// Package model holds the domain types shared across the orchestration
// pipeline, the datasource layer, and the HTTP transport.
package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// CreateThreadRequest is the request body for POST /threads.
type CreateThreadRequest struct {
	Name string `json:"name,omitempty"`
}

// PostMessageRequest is the request body for POST /threads/{id}/messages.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// PostMessageResponse is the response body for POST /threads/{id}/messages.
// ServerMessage.Metadata carries the plan and step results (when present) so
// a caller that wants the full pipeline detail can read it off the stored
// message without a separate endpoint.
type PostMessageResponse struct {
	UserMessage   Message      `json:"user_message"`
	ServerMessage Message      `json:"server_message"`
	Result        AnswerResult `json:"result"`
}

// AnswerResult mirrors orchestrator.Result in transport-friendly form. Tag
// is exactly one of rejected/clarification/answer_direct/answer/plan_error/
// execution_error; Plan and StepResults are populated only when execution
// actually ran, Confidence only when Tag is "answer".
type AnswerResult struct {
	Tag           string       `json:"tag"`
	Message       string       `json:"message"`
	Plan          *QueryPlan   `json:"plan,omitempty"`
	StepResults   []StepResult `json:"step_results,omitempty"`
	UsedDatabases []string     `json:"data_sources_used,omitempty"`
	Confidence    Confidence   `json:"confidence,omitempty"`
}

// TokenUsageResponse is the response body for GET /threads/{id}/tokens.
type TokenUsageResponse struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
	Calls        int64 `json:"calls"`
}

// UsedDatabasesResponse is the response body for GET /threads/{id}/databases.
type UsedDatabasesResponse struct {
	Databases []string `json:"databases"`
}

// DataSourceSummary is one entry of GET /data-sources.
type DataSourceSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
