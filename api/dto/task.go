package dto

import "errors"

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskNotReady   = errors.New("task not completed")
	ErrResultNotFound = errors.New("result not found")
)

type UploadResponse struct {
	TaskID               string `json:"task_id"`
	Status               string `json:"status"`
	Message              string `json:"message"`
	EstimatedTimeMinutes int    `json:"estimated_time_minutes"`
}

type StatusResponse struct {
	TaskID           string  `json:"task_id"`
	Status           string  `json:"status"`
	Progress         int     `json:"progress"`
	Message          string  `json:"message,omitempty"`
	Error            string  `json:"error,omitempty"`
	ErrorCode        string  `json:"error_code,omitempty"`
	OriginalFilename string  `json:"original_filename,omitempty"`
	DownloadURL      string  `json:"download_url,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
	CompletedAt      *string `json:"completed_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
