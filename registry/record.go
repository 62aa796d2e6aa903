package registry

import (
	"strconv"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusQueued     TaskStatus = "queued"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

const (
	CodeQueueFull        = "QUEUE_FULL"
	CodeProcessingFailed = "PROCESSING_FAILED"
)

type TaskRecord struct {
	ID               string
	TraceID          string
	Status           TaskStatus
	Progress         int
	Message          string
	Error            string
	ErrorCode        string
	OriginalFilename string
	FilePath         string
	CallbackURL      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

const timeLayout = time.RFC3339Nano

// fieldMap flattens a record into the string fields stored in the task hash.
// Optional fields are omitted when empty so the hash stays a sparse flat map.
func fieldMap(rec *TaskRecord) map[string]string {
	fields := map[string]string{
		"task_id":    rec.ID,
		"status":     string(rec.Status),
		"progress":   strconv.Itoa(rec.Progress),
		"message":    rec.Message,
		"created_at": rec.CreatedAt.Format(timeLayout),
		"updated_at": rec.UpdatedAt.Format(timeLayout),
	}

	if rec.TraceID != "" {
		fields["trace_id"] = rec.TraceID
	}
	if rec.Error != "" {
		fields["error"] = rec.Error
	}
	if rec.ErrorCode != "" {
		fields["error_code"] = rec.ErrorCode
	}
	if rec.OriginalFilename != "" {
		fields["original_filename"] = rec.OriginalFilename
	}
	if rec.FilePath != "" {
		fields["file_path"] = rec.FilePath
	}
	if rec.CallbackURL != "" {
		fields["callback_url"] = rec.CallbackURL
	}
	if rec.CompletedAt != nil {
		fields["completed_at"] = rec.CompletedAt.Format(timeLayout)
	}

	return fields
}

func recordFromMap(fields map[string]string) *TaskRecord {
	rec := &TaskRecord{
		ID:               fields["task_id"],
		TraceID:          fields["trace_id"],
		Status:           TaskStatus(fields["status"]),
		Message:          fields["message"],
		Error:            fields["error"],
		ErrorCode:        fields["error_code"],
		OriginalFilename: fields["original_filename"],
		FilePath:         fields["file_path"],
		CallbackURL:      fields["callback_url"],
	}

	if v, err := strconv.Atoi(fields["progress"]); err == nil {
		rec.Progress = v
	}
	if t, err := time.Parse(timeLayout, fields["created_at"]); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(timeLayout, fields["updated_at"]); err == nil {
		rec.UpdatedAt = t
	}
	if raw, ok := fields["completed_at"]; ok {
		if t, err := time.Parse(timeLayout, raw); err == nil {
			rec.CompletedAt = &t
		}
	}

	return rec
}
