package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestRecordMapRoundTrip(t *testing.T) {
	completed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	rec := &TaskRecord{
		ID:               "b6e7c3a2-1f60-4f4e-9a0f-2f31f1d2b111",
		TraceID:          "trace-1",
		Status:           StatusCompleted,
		Progress:         100,
		Message:          "Task completed successfully",
		OriginalFilename: "meeting.wav",
		FilePath:         "/storage/uploads/b6e7/meeting.wav",
		CallbackURL:      "http://example.com/hook",
		CreatedAt:        completed.Add(-time.Hour),
		UpdatedAt:        completed,
		CompletedAt:      &completed,
	}

	got := recordFromMap(fieldMap(rec))

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.TraceID, got.TraceID)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, rec.Progress, got.Progress)
	assert.Equal(t, rec.Message, got.Message)
	assert.Equal(t, rec.OriginalFilename, got.OriginalFilename)
	assert.Equal(t, rec.FilePath, got.FilePath)
	assert.Equal(t, rec.CallbackURL, got.CallbackURL)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))
}

func TestRecordMapOmitsEmptyOptionalFields(t *testing.T) {
	rec := &TaskRecord{
		ID:        "id-1",
		Status:    StatusPending,
		Message:   "Task created",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	fields := fieldMap(rec)

	for _, key := range []string{"error", "error_code", "callback_url", "completed_at", "trace_id"} {
		_, present := fields[key]
		assert.False(t, present, "field %s should be omitted when empty", key)
	}

	got := recordFromMap(fields)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
}

func TestRecordFromMapFailedTask(t *testing.T) {
	fields := map[string]string{
		"task_id":    "id-2",
		"status":     "failed",
		"progress":   "10",
		"error":      "boom",
		"error_code": CodeProcessingFailed,
	}

	got := recordFromMap(fields)

	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, CodeProcessingFailed, got.ErrorCode)
	assert.Nil(t, got.CompletedAt)
}
