package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"audioDiarizer/api/dto"
	"audioDiarizer/api/middleware"
	"audioDiarizer/api/service"
	"audioDiarizer/metadata"
	"audioDiarizer/registry"
)

var testFormats = []string{"wav", "mp3", "flac", "m4a", "ogg"}

type mockTaskService struct {
	submitFunc   func(ctx context.Context, traceID string, req *service.SubmitRequest) (*dto.UploadResponse, error)
	statusFunc   func(ctx context.Context, taskID string) (*dto.StatusResponse, error)
	archiveFunc  func(ctx context.Context, taskID string) (string, error)
	metadataFunc func(ctx context.Context, taskID string) (*metadata.ResultMetadata, error)
}

func (m *mockTaskService) Submit(ctx context.Context, traceID string, req *service.SubmitRequest) (*dto.UploadResponse, error) {
	if m.submitFunc != nil {
		return m.submitFunc(ctx, traceID, req)
	}
	return &dto.UploadResponse{
		TaskID:               uuid.New().String(),
		Status:               string(registry.StatusPending),
		Message:              "File uploaded successfully. Processing queued.",
		EstimatedTimeMinutes: 15,
	}, nil
}

func (m *mockTaskService) Status(ctx context.Context, taskID string) (*dto.StatusResponse, error) {
	if m.statusFunc != nil {
		return m.statusFunc(ctx, taskID)
	}
	return &dto.StatusResponse{
		TaskID:    taskID,
		Status:    string(registry.StatusCompleted),
		Progress:  100,
		CreatedAt: time.Now().Format(time.RFC3339),
		UpdatedAt: time.Now().Format(time.RFC3339),
	}, nil
}

func (m *mockTaskService) ResultArchive(ctx context.Context, taskID string) (string, error) {
	if m.archiveFunc != nil {
		return m.archiveFunc(ctx, taskID)
	}
	return "", dto.ErrResultNotFound
}

func (m *mockTaskService) Metadata(ctx context.Context, taskID string) (*metadata.ResultMetadata, error) {
	if m.metadataFunc != nil {
		return m.metadataFunc(ctx, taskID)
	}
	return nil, dto.ErrResultNotFound
}

func newTestHandler(t *testing.T, mock *mockTaskService) *TaskHandler {
	t.Helper()
	return NewTaskHandler(mock, zaptest.NewLogger(t), 100*1024*1024, testFormats)
}

func multipartUpload(t *testing.T, filename string, content []byte, callbackURL string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if callbackURL != "" {
		if err := writer.WriteField("callback_url", callbackURL); err != nil {
			t.Fatalf("Failed to write callback field: %v", err)
		}
	}
	writer.Close()

	return body, writer.FormDataContentType()
}

func withTrace(req *http.Request) *http.Request {
	traceID := uuid.New().String()
	req.Header.Set("X-Trace-ID", traceID)
	return req.WithContext(middleware.ContextWithTraceID(req.Context(), traceID))
}

func TestTaskHandler_Upload_Success(t *testing.T) {
	var gotCallback string
	mock := &mockTaskService{
		submitFunc: func(ctx context.Context, traceID string, req *service.SubmitRequest) (*dto.UploadResponse, error) {
			gotCallback = req.CallbackURL
			return &dto.UploadResponse{
				TaskID:               uuid.New().String(),
				Status:               string(registry.StatusPending),
				EstimatedTimeMinutes: 15,
			}, nil
		},
	}
	handler := newTestHandler(t, mock)

	body, contentType := multipartUpload(t, "meeting.wav", []byte("RIFF audio"), "http://example.com/hook")
	req := withTrace(httptest.NewRequest("POST", "/api/v1/diarize/upload", body))
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotCallback != "http://example.com/hook" {
		t.Errorf("Expected callback url to reach the service, got %q", gotCallback)
	}

	var resp dto.UploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.TaskID == "" {
		t.Error("Expected task_id in response")
	}
	if resp.EstimatedTimeMinutes != 15 {
		t.Errorf("Expected estimated_time_minutes 15, got %d", resp.EstimatedTimeMinutes)
	}
}

func TestTaskHandler_Upload_NoFile(t *testing.T) {
	handler := newTestHandler(t, &mockTaskService{})

	req := withTrace(httptest.NewRequest("POST", "/api/v1/diarize/upload", strings.NewReader("")))
	req.Header.Set("Content-Type", "multipart/form-data")

	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestTaskHandler_Upload_UnsupportedFormat(t *testing.T) {
	handler := newTestHandler(t, &mockTaskService{})

	body, contentType := multipartUpload(t, "malware.exe", []byte("MZ"), "")
	req := withTrace(httptest.NewRequest("POST", "/api/v1/diarize/upload", body))
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestTaskHandler_Upload_OversizedBody(t *testing.T) {
	var submitted atomic.Bool
	mock := &mockTaskService{
		submitFunc: func(ctx context.Context, traceID string, req *service.SubmitRequest) (*dto.UploadResponse, error) {
			submitted.Store(true)
			return nil, nil
		},
	}
	handler := NewTaskHandler(mock, zaptest.NewLogger(t), 1024, testFormats)

	// Well past the ceiling plus the multipart overhead allowance; the body
	// must be rejected during the read, before any file spooling.
	body, contentType := multipartUpload(t, "meeting.wav", bytes.Repeat([]byte("a"), 2<<20), "")
	req := withTrace(httptest.NewRequest("POST", "/api/v1/diarize/upload", body))
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
	if submitted.Load() {
		t.Error("Expected oversized upload never to reach the service")
	}
}

func TestTaskHandler_Upload_QueueFull(t *testing.T) {
	mock := &mockTaskService{
		submitFunc: func(ctx context.Context, traceID string, req *service.SubmitRequest) (*dto.UploadResponse, error) {
			return nil, service.ErrQueueFull
		},
	}
	handler := newTestHandler(t, mock)

	body, contentType := multipartUpload(t, "meeting.wav", []byte("RIFF audio"), "")
	req := withTrace(httptest.NewRequest("POST", "/api/v1/diarize/upload", body))
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.Upload(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rec.Code)
	}

	var resp dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Code != "QUEUE_FULL" {
		t.Errorf("Expected code QUEUE_FULL, got %s", resp.Code)
	}
}

func TestTaskHandler_Status_Success(t *testing.T) {
	taskID := uuid.New().String()
	handler := newTestHandler(t, &mockTaskService{})

	req := withTrace(httptest.NewRequest("GET", "/api/v1/diarize/status/"+taskID, nil))
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if contentType := rec.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}
}

func TestTaskHandler_Status_NotFound(t *testing.T) {
	mock := &mockTaskService{
		statusFunc: func(ctx context.Context, taskID string) (*dto.StatusResponse, error) {
			return nil, dto.ErrTaskNotFound
		},
	}
	handler := newTestHandler(t, mock)

	req := withTrace(httptest.NewRequest("GET", "/api/v1/diarize/status/"+uuid.New().String(), nil))
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestTaskHandler_Status_EmptyTaskID(t *testing.T) {
	handler := newTestHandler(t, &mockTaskService{})

	req := withTrace(httptest.NewRequest("GET", "/api/v1/diarize/status/", nil))
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestTaskHandler_Download_NotReady(t *testing.T) {
	mock := &mockTaskService{
		archiveFunc: func(ctx context.Context, taskID string) (string, error) {
			return "", dto.ErrTaskNotReady
		},
	}
	handler := newTestHandler(t, mock)

	req := withTrace(httptest.NewRequest("GET", "/api/v1/diarize/download/"+uuid.New().String(), nil))
	rec := httptest.NewRecorder()
	handler.Download(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
}

func TestTaskHandler_Metadata_Success(t *testing.T) {
	taskID := uuid.New().String()
	mock := &mockTaskService{
		metadataFunc: func(ctx context.Context, id string) (*metadata.ResultMetadata, error) {
			return &metadata.ResultMetadata{
				TaskID: id,
				DiarizationResults: metadata.DiarizationResults{
					TotalSpeakers: 2,
					TotalSegments: 5,
				},
			}, nil
		},
	}
	handler := newTestHandler(t, mock)

	req := withTrace(httptest.NewRequest("GET", "/api/v1/diarize/metadata/"+taskID, nil))
	rec := httptest.NewRecorder()
	handler.Metadata(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var md metadata.ResultMetadata
	if err := json.NewDecoder(rec.Body).Decode(&md); err != nil {
		t.Fatalf("Failed to decode metadata: %v", err)
	}
	if md.TaskID != taskID {
		t.Errorf("Expected task_id %s, got %s", taskID, md.TaskID)
	}
	if md.DiarizationResults.TotalSpeakers != 2 {
		t.Errorf("Expected 2 speakers, got %d", md.DiarizationResults.TotalSpeakers)
	}
}

func TestTaskHandler_Metadata_NotFound(t *testing.T) {
	mock := &mockTaskService{
		metadataFunc: func(ctx context.Context, taskID string) (*metadata.ResultMetadata, error) {
			return nil, dto.ErrTaskNotFound
		},
	}
	handler := newTestHandler(t, mock)

	req := withTrace(httptest.NewRequest("GET", "/api/v1/diarize/metadata/"+uuid.New().String(), nil))
	rec := httptest.NewRecorder()
	handler.Metadata(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}
