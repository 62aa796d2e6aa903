package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"audioDiarizer/api/dto"
	"audioDiarizer/api/middleware"
	"audioDiarizer/api/service"
	"audioDiarizer/api/validation"
	"audioDiarizer/metadata"
)

// TaskService is the slice of the submission service the handlers need.
type TaskService interface {
	Submit(ctx context.Context, traceID string, req *service.SubmitRequest) (*dto.UploadResponse, error)
	Status(ctx context.Context, taskID string) (*dto.StatusResponse, error)
	ResultArchive(ctx context.Context, taskID string) (string, error)
	Metadata(ctx context.Context, taskID string) (*metadata.ResultMetadata, error)
}

type TaskHandler struct {
	service        TaskService
	logger         *zap.Logger
	maxFileSize    int64
	allowedFormats []string
}

func NewTaskHandler(service TaskService, logger *zap.Logger, maxFileSize int64, allowedFormats []string) *TaskHandler {
	return &TaskHandler{
		service:        service,
		logger:         logger,
		maxFileSize:    maxFileSize,
		allowedFormats: allowedFormats,
	}
}

// multipartOverhead covers boundaries and non-file form fields on top of the
// file-size ceiling.
const multipartOverhead = 1 << 20

func (h *TaskHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	// Cap the body during the read; otherwise an oversized upload is spooled
	// to disk in full before the size check ever sees it.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleError(w, validation.ErrFileTooLarge.Error(), err, traceID, http.StatusBadRequest, "")
			return
		}
		h.handleError(w, "Failed to parse form", err, traceID, http.StatusBadRequest, "")
		return
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		h.handleError(w, "Failed to get file", err, traceID, http.StatusBadRequest, "")
		return
	}
	defer file.Close()

	if err := validation.ValidateUpload(header.Filename, header.Size, h.maxFileSize, h.allowedFormats); err != nil {
		h.handleError(w, err.Error(), err, traceID, http.StatusBadRequest, "")
		return
	}

	req := &service.SubmitRequest{
		OriginalFilename: validation.SanitizeFilename(header.Filename),
		CallbackURL:      r.FormValue("callback_url"),
		File:             file,
	}

	resp, err := h.service.Submit(r.Context(), traceID, req)
	if err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			h.handleError(w, "Too many concurrent tasks. Please try again later.", err, traceID, http.StatusTooManyRequests, "QUEUE_FULL")
			return
		}
		h.handleError(w, "Failed to create task", err, traceID, http.StatusInternalServerError, "")
		return
	}

	h.logger.Info("File uploaded",
		zap.String("trace_id", traceID),
		zap.String("task_id", resp.TaskID),
		zap.String("filename", header.Filename),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/diarize/status/")
	if taskID == "" {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest, "")
		return
	}

	resp, err := h.service.Status(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, dto.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound, "")
			return
		}
		h.handleError(w, "Failed to get task status", err, traceID, http.StatusInternalServerError, "")
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) Download(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/diarize/download/")
	if taskID == "" {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest, "")
		return
	}

	archivePath, err := h.service.ResultArchive(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, dto.ErrTaskNotFound):
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound, "")
		case errors.Is(err, dto.ErrTaskNotReady):
			h.handleError(w, "Task not completed", err, traceID, http.StatusConflict, "")
		case errors.Is(err, dto.ErrResultNotFound):
			h.handleError(w, "Results not found", err, traceID, http.StatusNotFound, "")
		default:
			h.handleError(w, "Failed to get results", err, traceID, http.StatusInternalServerError, "")
		}
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="diarization_results_%s.zip"`, taskID))
	http.ServeFile(w, r, archivePath)
}

func (h *TaskHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/diarize/metadata/")
	if taskID == "" {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest, "")
		return
	}

	md, err := h.service.Metadata(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, dto.ErrTaskNotFound):
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound, "")
		case errors.Is(err, dto.ErrTaskNotReady):
			h.handleError(w, "Task not completed", err, traceID, http.StatusConflict, "")
		case errors.Is(err, dto.ErrResultNotFound):
			h.handleError(w, "Metadata not found", err, traceID, http.StatusNotFound, "")
		default:
			h.handleError(w, "Failed to get metadata", err, traceID, http.StatusInternalServerError, "")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, md)
}

func (h *TaskHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int, code string) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
