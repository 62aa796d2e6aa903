package service

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audioDiarizer/admission"
	"audioDiarizer/api/dto"
	"audioDiarizer/api/kafka"
	"audioDiarizer/metadata"
	"audioDiarizer/registry"
	"audioDiarizer/storage"
)

// ErrQueueFull signals that admission was denied at submission time. The task
// record exists and is already marked failed; the caller must re-submit.
var ErrQueueFull = errors.New("too many concurrent tasks")

const (
	downloadURLPrefix    = "/api/v1/diarize/download/"
	estimatedTimeMinutes = 15
)

type SubmitRequest struct {
	OriginalFilename string
	CallbackURL      string
	File             io.Reader
}

type TaskService struct {
	store     registry.Store
	files     *storage.Manager
	admission *admission.Controller
	producer  kafka.Producer
	topic     string
	logger    *zap.Logger
}

func NewTaskService(store registry.Store, files *storage.Manager, gate *admission.Controller, producer kafka.Producer, topic string, logger *zap.Logger) *TaskService {
	return &TaskService{
		store:     store,
		files:     files,
		admission: gate,
		producer:  producer,
		topic:     topic,
		logger:    logger,
	}
}

// Submit is the front door: it persists the upload, creates the task record
// and enqueues an executor invocation. Admission is checked once here, before
// the record exists, so the submission never counts itself against the
// ceiling; a denied task is still recorded, marked failed with QUEUE_FULL
// instead of waiting.
func (s *TaskService) Submit(ctx context.Context, traceID string, req *SubmitRequest) (*dto.UploadResponse, error) {
	taskID := uuid.New().String()

	filePath, err := s.files.SaveUpload(taskID, req.File, req.OriginalFilename)
	if err != nil {
		return nil, err
	}

	ok, err := s.admission.CanAdmit(ctx)
	if err != nil {
		return nil, err
	}

	rec := &registry.TaskRecord{
		ID:               taskID,
		TraceID:          traceID,
		Status:           registry.StatusPending,
		Message:          "File uploaded. Awaiting processing.",
		OriginalFilename: req.OriginalFilename,
		FilePath:         filePath,
		CallbackURL:      req.CallbackURL,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	if !ok {
		if err := s.store.SetError(ctx, taskID, "Too many concurrent tasks. Please try again later.", registry.CodeQueueFull); err != nil {
			s.logger.Error("Failed to mark rejected task",
				zap.String("task_id", taskID),
				zap.Error(err),
			)
		}
		return nil, ErrQueueFull
	}

	msg := &kafka.TaskMessage{
		TaskID:      taskID,
		TraceID:     traceID,
		FilePath:    filePath,
		CallbackURL: req.CallbackURL,
	}
	if err := s.producer.SendTaskMessage(ctx, s.topic, msg); err != nil {
		return nil, err
	}

	s.logger.Info("Diarization task submitted",
		zap.String("task_id", taskID),
		zap.String("trace_id", traceID),
		zap.String("filename", req.OriginalFilename),
	)

	return &dto.UploadResponse{
		TaskID:               taskID,
		Status:               string(registry.StatusPending),
		Message:              "File uploaded successfully. Processing queued.",
		EstimatedTimeMinutes: estimatedTimeMinutes,
	}, nil
}

func (s *TaskService) Status(ctx context.Context, taskID string) (*dto.StatusResponse, error) {
	rec, err := s.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, registry.ErrTaskNotFound) {
			return nil, dto.ErrTaskNotFound
		}
		return nil, err
	}
	return s.toStatusResponse(rec), nil
}

// ResultArchive returns the packaged archive path for a completed task.
func (s *TaskService) ResultArchive(ctx context.Context, taskID string) (string, error) {
	rec, err := s.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, registry.ErrTaskNotFound) {
			return "", dto.ErrTaskNotFound
		}
		return "", err
	}
	if rec.Status != registry.StatusCompleted {
		return "", dto.ErrTaskNotReady
	}

	archivePath := s.files.ArchivePath(taskID)
	if _, err := os.Stat(archivePath); err != nil {
		// Completed record without an archive on disk is a data-integrity
		// gap worth logging, not just a 404.
		s.logger.Error("Archive missing for completed task",
			zap.String("task_id", taskID),
			zap.String("archive", archivePath),
		)
		return "", dto.ErrResultNotFound
	}

	return archivePath, nil
}

// Metadata returns the structured result document for a completed task.
func (s *TaskService) Metadata(ctx context.Context, taskID string) (*metadata.ResultMetadata, error) {
	rec, err := s.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, registry.ErrTaskNotFound) {
			return nil, dto.ErrTaskNotFound
		}
		return nil, err
	}
	if rec.Status != registry.StatusCompleted {
		return nil, dto.ErrTaskNotReady
	}

	md, err := s.files.Metadata(taskID)
	if err != nil {
		if errors.Is(err, storage.ErrMetadataNotFound) {
			return nil, dto.ErrResultNotFound
		}
		return nil, err
	}

	return md, nil
}

func (s *TaskService) toStatusResponse(rec *registry.TaskRecord) *dto.StatusResponse {
	resp := &dto.StatusResponse{
		TaskID:           rec.ID,
		Status:           string(rec.Status),
		Progress:         rec.Progress,
		Message:          rec.Message,
		Error:            rec.Error,
		ErrorCode:        rec.ErrorCode,
		OriginalFilename: rec.OriginalFilename,
		CreatedAt:        rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        rec.UpdatedAt.Format(time.RFC3339),
	}

	if rec.Status == registry.StatusCompleted {
		resp.DownloadURL = downloadURLPrefix + rec.ID
	}
	if rec.CompletedAt != nil {
		formatted := rec.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &formatted
	}

	return resp
}
