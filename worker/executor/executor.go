// Package executor runs one task from dequeue to a terminal state.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"audioDiarizer/admission"
	"audioDiarizer/registry"
	"audioDiarizer/storage"
	"audioDiarizer/worker/analysis"
	"audioDiarizer/worker/callback"
	"audioDiarizer/worker/kafka"
)

const downloadURLPrefix = "/api/v1/diarize/download/"

type Executor struct {
	store        registry.Store
	files        *storage.Manager
	admission    *admission.Controller
	analyzer     analysis.Analyzer
	notifier     *callback.Notifier
	pollInterval time.Duration
	logger       *zap.Logger
}

func New(store registry.Store, files *storage.Manager, gate *admission.Controller, analyzer analysis.Analyzer, notifier *callback.Notifier, pollInterval time.Duration, logger *zap.Logger) *Executor {
	return &Executor{
		store:        store,
		files:        files,
		admission:    gate,
		analyzer:     analyzer,
		notifier:     notifier,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Execute advances one task through its lifecycle. Any failure between
// admission and completion ends in a failed record with PROCESSING_FAILED;
// callback delivery is the one step whose failure never surfaces.
func (e *Executor) Execute(ctx context.Context, msg *kafka.TaskMessage) error {
	log := e.logger.With(
		zap.String("task_id", msg.TaskID),
		zap.String("trace_id", msg.TraceID),
	)

	exists, err := e.store.Exists(ctx, msg.TaskID)
	if err != nil {
		return err
	}

	if !exists {
		// Re-delivery can outlive the record; recreate it so the run is tracked.
		rec := &registry.TaskRecord{
			ID:          msg.TaskID,
			TraceID:     msg.TraceID,
			Status:      registry.StatusPending,
			FilePath:    msg.FilePath,
			CallbackURL: msg.CallbackURL,
		}
		if err := e.store.Create(ctx, rec); err != nil && !errors.Is(err, registry.ErrTaskAlreadyExists) {
			return err
		}
	} else {
		rec, err := e.store.Get(ctx, msg.TaskID)
		if err != nil {
			return err
		}
		if rec.Status.Terminal() {
			log.Info("Skipping re-delivered task in terminal state",
				zap.String("status", string(rec.Status)),
			)
			return nil
		}
	}

	if err := e.waitForAdmission(ctx, msg.TaskID, log); err != nil {
		return e.fail(ctx, msg.TaskID, err, log)
	}

	if err := e.store.SetStatus(ctx, msg.TaskID, registry.StatusProcessing, 10, "Starting audio processing..."); err != nil {
		return e.fail(ctx, msg.TaskID, err, log)
	}

	progress := func(p int, message string) {
		if err := e.store.SetProgress(ctx, msg.TaskID, p, message); err != nil {
			log.Warn("Failed to report progress",
				zap.Int("progress", p),
				zap.Error(err),
			)
		}
	}

	segments, md, err := e.analyzer.Process(ctx, msg.FilePath, msg.TaskID, progress)
	if err != nil {
		return e.fail(ctx, msg.TaskID, err, log)
	}

	progress(90, "Creating result package...")

	archivePath, err := e.files.PackageResults(msg.TaskID, segments, md)
	if err != nil {
		return e.fail(ctx, msg.TaskID, err, log)
	}

	raw, err := json.Marshal(md)
	if err != nil {
		return e.fail(ctx, msg.TaskID, fmt.Errorf("encode result metadata: %w", err), log)
	}

	if err := e.store.SetCompleted(ctx, msg.TaskID, raw); err != nil {
		return e.fail(ctx, msg.TaskID, err, log)
	}

	log.Info("Task processed",
		zap.String("archive", archivePath),
		zap.Int("speakers", md.DiarizationResults.TotalSpeakers),
	)

	if msg.CallbackURL != "" {
		e.notifier.Notify(ctx, msg.CallbackURL, &callback.Payload{
			TaskID:      msg.TaskID,
			Status:      string(registry.StatusCompleted),
			DownloadURL: downloadURLPrefix + msg.TaskID,
			Metadata:    md,
		})
	}

	return nil
}

// waitForAdmission blocks until the gate admits the task. A denied task moves
// to queued and polls on a fixed interval; the wait occupies this worker's
// slot for its whole duration, which is accepted for burst smoothing. The
// task's own record is already active, so the check must be CanProceed, not
// CanAdmit.
func (e *Executor) waitForAdmission(ctx context.Context, taskID string, log *zap.Logger) error {
	ok, err := e.admission.CanProceed(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if err := e.store.SetStatus(ctx, taskID, registry.StatusQueued, 0, "Task queued. Waiting for available slot."); err != nil {
		return err
	}

	log.Info("Task queued, waiting for slot")

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ok, err := e.admission.CanProceed(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}

func (e *Executor) fail(ctx context.Context, taskID string, cause error, log *zap.Logger) error {
	if err := e.store.SetError(ctx, taskID, cause.Error(), registry.CodeProcessingFailed); err != nil {
		log.Error("Failed to record task failure", zap.Error(err))
	}
	log.Error("Task failed", zap.Error(cause))
	return cause
}
