// Package callback delivers the optional completion webhook. Delivery is
// best-effort: failures are logged and never change task state.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"audioDiarizer/metadata"
)

type Payload struct {
	TaskID      string                   `json:"task_id"`
	Status      string                   `json:"status"`
	DownloadURL string                   `json:"download_url"`
	Metadata    *metadata.ResultMetadata `json:"metadata"`
}

type Notifier struct {
	client *http.Client
	logger *zap.Logger
}

func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Notify POSTs the payload to the callback URL once. No retries.
func (n *Notifier) Notify(ctx context.Context, url string, payload *Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("Failed to encode callback payload",
			zap.String("task_id", payload.TaskID),
			zap.Error(err),
		)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("Failed to build callback request",
			zap.String("task_id", payload.TaskID),
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("Failed to send callback",
			zap.String("task_id", payload.TaskID),
			zap.String("url", url),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("Callback rejected",
			zap.String("task_id", payload.TaskID),
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return
	}

	n.logger.Info("Callback delivered",
		zap.String("task_id", payload.TaskID),
		zap.String("url", url),
	)
}
