// Package storage owns the on-disk layout for uploads, per-task processed
// output and packaged result archives.
package storage

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"audioDiarizer/metadata"
)

var ErrMetadataNotFound = errors.New("metadata not found")

const metadataFilename = "metadata.json"

type Manager struct {
	uploadsDir   string
	processedDir string
	tempDir      string
	logger       *zap.Logger
}

func NewManager(baseDir string, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		uploadsDir:   filepath.Join(baseDir, "uploads"),
		processedDir: filepath.Join(baseDir, "processed"),
		tempDir:      filepath.Join(baseDir, "temp"),
		logger:       logger,
	}

	for _, dir := range []string{m.uploadsDir, m.processedDir, m.tempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}

	return m, nil
}

// SaveUpload writes the inbound stream to the task's upload directory. Bytes
// land in a temp file first and are renamed into place only after a full
// flush, so a partial write is never visible under the final name.
func (m *Manager) SaveUpload(taskID string, src io.Reader, filename string) (string, error) {
	taskDir := filepath.Join(m.uploadsDir, taskID)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir for task %s: %w", taskID, err)
	}

	finalPath := filepath.Join(taskDir, filepath.Base(filename))

	tmp, err := os.CreateTemp(taskDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp upload for task %s: %w", taskID, err)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload for task %s: %w", taskID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("flush upload for task %s: %w", taskID, err)
	}

	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("finalize upload for task %s: %w", taskID, err)
	}

	m.logger.Info("Upload saved",
		zap.String("task_id", taskID),
		zap.String("path", finalPath),
	)

	return finalPath, nil
}

func (m *Manager) UploadPath(taskID string) string {
	return filepath.Join(m.uploadsDir, taskID)
}

// ProcessedPath returns the task's output directory, creating it if absent.
func (m *Manager) ProcessedPath(taskID string) (string, error) {
	dir := filepath.Join(m.processedDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create processed dir for task %s: %w", taskID, err)
	}
	return dir, nil
}

// ArchivePath returns the deterministic archive location for a task. The name
// embeds the task id so retrieval needs no lookup table.
func (m *Manager) ArchivePath(taskID string) string {
	return filepath.Join(m.processedDir, taskID, fmt.Sprintf("results_%s.zip", taskID))
}

// PackageResults writes the metadata document next to the segment files and
// bundles everything into a single compressed archive. Segment entries live
// under their speaker subdirectory inside the archive.
func (m *Manager) PackageResults(taskID string, segmentsBySpeaker map[string][]string, md *metadata.ResultMetadata) (string, error) {
	processedDir, err := m.ProcessedPath(taskID)
	if err != nil {
		return "", err
	}

	doc, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata for task %s: %w", taskID, err)
	}

	metadataPath := filepath.Join(processedDir, metadataFilename)
	if err := os.WriteFile(metadataPath, doc, 0o644); err != nil {
		return "", fmt.Errorf("write metadata for task %s: %w", taskID, err)
	}

	archivePath := m.ArchivePath(taskID)

	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("create archive for task %s: %w", taskID, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	if err := addArchiveEntry(zw, metadataPath, metadataFilename); err != nil {
		zw.Close()
		return "", fmt.Errorf("package metadata for task %s: %w", taskID, err)
	}

	speakers := make([]string, 0, len(segmentsBySpeaker))
	for speakerID := range segmentsBySpeaker {
		speakers = append(speakers, speakerID)
	}
	sort.Strings(speakers)

	for _, speakerID := range speakers {
		for _, segmentPath := range segmentsBySpeaker[speakerID] {
			entry := speakerID + "/" + filepath.Base(segmentPath)
			if err := addArchiveEntry(zw, segmentPath, entry); err != nil {
				zw.Close()
				return "", fmt.Errorf("package segment %s for task %s: %w", entry, taskID, err)
			}
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize archive for task %s: %w", taskID, err)
	}

	m.logger.Info("Result archive created",
		zap.String("task_id", taskID),
		zap.String("archive", archivePath),
	)

	return archivePath, nil
}

func addArchiveEntry(zw *zip.Writer, srcPath, name string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}

	_, err = io.Copy(w, src)
	return err
}

// Metadata reads the serialized metadata document from the processed
// directory, or ErrMetadataNotFound if the task has none.
func (m *Manager) Metadata(taskID string) (*metadata.ResultMetadata, error) {
	raw, err := os.ReadFile(filepath.Join(m.processedDir, taskID, metadataFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMetadataNotFound
		}
		return nil, fmt.Errorf("read metadata for task %s: %w", taskID, err)
	}

	var md metadata.ResultMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("decode metadata for task %s: %w", taskID, err)
	}

	return &md, nil
}

// CleanupTask removes the upload and processed directories for a task.
// Idempotent: cleaning an unknown or already-cleaned task is a no-op.
func (m *Manager) CleanupTask(taskID string) error {
	for _, dir := range []string{m.UploadPath(taskID), filepath.Join(m.processedDir, taskID)} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("cleanup task %s: %w", taskID, err)
		}
		m.logger.Info("Removed task directory",
			zap.String("task_id", taskID),
			zap.String("dir", dir),
		)
	}
	return nil
}

// SweepExpired deletes processed-task directories whose last modification is
// older than the retention window.
func (m *Manager) SweepExpired(retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(m.processedDir)
	if err != nil {
		return fmt.Errorf("scan processed dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := m.CleanupTask(entry.Name()); err != nil {
			m.logger.Warn("Retention sweep failed for task",
				zap.String("task_id", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		m.logger.Info("Retention sweep removed expired task",
			zap.String("task_id", entry.Name()),
			zap.Time("last_modified", info.ModTime()),
		)
	}

	return nil
}
