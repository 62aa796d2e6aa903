// Package analysis wraps the external diarization engine. The engine itself
// is an opaque collaborator: a command that splits an audio file into
// per-speaker segment files and describes them in a JSON manifest on stdout.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"audioDiarizer/metadata"
	"audioDiarizer/storage"
)

// ProgressFunc receives checkpoint updates while an analysis runs.
type ProgressFunc func(progress int, message string)

// Analyzer produces per-speaker segment files and the result document for one
// task. Segment paths are grouped by speaker id.
type Analyzer interface {
	Process(ctx context.Context, inputPath, taskID string, progress ProgressFunc) (map[string][]string, *metadata.ResultMetadata, error)
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (stderr: %s)", name, err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// manifest is the wire format the external engine writes on stdout. Segment
// file names are relative to the output directory.
type manifest struct {
	AudioInfo             metadata.AudioInfo `json:"audio_info"`
	ProcessingTimeSeconds float64            `json:"processing_time_seconds"`
	Speakers              []manifestSpeaker  `json:"speakers"`
}

type manifestSpeaker struct {
	SpeakerID string            `json:"speaker_id"`
	Segments  []manifestSegment `json:"segments"`
}

type manifestSegment struct {
	File       string  `json:"file"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type CommandAnalyzer struct {
	command string
	files   *storage.Manager
	runner  commandRunner
	logger  *zap.Logger
}

func NewCommandAnalyzer(command string, files *storage.Manager, logger *zap.Logger) *CommandAnalyzer {
	return &CommandAnalyzer{
		command: command,
		files:   files,
		runner:  &execRunner{},
		logger:  logger,
	}
}

func (a *CommandAnalyzer) Process(ctx context.Context, inputPath, taskID string, progress ProgressFunc) (map[string][]string, *metadata.ResultMetadata, error) {
	progress(20, "Loading audio file...")

	outDir, err := a.files.ProcessedPath(taskID)
	if err != nil {
		return nil, nil, err
	}

	progress(50, "Running speaker diarization...")

	a.logger.Info("Starting diarization",
		zap.String("task_id", taskID),
		zap.String("input", inputPath),
		zap.String("command", a.command),
	)

	out, err := a.runner.Run(ctx, a.command,
		"--input", inputPath,
		"--output", outDir,
		"--manifest", "-",
	)
	if err != nil {
		return nil, nil, fmt.Errorf("run diarization: %w", err)
	}

	progress(70, "Processing speaker segments...")

	var mf manifest
	if err := json.Unmarshal(out, &mf); err != nil {
		return nil, nil, fmt.Errorf("decode diarization manifest: %w", err)
	}

	segments, md, err := buildResults(taskID, outDir, &mf)
	if err != nil {
		return nil, nil, err
	}

	progress(85, "Finalizing results...")

	a.logger.Info("Diarization finished",
		zap.String("task_id", taskID),
		zap.Int("speakers", md.DiarizationResults.TotalSpeakers),
		zap.Int("segments", md.DiarizationResults.TotalSegments),
	)

	return segments, md, nil
}

// buildResults turns a raw manifest into the segment map and the aggregated
// result document. Every referenced segment file must exist under outDir.
func buildResults(taskID, outDir string, mf *manifest) (map[string][]string, *metadata.ResultMetadata, error) {
	segmentsBySpeaker := make(map[string][]string, len(mf.Speakers))
	speakers := make([]metadata.Speaker, 0, len(mf.Speakers))
	totalSegments := 0

	for _, sp := range mf.Speakers {
		var (
			paths         []string
			details       []metadata.Segment
			speakingTime  float64
			confidenceSum float64
		)

		for _, seg := range sp.Segments {
			path := filepath.Join(outDir, sp.SpeakerID, seg.File)
			if _, err := os.Stat(path); err != nil {
				return nil, nil, fmt.Errorf("manifest references missing segment %s/%s: %w", sp.SpeakerID, seg.File, err)
			}

			duration := seg.End - seg.Start
			paths = append(paths, path)
			details = append(details, metadata.Segment{
				FilePath:        sp.SpeakerID + "/" + seg.File,
				StartTime:       seg.Start,
				EndTime:         seg.End,
				DurationSeconds: duration,
				Confidence:      seg.Confidence,
			})
			speakingTime += duration
			confidenceSum += seg.Confidence
		}

		avgConfidence := 0.0
		if len(details) > 0 {
			avgConfidence = confidenceSum / float64(len(details))
		}

		segmentsBySpeaker[sp.SpeakerID] = paths
		speakers = append(speakers, metadata.Speaker{
			SpeakerID:                sp.SpeakerID,
			Segments:                 details,
			TotalSegments:            len(details),
			TotalSpeakingTimeSeconds: speakingTime,
			AverageConfidence:        avgConfidence,
		})
		totalSegments += len(details)
	}

	md := &metadata.ResultMetadata{
		TaskID:    taskID,
		AudioInfo: mf.AudioInfo,
		DiarizationResults: metadata.DiarizationResults{
			TotalSpeakers:         len(speakers),
			TotalSegments:         totalSegments,
			ProcessingTimeSeconds: mf.ProcessingTimeSeconds,
		},
		Speakers: speakers,
	}

	return segmentsBySpeaker, md, nil
}
