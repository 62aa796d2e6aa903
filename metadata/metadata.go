// Package metadata defines the result document produced for a completed
// diarization task. The document is written once, at completion, and is
// immutable afterwards.
package metadata

type AudioInfo struct {
	OriginalFilename string  `json:"original_filename"`
	DurationSeconds  float64 `json:"duration_seconds"`
	SampleRate       int     `json:"sample_rate"`
	Channels         int     `json:"channels"`
}

type Segment struct {
	FilePath        string  `json:"file_path"`
	StartTime       float64 `json:"start_time"`
	EndTime         float64 `json:"end_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	Confidence      float64 `json:"confidence"`
}

type Speaker struct {
	SpeakerID                string    `json:"speaker_id"`
	Segments                 []Segment `json:"segments"`
	TotalSegments            int       `json:"total_segments"`
	TotalSpeakingTimeSeconds float64   `json:"total_speaking_time_seconds"`
	AverageConfidence        float64   `json:"average_confidence"`
}

type DiarizationResults struct {
	TotalSpeakers         int     `json:"total_speakers"`
	TotalSegments         int     `json:"total_segments"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

type ResultMetadata struct {
	TaskID             string             `json:"task_id"`
	AudioInfo          AudioInfo          `json:"audio_info"`
	DiarizationResults DiarizationResults `json:"diarization_results"`
	Speakers           []Speaker          `json:"speakers"`
}
