package validation

import "errors"

var (
	ErrMissingFilename   = errors.New("no file provided")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrFileTooLarge      = errors.New("file size exceeds limit")
)
