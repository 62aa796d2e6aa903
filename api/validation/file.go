package validation

import (
	"path/filepath"
	"strings"
)

// IsAllowedFormat checks the filename extension against the allow-list.
func IsAllowedFormat(filename string, allowed []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	for _, format := range allowed {
		if ext == strings.ToLower(format) {
			return true
		}
	}
	return false
}

// ValidateUpload applies the submission-time checks: a filename must be
// present, its extension allowed, and its size under the ceiling.
func ValidateUpload(filename string, size, maxBytes int64, allowed []string) error {
	if filename == "" {
		return ErrMissingFilename
	}
	if !IsAllowedFormat(filename, allowed) {
		return ErrUnsupportedFormat
	}
	if size > maxBytes {
		return ErrFileTooLarge
	}
	return nil
}

// SanitizeFilename strips any directory components from a client-supplied name.
func SanitizeFilename(filename string) string {
	return filepath.Base(filename)
}
