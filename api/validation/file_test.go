package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var formats = []string{"wav", "mp3", "flac", "m4a", "ogg"}

func TestIsAllowedFormat(t *testing.T) {
	assert.True(t, IsAllowedFormat("meeting.wav", formats))
	assert.True(t, IsAllowedFormat("MEETING.WAV", formats))
	assert.True(t, IsAllowedFormat("a.b.c.mp3", formats))
	assert.False(t, IsAllowedFormat("document.pdf", formats))
	assert.False(t, IsAllowedFormat("noextension", formats))
	assert.False(t, IsAllowedFormat("", formats))
}

func TestValidateUpload(t *testing.T) {
	const maxBytes = 10 * 1024 * 1024

	assert.NoError(t, ValidateUpload("call.flac", 1024, maxBytes, formats))

	assert.ErrorIs(t, ValidateUpload("", 1024, maxBytes, formats), ErrMissingFilename)
	assert.ErrorIs(t, ValidateUpload("call.exe", 1024, maxBytes, formats), ErrUnsupportedFormat)
	assert.ErrorIs(t, ValidateUpload("call.wav", maxBytes+1, maxBytes, formats), ErrFileTooLarge)

	// Exactly at the ceiling is accepted.
	assert.NoError(t, ValidateUpload("call.wav", maxBytes, maxBytes, formats))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a.wav", SanitizeFilename("a.wav"))
	assert.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "a.wav", SanitizeFilename("/abs/path/a.wav"))
}
