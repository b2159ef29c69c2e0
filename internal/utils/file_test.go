package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "resume.txt")
	require.NoError(t, os.WriteFile(small, []byte("John Smith"), 0o600))
	big := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(big, make([]byte, 2048), 0o600))

	tests := []struct {
		name    string
		path    string
		maxSize int64
		wantErr string
	}{
		{"readable file", small, 1024, ""},
		{"no limit", big, 0, ""},
		{"empty name", "", 0, "filename cannot be empty"},
		{"missing", filepath.Join(dir, "nope.txt"), 0, "file does not exist"},
		{"directory", dir, 0, "is a directory"},
		{"too large", big, 1024, "big.txt is 2.0 KB, limit is 1.0 KB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ValidateInputFile(tt.path, tt.maxSize)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.False(t, info.IsDir())
		})
	}
}

func TestValidateOutputFileCreatesDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "out", "transcript.md")

	require.NoError(t, ValidateOutputFile(target))

	info, err := os.Stat(filepath.Dir(target))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NoError(t, ValidateOutputFile(""))
}

func TestFileKinds(t *testing.T) {
	assert.True(t, IsTextFile("resume.TXT"))
	assert.True(t, IsTextFile("notes.md"))
	assert.False(t, IsTextFile("resume.pdf"))
	assert.True(t, IsDocumentFile("Resume.PDF"))
	assert.True(t, IsDocumentFile("resume.docx"))
	assert.False(t, IsDocumentFile("resume.doc"))
	assert.Contains(t, SupportedExtensions(), ".docx")
	assert.Contains(t, SupportedExtensions(), ".markdown")
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.0 KB", FormatFileSize(1024))
	assert.Equal(t, "1.5 MB", FormatFileSize(1536*1024))
}

func TestValidateInputFileSentinels(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(big, make([]byte, 10), 0o600))

	_, err := ValidateInputFile(big, 5)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = ValidateInputFile(filepath.Join(dir, "missing.txt"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
