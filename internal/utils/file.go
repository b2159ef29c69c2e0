package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrFileTooLarge is wrapped by ValidateInputFile when a file exceeds its limit.
var ErrFileTooLarge = errors.New("file too large")

var (
	textExtensions     = []string{".txt", ".md", ".markdown", ".text"}
	documentExtensions = []string{".pdf", ".docx"}
)

// ValidateInputFile checks that filename is a readable regular file no larger than maxSize.
// A maxSize of zero disables the size check.
func ValidateInputFile(filename string, maxSize int64) (os.FileInfo, error) {
	if filename == "" {
		return nil, fmt.Errorf("filename cannot be empty")
	}

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file does not exist: %s: %w", filename, os.ErrNotExist)
		}
		return nil, fmt.Errorf("cannot access file %s: %w", filename, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filename)
	}

	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %s, limit is %s",
			ErrFileTooLarge, filename, FormatFileSize(info.Size()), FormatFileSize(maxSize))
	}

	return info, nil
}

// ValidateOutputFile creates the parent directory of filename when needed
func ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// GetFileExtension returns the file extension in lowercase
func GetFileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsTextFile checks if the file has a text-based extension
func IsTextFile(filename string) bool {
	return slices.Contains(textExtensions, GetFileExtension(filename))
}

// IsDocumentFile checks for the binary document formats a resume can be read from
func IsDocumentFile(filename string) bool {
	return slices.Contains(documentExtensions, GetFileExtension(filename))
}

// SupportedExtensions lists every extension a resume or job posting can be loaded from.
func SupportedExtensions() []string {
	return slices.Concat(textExtensions, documentExtensions)
}

// FormatFileSize returns a human-readable file size
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
