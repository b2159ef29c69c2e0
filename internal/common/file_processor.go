package common

import (
	"fmt"
	"os"
	"path/filepath"

	"resumetailor/internal/errors"
	"resumetailor/internal/ingest"
	"resumetailor/internal/utils"
)

// FileProcessor handles common file operations
type FileProcessor struct {
	reader *ingest.Reader
	logger *errors.Logger
}

// NewFileProcessor creates a file processor reading inputs of at most maxFileSize bytes
func NewFileProcessor(maxFileSize int64, logger *errors.Logger) *FileProcessor {
	return &FileProcessor{reader: ingest.NewReader(maxFileSize, logger), logger: logger}
}

// ReadFile extracts the text of a .txt, .md, .pdf or .docx file
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	return fp.reader.ReadFile(filename)
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		err := os.MkdirAll(dir, 0750)
		if err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	err := os.WriteFile(filename, []byte(content), 0600)
	if err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}

	return nil
}

// ReadFiles reads every file in order, stopping at the first failure
func (fp *FileProcessor) ReadFiles(filenames ...string) ([]string, error) {
	contents := make([]string, len(filenames))

	for i, filename := range filenames {
		if !utils.IsTextFile(filename) && !utils.IsDocumentFile(filename) && fp.logger != nil {
			fp.logger.Warn("File may not be a supported document", "filename", filename)
		}

		content, err := fp.ReadFile(filename)
		if err != nil {
			return nil, err // Error already wrapped by ReadFile
		}
		contents[i] = content
	}

	return contents, nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}
