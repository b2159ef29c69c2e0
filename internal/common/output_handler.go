package common

import (
	"fmt"
	"io"
	"os"

	"resumetailor/internal/errors"
	"resumetailor/internal/formatters"
)

// CommandConfig holds common configuration for commands
type CommandConfig struct {
	OutputFile   string
	OutputFormat string
	MaxFileSize  int64
}

// OutputHandler handles formatting and writing output
type OutputHandler struct {
	fileProcessor *FileProcessor
	registry      *formatters.FormatterRegistry
	stdout        io.Writer
	logger        *errors.Logger
}

// NewOutputHandler creates a new output handler printing to stdout when no file is set
func NewOutputHandler(logger *errors.Logger) *OutputHandler {
	return &OutputHandler{
		fileProcessor: NewFileProcessor(0, logger),
		registry:      formatters.GlobalRegistry,
		stdout:        os.Stdout,
		logger:        logger,
	}
}

// WithStdout redirects console output.
func (oh *OutputHandler) WithStdout(w io.Writer) *OutputHandler {
	oh.stdout = w
	return oh
}

// HandleOutput formats data and writes it to the specified output
func (oh *OutputHandler) HandleOutput(data any, config CommandConfig) error {
	if err := oh.fileProcessor.ValidateOutputFile(config.OutputFile); err != nil {
		return err
	}

	output, err := oh.registry.Format(data, config.OutputFormat)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("Failed to format output as %s", config.OutputFormat), err)
	}

	if config.OutputFile != "" {
		if err := oh.fileProcessor.WriteFile(config.OutputFile, output); err != nil {
			return err // Error already wrapped by WriteFile
		}

		oh.logger.Info("Output written successfully",
			"file", config.OutputFile, "format", config.OutputFormat)
		return nil
	}

	_, err = fmt.Fprint(oh.stdout, output)
	return err
}

// GetSupportedFormats returns all supported output formats
func (oh *OutputHandler) GetSupportedFormats() []string {
	return oh.registry.GetSupportedFormats()
}
