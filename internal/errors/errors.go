package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeAI         ErrorType = "ai"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeExport     ErrorType = "export"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"cause,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func newAppError(typ ErrorType, code, message string, cause error) *AppError {
	return &AppError{
		Type:    typ,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewValidationError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, code, message, cause)
}

func NewIOError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeIO, code, message, cause)
}

func NewAIError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeAI, code, message, cause)
}

func NewNetworkError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeNetwork, code, message, cause)
}

func NewConfigError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeConfig, code, message, cause)
}

func NewExportError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeExport, code, message, cause)
}

func NewInternalError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, code, message, cause)
}

// WithContext adds context to an error
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsType reports whether any AppError in err's chain has the given type.
func IsType(err error, typ ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == typ
	}
	return false
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Logger wraps slog with application-specific methods
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a new structured logger writing JSON to stdout
func NewLogger(level slog.Level) *Logger {
	return NewLoggerWithWriter(level, os.Stdout)
}

// NewLoggerWithWriter creates a structured logger writing JSON to w.
// The interactive chat uses stderr so conversation output stays readable.
func NewLoggerWithWriter(level slog.Level, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	return &Logger{logger: slog.New(slog.NewJSONHandler(w, opts))}
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// LogError logs an application error with appropriate level and context
func (l *Logger) LogError(err error, message string, args ...any) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		logArgs := []any{
			"error_type", appErr.Type,
			"error_code", appErr.Code,
			"error_message", appErr.Message,
		}
		if appErr.Cause != nil {
			logArgs = append(logArgs, "cause", appErr.Cause.Error())
		}
		for key, value := range appErr.Context {
			logArgs = append(logArgs, key, value)
		}
		logArgs = append(logArgs, args...)

		l.logger.Error(message, logArgs...)
		return
	}

	logArgs := append([]any{"error", err.Error()}, args...)
	l.logger.Error(message, logArgs...)
}

func (l *Logger) Info(message string, args ...any) {
	l.logger.Info(message, args...)
}

func (l *Logger) Debug(message string, args ...any) {
	l.logger.Debug(message, args...)
}

func (l *Logger) Warn(message string, args ...any) {
	l.logger.Warn(message, args...)
}

// ParseLevel maps a config log level to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, NewConfigError(ErrCodeInvalidConfig, fmt.Sprintf("invalid log level: %s", level), nil)
	}
}

// New creates a new logger instance
func New(level string) (*Logger, error) {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a logger for the given level that writes to w.
func NewWithWriter(level string, w io.Writer) (*Logger, error) {
	slogLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return NewLoggerWithWriter(slogLevel, w), nil
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return NewLoggerWithWriter(slog.LevelError+4, io.Discard)
}

// Common error codes
const (
	ErrCodeFileNotFound        = "FILE_NOT_FOUND"
	ErrCodeFileNotReadable     = "FILE_NOT_READABLE"
	ErrCodeFileTooLarge        = "FILE_TOO_LARGE"
	ErrCodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	ErrCodeInvalidFormat       = "INVALID_FORMAT"
	ErrCodeAIServiceFailed     = "AI_SERVICE_FAILED"
	ErrCodeAIResponseInvalid   = "AI_RESPONSE_INVALID"
	ErrCodeAITimeout           = "AI_TIMEOUT"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeMissingAPIKey       = "MISSING_API_KEY"
	ErrCodeNetworkTimeout      = "NETWORK_TIMEOUT"
	ErrCodeInvalidConfig       = "INVALID_CONFIG"
	ErrCodeExportFailed        = "EXPORT_FAILED"
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeSessionLimit        = "SESSION_LIMIT"
)
