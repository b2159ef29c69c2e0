package formatters

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"resumetailor/internal/session"
	"resumetailor/internal/types"
)

// DefaultBotName labels bot lines when a transcript carries no name.
const DefaultBotName = "Resume Tailor"

const userLabel = "You"

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "Transcript", &TranscriptTextFormatter{})
	registry.RegisterFormatter("markdown", "Transcript", &TranscriptMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	slices.Sort(formats)
	return formats
}

// FormatForFile picks a format from the extension of filename, falling back to def.
func FormatForFile(filename, def string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".json"):
		return "json"
	case strings.HasSuffix(strings.ToLower(filename), ".md"),
		strings.HasSuffix(strings.ToLower(filename), ".markdown"):
		return "markdown"
	case strings.HasSuffix(strings.ToLower(filename), ".txt"):
		return "text"
	}
	return def
}

func getDataType(data any) string {
	switch data.(type) {
	case types.Transcript, *types.Transcript:
		return "Transcript"
	default:
		return "any"
	}
}

func asTranscript(data any) (types.Transcript, error) {
	switch t := data.(type) {
	case types.Transcript:
		return t, nil
	case *types.Transcript:
		if t != nil {
			return *t, nil
		}
	}
	return types.Transcript{}, fmt.Errorf("expected Transcript, got %T", data)
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// SpeakerLabel returns the prefix shown before a transcript line.
func SpeakerLabel(speaker session.Speaker, botName string) string {
	if speaker == session.SpeakerUser {
		return userLabel
	}
	if botName == "" {
		return DefaultBotName
	}
	return botName
}

// TranscriptTextFormatter renders a conversation as plain text
type TranscriptTextFormatter struct{}

func (ttf *TranscriptTextFormatter) Format(data any) (string, error) {
	transcript, err := asTranscript(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("=== CONVERSATION ===\n")
	fmt.Fprintf(&output, "Session: %s\n", transcript.SessionID)
	fmt.Fprintf(&output, "Step: %s\n", transcript.Step)
	writeTextField(&output, "Candidate", transcript.ApplicantName)
	writeTextField(&output, "Company", transcript.CompanyName)
	writeTextField(&output, "Job Title", transcript.JobTitle)
	output.WriteString("\n")

	for _, entry := range transcript.Entries {
		label := SpeakerLabel(entry.Speaker, transcript.BotName)
		fmt.Fprintf(&output, "[%s] %s:\n%s\n\n", entry.At.Format("15:04:05"), label, entry.Text)
	}

	if transcript.TailoredResume != "" {
		output.WriteString("=== TAILORED RESUME ===\n\n")
		output.WriteString(transcript.TailoredResume)
		output.WriteString("\n")
	}

	return output.String(), nil
}

func (ttf *TranscriptTextFormatter) SupportedType() string {
	return "Transcript"
}

func writeTextField(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

// TranscriptMarkdownFormatter renders a conversation as Markdown
type TranscriptMarkdownFormatter struct{}

func (tmf *TranscriptMarkdownFormatter) Format(data any) (string, error) {
	transcript, err := asTranscript(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("# Conversation\n\n")
	fmt.Fprintf(&output, "- **Session:** `%s`\n", transcript.SessionID)
	fmt.Fprintf(&output, "- **Step:** %s\n", transcript.Step)
	writeMarkdownField(&output, "Candidate", transcript.ApplicantName)
	writeMarkdownField(&output, "Company", transcript.CompanyName)
	writeMarkdownField(&output, "Job Title", transcript.JobTitle)
	output.WriteString("\n## Transcript\n\n")

	for _, entry := range transcript.Entries {
		label := SpeakerLabel(entry.Speaker, transcript.BotName)
		fmt.Fprintf(&output, "**%s:**\n\n%s\n\n", label, quote(entry.Text))
	}

	if transcript.TailoredResume != "" {
		output.WriteString("## Tailored Resume\n\n```\n")
		output.WriteString(transcript.TailoredResume)
		output.WriteString("\n```\n")
	}

	return output.String(), nil
}

func (tmf *TranscriptMarkdownFormatter) SupportedType() string {
	return "Transcript"
}

func writeMarkdownField(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "- **%s:** %s\n", label, value)
	}
}

// quote renders text as a Markdown block quote, one "> " per line.
func quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
