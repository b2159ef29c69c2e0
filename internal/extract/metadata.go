package extract

import (
	"context"
	"encoding/json"
	"strings"

	"resumetailor/internal/errors"

	"github.com/xeipuuv/gojsonschema"
)

// Unknown is used for any metadata field the model did not supply.
const Unknown = "Unknown"

// MetadataSchema is the JSON Schema both sent to the model as the output
// contract and used to validate what comes back.
const MetadataSchema = `{
  "type": "object",
  "properties": {
    "company": {"type": "string", "description": "Name of the company offering the job."},
    "job_title": {"type": "string", "description": "Title of the role being described."}
  },
  "required": ["company", "job_title"]
}`

// JobMetadata is what the conversation shows about a job posting.
type JobMetadata struct {
	Company  string `json:"company"`
	JobTitle string `json:"job_title"`
}

// Source performs the structured model call. It returns the raw JSON object
// produced for schema.
type Source interface {
	ExtractMetadata(ctx context.Context, jobPosting string, schema json.RawMessage) (json.RawMessage, error)
}

// FieldError is a single schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// MetadataExtractor pulls company and job title out of a job posting. It
// never fails: anything it cannot read becomes Unknown.
type MetadataExtractor struct {
	source Source
	schema *gojsonschema.Schema
	logger *errors.Logger
}

func NewMetadataExtractor(source Source, logger *errors.Logger) (*MetadataExtractor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(MetadataSchema))
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInvalidConfig, "metadata schema does not compile", err)
	}
	return &MetadataExtractor{source: source, schema: schema, logger: logger}, nil
}

// Extract returns the posting's metadata, falling back to Unknown per field.
func (m *MetadataExtractor) Extract(ctx context.Context, jobPosting string) JobMetadata {
	raw, err := m.source.ExtractMetadata(ctx, jobPosting, json.RawMessage(MetadataSchema))
	if err != nil {
		m.logger.LogError(err, "Metadata extraction failed, using fallbacks")
		return JobMetadata{Company: Unknown, JobTitle: Unknown}
	}
	return m.Parse(raw)
}

// Parse validates raw against MetadataSchema and reads whatever fields are usable.
func (m *MetadataExtractor) Parse(raw []byte) JobMetadata {
	if problems := m.Validate(raw); len(problems) > 0 {
		m.logger.Warn("Metadata response does not match schema", "problems", problems)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		m.logger.Warn("Metadata response is not a JSON object", "error", err.Error())
		return JobMetadata{Company: Unknown, JobTitle: Unknown}
	}

	return JobMetadata{
		Company:  stringField(fields, "company"),
		JobTitle: stringField(fields, "job_title"),
	}
}

// Validate returns the schema violations of raw, if any.
func (m *MetadataExtractor) Validate(raw []byte) []FieldError {
	result, err := m.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return []FieldError{{Field: "(root)", Message: err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, FieldError{Field: re.Field(), Message: re.Description()})
	}
	return problems
}

func stringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return Unknown
}
