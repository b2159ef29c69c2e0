// Package types holds the request and response shapes shared by the HTTP server and the CLI.
package types

import (
	"time"

	"resumetailor/internal/conversation"
	"resumetailor/internal/export"
	"resumetailor/internal/session"

	"github.com/go-playground/validator/v10"
)

// MaxMessageLength bounds one pasted resume or job posting.
const MaxMessageLength = 200_000

var validate = validator.New(validator.WithRequiredStructEnabled())

// MessageRequest is one user input. Empty text is a valid input.
type MessageRequest struct {
	Text string `json:"text" validate:"max=200000"`
}

// Validate checks the request against its field rules.
func (r *MessageRequest) Validate() error {
	return validate.Struct(r)
}

// TranscriptQuery selects the rendering of GET /sessions/{id}.
type TranscriptQuery struct {
	Format string `validate:"omitempty,oneof=json text markdown"`
}

// Validate checks the query against its field rules.
func (q *TranscriptQuery) Validate() error {
	return validate.Struct(q)
}

// DownloadView describes an exported document.
type DownloadView struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url,omitempty"`
}

// EventView is the wire form of a conversation event.
type EventView struct {
	Kind        conversation.Kind        `json:"kind"`
	Speaker     session.Speaker          `json:"speaker"`
	Text        string                   `json:"text"`
	At          time.Time                `json:"at"`
	Step        session.Step             `json:"step"`
	Affordances conversation.Affordances `json:"affordances"`
	Download    *DownloadView            `json:"download,omitempty"`
}

// NewEventView converts ev. downloadURL is attached to download events only.
func NewEventView(ev conversation.Event, downloadURL string) EventView {
	view := EventView{
		Kind:        ev.Kind,
		Speaker:     ev.Entry.Speaker,
		Text:        ev.Entry.Text,
		At:          ev.Entry.At,
		Step:        ev.Step,
		Affordances: ev.Affordances,
	}
	if ev.Artifact != nil {
		view.Download = newDownloadView(ev.Artifact, downloadURL)
	}
	return view
}

func newDownloadView(a *export.Artifact, url string) *DownloadView {
	return &DownloadView{Filename: a.Filename, Size: a.Size, URL: url}
}

// SessionView is the externally visible state of a session.
type SessionView struct {
	ID             string                   `json:"id"`
	Step           session.Step             `json:"step"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
	ApplicantName  string                   `json:"applicant_name,omitempty"`
	CompanyName    string                   `json:"company_name,omitempty"`
	JobTitle       string                   `json:"job_title,omitempty"`
	TailoredResume string                   `json:"tailored_resume,omitempty"`
	HasDownload    bool                     `json:"has_download"`
	Affordances    conversation.Affordances `json:"affordances"`
	Transcript     []session.Entry          `json:"transcript"`
}

// NewSessionView converts a session snapshot.
func NewSessionView(s session.Session) SessionView {
	return SessionView{
		ID:             s.ID,
		Step:           s.Step,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		ApplicantName:  s.ApplicantName,
		CompanyName:    s.CompanyName,
		JobTitle:       s.JobTitle,
		TailoredResume: s.TailoredResume,
		HasDownload:    s.ExportPath != "",
		Affordances:    conversation.AffordancesFor(s.Step),
		Transcript:     s.Transcript,
	}
}

// SessionResponse is returned when a session is created or a message is handled.
type SessionResponse struct {
	Session SessionView `json:"session"`
	Events  []EventView `json:"events"`
}

// Transcript is the formatter input for a saved or displayed conversation.
type Transcript struct {
	BotName        string          `json:"bot_name"`
	SessionID      string          `json:"session_id"`
	Step           session.Step    `json:"step"`
	ApplicantName  string          `json:"applicant_name,omitempty"`
	CompanyName    string          `json:"company_name,omitempty"`
	JobTitle       string          `json:"job_title,omitempty"`
	TailoredResume string          `json:"tailored_resume,omitempty"`
	Entries        []session.Entry `json:"entries"`
}

// NewTranscript builds the formatter input of s.
func NewTranscript(botName string, s session.Session) Transcript {
	return Transcript{
		BotName:        botName,
		SessionID:      s.ID,
		Step:           s.Step,
		ApplicantName:  s.ApplicantName,
		CompanyName:    s.CompanyName,
		JobTitle:       s.JobTitle,
		TailoredResume: s.TailoredResume,
		Entries:        s.Transcript,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Models    map[string]ModelStatus `json:"models,omitempty"`
	Breakers  map[string]any         `json:"circuit_breakers,omitempty"`
}

// ModelStatus reports whether one operation's model answered.
type ModelStatus struct {
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Version        string         `json:"version"`
	Uptime         string         `json:"uptime"`
	ActiveSessions int            `json:"active_sessions"`
	MaxSessions    int            `json:"max_sessions"`
	SessionTTL     string         `json:"session_ttl"`
	MaxRequestSize int64          `json:"max_request_size_bytes"`
	RateLimiting   map[string]any `json:"rate_limiting"`
}
