// Package session holds the per-conversation record that the conversation
// engine reads and advances, plus an in-memory store for the HTTP server.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Step is the current position of a conversation.
type Step int

const (
	AwaitingResume Step = iota
	AwaitingJobPosting
	AwaitingDownloadChoice
	AwaitingEdits
)

func (s Step) String() string {
	switch s {
	case AwaitingResume:
		return "awaiting_resume"
	case AwaitingJobPosting:
		return "awaiting_job_posting"
	case AwaitingDownloadChoice:
		return "awaiting_download_choice"
	case AwaitingEdits:
		return "awaiting_edits"
	default:
		return "unknown"
	}
}

// MarshalText renders the step by name in JSON and logs.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Entry is one transcript line.
type Entry struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Turn is the paired form of an Entry used by chat front ends:
// exactly one side is set.
type Turn struct {
	User   *string `json:"user"`
	System *string `json:"system"`
}

// Turn converts the entry to its paired form.
func (e Entry) Turn() Turn {
	text := e.Text
	if e.Speaker == SpeakerUser {
		return Turn{User: &text}
	}
	return Turn{System: &text}
}

// Session is the mutable record of one conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Step           Step   `json:"step"`
	ResumeText     string `json:"resume_text,omitempty"`
	ApplicantName  string `json:"applicant_name,omitempty"`
	JobPosting     string `json:"job_posting,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	JobTitle       string `json:"job_title,omitempty"`
	TailoredResume string `json:"tailored_resume,omitempty"`

	// ExportPath is the last exported document, if any.
	ExportPath string `json:"export_path,omitempty"`

	Transcript []Entry `json:"transcript"`
}

// New returns a fresh session awaiting a resume.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Step:      AwaitingResume,
	}
}

// Reset returns the session to AwaitingResume and clears every artifact and
// the transcript. Identity is kept.
func (s *Session) Reset() {
	*s = Session{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: time.Now().UTC(),
		Step:      AwaitingResume,
	}
}

// Append records a transcript entry.
func (s *Session) Append(speaker Speaker, text string) Entry {
	entry := Entry{Speaker: speaker, Text: text, At: time.Now().UTC()}
	s.Transcript = append(s.Transcript, entry)
	s.UpdatedAt = entry.At
	return entry
}

// Turns returns the transcript in paired form.
func (s *Session) Turns() []Turn {
	turns := make([]Turn, len(s.Transcript))
	for i, entry := range s.Transcript {
		turns[i] = entry.Turn()
	}
	return turns
}

// Snapshot returns a deep copy safe to hand to another goroutine.
func (s *Session) Snapshot() Session {
	cp := *s
	cp.Transcript = append([]Entry(nil), s.Transcript...)
	return cp
}
