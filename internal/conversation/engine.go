// Package conversation drives a resume tailoring session through its steps.
package conversation

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"resumetailor/internal/errors"
	"resumetailor/internal/export"
	"resumetailor/internal/extract"
	"resumetailor/internal/observability"
	"resumetailor/internal/session"

	"go.opentelemetry.io/otel/attribute"
)

// Kind classifies an emitted event.
type Kind string

const (
	KindStatus   Kind = "status"
	KindMessage  Kind = "message"
	KindUser     Kind = "user"
	KindDownload Kind = "download"
	KindError    Kind = "error"
)

// Event is one observable output of a turn. Its Entry has already been
// appended to the session transcript.
type Event struct {
	Kind        Kind             `json:"kind"`
	Entry       session.Entry    `json:"entry"`
	Step        session.Step     `json:"step"`
	Artifact    *export.Artifact `json:"artifact,omitempty"`
	Affordances Affordances      `json:"affordances"`
}

// MetadataExtractor pulls company and job title from a posting. It never fails.
type MetadataExtractor interface {
	Extract(ctx context.Context, jobPosting string) extract.JobMetadata
}

// Assistant performs the free-text model calls.
type Assistant interface {
	TailorResume(ctx context.Context, resume, posting string) (string, error)
	ExplainTailoring(ctx context.Context, tailored, posting string) (string, error)
	EditResume(ctx context.Context, tailored, instruction string) (string, error)
}

// Engine is stateless; all conversation state lives in the session passed to each call.
type Engine struct {
	metadata  MetadataExtractor
	assistant Assistant
	renderer  export.Renderer
	om        *observability.ObservabilityManager
	logger    *errors.Logger

	ephemeralExports bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithEphemeralExports removes a session's exported document once it is
// replaced by a new export or the conversation restarts. Without it the
// files are left for the user.
func WithEphemeralExports() Option {
	return func(e *Engine) { e.ephemeralExports = true }
}

func NewEngine(metadata MetadataExtractor, assistant Assistant, renderer export.Renderer, om *observability.ObservabilityManager, logger *errors.Logger, opts ...Option) *Engine {
	if om == nil {
		om = observability.NewNoopManager()
	}
	if logger == nil {
		logger = errors.Discard()
	}
	e := &Engine{
		metadata:  metadata,
		assistant: assistant,
		renderer:  renderer,
		om:        om,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discard removes the exported document of s, if any. Callers use it when a
// session is dropped for good.
func (e *Engine) Discard(s *session.Session) {
	e.removeExport(s.ID, s.ExportPath)
	s.ExportPath = ""
}

func (e *Engine) removeExport(sessionID, path string) {
	if path == "" {
		return
	}
	if err := e.renderer.Remove(path); err != nil {
		e.logger.LogError(err, "Failed to remove exported document", "session_id", sessionID)
		return
	}
	e.logger.Debug("Exported document removed", "session_id", sessionID, "path", path)
}

// retireExport drops the current export before the session forgets it.
func (e *Engine) retireExport(s *session.Session) {
	if e.ephemeralExports {
		e.Discard(s)
	}
}

// Start resets s and greets the user.
func (e *Engine) Start(s *session.Session) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		t := &turn{s: s, yield: yield}
		e.retireExport(s)
		s.Reset()
		t.emit(KindMessage, MsgGreeting, true)
	}
}

// Handle resolves one user input against s. Events are produced in order as
// the turn progresses; the session is updated before the final events of a
// turn are yielded. Stopping iteration early abandons the rest of the turn.
func (e *Engine) Handle(ctx context.Context, s *session.Session, input string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, span := e.om.Tracer("resumetailor.conversation").Start(ctx, "conversation.handle")
		defer span.End()

		from := s.Step
		span.SetAttributes(
			attribute.String("session.id", s.ID),
			attribute.String("session.step", from.String()),
		)
		e.om.GetMetrics().RecordTurn(ctx, from.String(), e.om)

		t := &turn{s: s, yield: yield}
		text := strings.TrimSpace(input)

		switch {
		case strings.EqualFold(text, RestartCommand):
			e.reset(ctx, t, "restart")
		case s.Step == session.AwaitingResume:
			e.acceptResume(t, text)
		case s.Step == session.AwaitingJobPosting:
			e.tailor(ctx, t, text)
		case s.Step == session.AwaitingDownloadChoice && text != "":
			e.downloadChoice(ctx, t, text)
		case s.Step == session.AwaitingEdits && text != "":
			e.edit(ctx, t, text)
		default:
			e.reset(ctx, t, "fallback")
		}

		span.SetAttributes(attribute.String("session.next_step", s.Step.String()))
	}
}

func (e *Engine) reset(ctx context.Context, t *turn, reason string) {
	e.logger.Info("Conversation reset", "session_id", t.s.ID, "step", t.s.Step.String(), "reason", reason)
	e.om.GetMetrics().RecordConversationEvent(ctx, observability.EventReset, true, e.om,
		attribute.String("reason", reason))

	e.retireExport(t.s)
	t.s.Reset()
	t.emit(KindMessage, MsgGreeting, true)
}

func (e *Engine) acceptResume(t *turn, text string) {
	if text == "" {
		t.emit(KindMessage, MsgResumeMissing, true)
		return
	}
	if !t.emit(KindUser, text, false) {
		return
	}

	t.s.ResumeText = text
	t.s.ApplicantName = extract.ExtractName(text)
	t.s.Step = session.AwaitingJobPosting

	e.logger.Debug("Resume received", "session_id", t.s.ID, "applicant", t.s.ApplicantName, "length", len(text))
	t.emit(KindMessage, MsgResumeReceived, true)
}

func (e *Engine) tailor(ctx context.Context, t *turn, posting string) {
	if posting == "" {
		t.emit(KindMessage, MsgJobPostingMissing, true)
		return
	}
	if !t.emit(KindUser, posting, false) || !t.emit(KindStatus, MsgWorking, false) {
		return
	}

	meta := e.metadata.Extract(ctx, posting)
	if !t.emit(KindMessage, fmt.Sprintf(msgCompanyFormat, meta.Company), false) ||
		!t.emit(KindMessage, fmt.Sprintf(msgJobTitleFormat, meta.JobTitle), false) ||
		!t.emit(KindMessage, fmt.Sprintf(msgCandidateFormat, t.s.ApplicantName), false) {
		return
	}

	tailored, err := e.assistant.TailorResume(ctx, t.s.ResumeText, posting)
	if err != nil {
		e.modelCallFailed(ctx, t, "tailor", observability.EventResumeTailored, err)
		return
	}
	explanation, err := e.assistant.ExplainTailoring(ctx, tailored, posting)
	if err != nil {
		e.modelCallFailed(ctx, t, "explain", observability.EventResumeTailored, err)
		return
	}

	t.s.JobPosting = posting
	t.s.CompanyName = meta.Company
	t.s.JobTitle = meta.JobTitle
	t.s.TailoredResume = tailored
	t.s.Step = session.AwaitingDownloadChoice

	e.om.GetMetrics().RecordConversationEvent(ctx, observability.EventResumeTailored, true, e.om)
	e.logger.Info("Resume tailored",
		"session_id", t.s.ID,
		"company", meta.Company,
		"job_title", meta.JobTitle,
		"tailored_length", len(tailored))

	t.emit(KindMessage, tailored, true)
	t.emit(KindMessage, explanation, true)
	t.emit(KindMessage, MsgDownloadPrompt, true)
}

func (e *Engine) downloadChoice(ctx context.Context, t *turn, choice string) {
	if !t.emit(KindUser, choice, false) {
		return
	}

	if !strings.EqualFold(choice, downloadAcceptKeyword) {
		t.s.Step = session.AwaitingEdits
		t.emit(KindMessage, MsgDownloadSkipped, true)
		return
	}

	artifact, err := e.renderer.Render(ctx, t.s.ApplicantName, strings.Split(t.s.TailoredResume, "\n"))
	t.s.Step = session.AwaitingEdits
	e.om.GetMetrics().RecordConversationEvent(ctx, observability.EventExport, err == nil, e.om)

	if err != nil {
		e.logger.LogError(err, "Document export failed", "session_id", t.s.ID)
		t.emit(KindError, MsgDownloadFailed, true)
		return
	}

	previous := t.s.ExportPath
	t.s.ExportPath = artifact.Path
	if e.ephemeralExports && previous != artifact.Path {
		e.removeExport(t.s.ID, previous)
	}
	e.logger.Info("Document exported", "session_id", t.s.ID, "file", artifact.Filename, "size", artifact.Size)
	t.emitArtifact(MsgDownloadReady, artifact)
}

func (e *Engine) edit(ctx context.Context, t *turn, instruction string) {
	if !t.emit(KindUser, instruction, false) || !t.emit(KindStatus, MsgApplyingEdits, false) {
		return
	}

	updated, err := e.assistant.EditResume(ctx, t.s.TailoredResume, instruction)
	if err != nil {
		e.modelCallFailed(ctx, t, "edit", observability.EventResumeEdited, err)
		return
	}

	t.s.TailoredResume = updated
	e.om.GetMetrics().RecordConversationEvent(ctx, observability.EventResumeEdited, true, e.om)
	e.logger.Debug("Edit applied", "session_id", t.s.ID, "tailored_length", len(updated))

	t.emit(KindMessage, updated, true)
}

// modelCallFailed keeps the session in its step so the same input can be re-sent.
func (e *Engine) modelCallFailed(ctx context.Context, t *turn, operation, event string, err error) {
	e.logger.LogError(err, "Model call failed",
		"session_id", t.s.ID,
		"operation", operation,
		"step", t.s.Step.String())
	e.om.GetMetrics().RecordConversationEvent(ctx, event, false, e.om)

	t.emit(KindError, MsgModelCallFailed, true)
}

// turn appends entries to the transcript and yields their events.
type turn struct {
	s       *session.Session
	yield   func(Event) bool
	stopped bool
}

// emit records text and yields it. settled events carry the affordances of the
// current step; the others carry the busy record. It reports whether the
// consumer wants more events.
func (t *turn) emit(kind Kind, text string, settled bool) bool {
	return t.send(kind, text, settled, nil)
}

func (t *turn) emitArtifact(text string, artifact *export.Artifact) bool {
	return t.send(KindDownload, text, true, artifact)
}

func (t *turn) send(kind Kind, text string, settled bool, artifact *export.Artifact) bool {
	if t.stopped {
		return false
	}

	speaker := session.SpeakerBot
	if kind == KindUser {
		speaker = session.SpeakerUser
	}

	affordances := busyAffordances
	if settled {
		affordances = AffordancesFor(t.s.Step)
	}

	ev := Event{
		Kind:        kind,
		Entry:       t.s.Append(speaker, text),
		Step:        t.s.Step,
		Artifact:    artifact,
		Affordances: affordances,
	}
	if !t.yield(ev) {
		t.stopped = true
		return false
	}
	return true
}
