package server

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"resumetailor/internal/conversation"
	apperrors "resumetailor/internal/errors"
	"resumetailor/internal/formatters"
	"resumetailor/internal/observability"
	"resumetailor/internal/session"
	"resumetailor/internal/types"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// createSessionHandler opens a conversation and returns its greeting
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Create()
	if err != nil {
		s.Observability.GetMetrics().RecordConversationEvent(r.Context(), observability.EventSessionCreated, false, s.Observability)
		s.writeAppError(w, err)
		return
	}

	h, err := s.Sessions.Get(sess.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	locked := h.Lock()
	events := s.collect(locked, s.Engine.Start(locked))
	view := types.NewSessionView(locked.Snapshot())
	h.Unlock()

	s.Observability.GetMetrics().RecordConversationEvent(r.Context(), observability.EventSessionCreated, true, s.Observability)
	s.Logger.Info("Session created", "session_id", sess.ID, "active_sessions", s.Sessions.Len())

	w.Header().Set("Location", "/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, types.SessionResponse{Session: view, Events: events})
}

// messageHandler runs one conversation turn. Clients asking for
// text/event-stream receive each event as it is produced.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.Observability.Tracer("resumetailor.api").Start(r.Context(), "api.message")
	defer span.End()

	var req types.MessageRequest
	if err := parseJSONRequest(r, &req); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		writeErrorResponse(w, "Invalid request body", validationMessage(err), http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	h, err := s.Sessions.Get(id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	sess := h.Lock()
	defer h.Unlock()

	span.SetAttributes(
		attribute.String("session.id", id),
		attribute.Int("request.text_length", len(req.Text)),
	)

	turn := s.Engine.Handle(ctx, sess, req.Text)
	if wantsEventStream(r) {
		s.streamEvents(w, sess, turn)
		return
	}

	events := s.collect(sess, turn)
	writeJSON(w, http.StatusOK, types.SessionResponse{Session: types.NewSessionView(sess.Snapshot()), Events: events})
}

func (s *Server) collect(sess *session.Session, events iter.Seq[conversation.Event]) []types.EventView {
	var views []types.EventView
	for ev := range events {
		views = append(views, types.NewEventView(ev, downloadURL(sess.ID)))
	}
	return views
}

// streamEvents writes each event as a Server-Sent Event and finishes with a
// "session" event carrying the settled state. A failed write stops the turn.
func (s *Server) streamEvents(w http.ResponseWriter, sess *session.Session, events iter.Seq[conversation.Event]) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorResponse(w, "Streaming unsupported", "response writer cannot flush", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeSSE(w, string(ev.Kind), types.NewEventView(ev, downloadURL(sess.ID))); err != nil {
			s.Logger.Warn("Event stream closed by client", "session_id", sess.ID, "error", err)
			return
		}
		flusher.Flush()
	}

	if err := writeSSE(w, "session", types.NewSessionView(sess.Snapshot())); err != nil {
		s.Logger.Warn("Event stream closed by client", "session_id", sess.ID, "error", err)
		return
	}
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// getSessionHandler returns the session state, or its transcript rendered as text or markdown
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	query := types.TranscriptQuery{Format: r.URL.Query().Get("format")}
	if err := query.Validate(); err != nil {
		writeErrorResponse(w, "Invalid format", "format must be one of json, text, markdown", http.StatusBadRequest)
		return
	}

	snapshot, err := s.snapshot(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	switch query.Format {
	case "", "json":
		writeJSON(w, http.StatusOK, types.NewSessionView(snapshot))
	default:
		out, err := formatters.GlobalRegistry.Format(types.NewTranscript(s.BotName, snapshot), query.Format)
		if err != nil {
			s.writeAppError(w, apperrors.NewValidationError(apperrors.ErrCodeInvalidFormat, err.Error(), err))
			return
		}
		contentType := "text/plain; charset=utf-8"
		if query.Format == "markdown" {
			contentType = "text/markdown; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(out))
	}
}

// downloadHandler serves the latest exported document
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.snapshot(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if snapshot.ExportPath == "" {
		writeErrorResponse(w, "No document", "no Word document has been exported in this session", http.StatusNotFound)
		return
	}

	file, err := os.Open(snapshot.ExportPath)
	if err != nil {
		s.writeAppError(w, apperrors.NewIOError(apperrors.ErrCodeFileNotReadable, "exported document is no longer available", err))
		return
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		s.writeAppError(w, apperrors.NewIOError(apperrors.ErrCodeFileNotReadable, "exported document is not readable", err))
		return
	}

	name := filepath.Base(snapshot.ExportPath)
	w.Header().Set("Content-Type", docxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

// deleteSessionHandler ends a conversation
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.Sessions.Get(id); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.Sessions.Delete(id)
	s.Logger.Info("Session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) snapshot(id string) (session.Session, error) {
	h, err := s.Sessions.Get(id)
	if err != nil {
		return session.Session{}, err
	}
	sess := h.Lock()
	defer h.Unlock()
	return sess.Snapshot(), nil
}

func downloadURL(id string) string {
	return "/sessions/" + id + "/download"
}

// validationMessage reports the first failing field
func validationMessage(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
		ve := validationErrors[0]
		return fmt.Sprintf("validation error: %s - %s", ve.Field(), ve.Tag())
	}
	return "validation error: invalid request"
}
