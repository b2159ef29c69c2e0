package common

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"resumetailor/internal/conversation"
	apperrors "resumetailor/internal/errors"
	"resumetailor/internal/export"
	"resumetailor/internal/extract"
	"resumetailor/internal/session"
	"resumetailor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMetadata struct{}

func (stubMetadata) Extract(ctx context.Context, posting string) extract.JobMetadata {
	return extract.JobMetadata{Company: "Acme", JobTitle: "Backend Engineer"}
}

type stubAssistant struct{ err error }

func (a stubAssistant) TailorResume(ctx context.Context, resume, posting string) (string, error) {
	return "tailored", a.err
}

func (a stubAssistant) ExplainTailoring(ctx context.Context, tailored, posting string) (string, error) {
	return "because", a.err
}

func (a stubAssistant) EditResume(ctx context.Context, tailored, instruction string) (string, error) {
	return "edited", a.err
}

type stubRenderer struct{ err error }

func (r stubRenderer) Render(ctx context.Context, title string, lines []string) (*export.Artifact, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &export.Artifact{Path: "/tmp/x.docx", Filename: "x.docx"}, nil
}

func (r stubRenderer) Remove(path string) error { return nil }

func newEngine(assistant stubAssistant, renderer stubRenderer) *conversation.Engine {
	return conversation.NewEngine(stubMetadata{}, assistant, renderer, nil, apperrors.Discard())
}

func TestRunConversation(t *testing.T) {
	tests := []struct {
		name      string
		assistant stubAssistant
		renderer  stubRenderer
		inputs    []string
		wantType  apperrors.ErrorType
		wantStep  session.Step
	}{
		{
			name:     "full script",
			inputs:   []string{"John Smith\nEngineer", "Acme posting", "yes"},
			wantStep: session.AwaitingEdits,
		},
		{
			name:      "model failure",
			assistant: stubAssistant{err: errors.New("boom")},
			inputs:    []string{"John Smith", "Acme posting"},
			wantType:  apperrors.ErrorTypeAI,
			wantStep:  session.AwaitingJobPosting,
		},
		{
			name:     "export failure",
			renderer: stubRenderer{err: errors.New("disk full")},
			inputs:   []string{"John Smith", "Acme posting", "yes"},
			wantType: apperrors.ErrorTypeExport,
			wantStep: session.AwaitingEdits,
		},
		{
			name:     "empty resume is rejected",
			inputs:   []string{"  "},
			wantType: apperrors.ErrorTypeValidation,
			wantStep: session.AwaitingResume,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := session.New()
			var events []conversation.Event

			err := RunConversation(context.Background(), apperrors.Discard(), newEngine(tt.assistant, tt.renderer), s,
				tt.inputs, func(ev conversation.Event) { events = append(events, ev) })

			if tt.wantType == "" {
				require.NoError(t, err)
			} else {
				assert.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
			}
			assert.Equal(t, tt.wantStep, s.Step)
			assert.Equal(t, conversation.MsgGreeting, events[0].Entry.Text)
			assert.Len(t, s.Transcript, len(events))
		})
	}
}

func TestRunConversationCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunConversation(ctx, apperrors.Discard(), newEngine(stubAssistant{}, stubRenderer{}), session.New(),
		[]string{"John Smith"}, func(conversation.Event) {})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileProcessorReadFiles(t *testing.T) {
	dir := t.TempDir()
	resume := filepath.Join(dir, "resume.txt")
	posting := filepath.Join(dir, "posting.md")
	require.NoError(t, os.WriteFile(resume, []byte("John Smith"), 0o600))
	require.NoError(t, os.WriteFile(posting, []byte("# Backend Engineer"), 0o600))

	fp := NewFileProcessor(0, apperrors.Discard())
	contents, err := fp.ReadFiles(resume, posting)

	require.NoError(t, err)
	assert.Equal(t, []string{"John Smith", "# Backend Engineer"}, contents)

	_, err = fp.ReadFiles(resume, filepath.Join(dir, "missing.txt"))
	assert.Equal(t, apperrors.ErrCodeFileNotFound, apperrors.CodeOf(err))
}

func TestOutputHandler(t *testing.T) {
	transcript := types.Transcript{
		SessionID: "abc",
		Entries:   []session.Entry{{Speaker: session.SpeakerUser, Text: "hello"}},
	}

	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewOutputHandler(apperrors.Discard()).WithStdout(&buf)

		require.NoError(t, handler.HandleOutput(transcript, CommandConfig{OutputFormat: "text"}))
		assert.Contains(t, buf.String(), "You:\nhello")
	})

	t.Run("file", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "out", "chat.json")
		handler := NewOutputHandler(apperrors.Discard())

		require.NoError(t, handler.HandleOutput(transcript, CommandConfig{OutputFile: target, OutputFormat: "json"}))
		data, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"session_id": "abc"`)
	})

	t.Run("unknown format", func(t *testing.T) {
		err := NewOutputHandler(apperrors.Discard()).HandleOutput(transcript, CommandConfig{OutputFormat: "xml"})
		assert.Equal(t, apperrors.ErrCodeInvalidFormat, apperrors.CodeOf(err))
	})
}
