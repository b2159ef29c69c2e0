package ai

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"resumetailor/internal/config"
	apperrors "resumetailor/internal/errors"
	"resumetailor/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	requests []Request
	text     string
	err      error
}

func (f *fakeProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Text: f.text, Usage: &TokenUsage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2}}, nil
}

func (f *fakeProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	return &ModelInfo{Name: "fake", Provider: "fake", Available: true}
}

func (f *fakeProvider) GetCircuitBreakerStats() map[string]any {
	return map[string]any{"overall_healthy": true}
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Close() error { return nil }

func newFakeService(prompts *config.PromptStore) (*Service, map[string]*fakeProvider) {
	fakes := map[string]*fakeProvider{
		config.OperationExtract: {text: `{"company":"Acme","job_title":"Engineer"}`},
		config.OperationTailor:  {text: "tailored"},
		config.OperationExplain: {text: "explanation"},
		config.OperationEdit:    {text: "edited"},
	}
	providers := make(map[string]Provider, len(fakes))
	for op, f := range fakes {
		providers[op] = f
	}
	return NewServiceWithProviders(providers, prompts, observability.NewNoopManager(), apperrors.Discard()), fakes
}

func TestServiceRequestShapes(t *testing.T) {
	svc, fakes := newFakeService(nil)
	ctx := context.Background()

	raw, err := svc.ExtractMetadata(ctx, "Acme is hiring", json.RawMessage(`{"type":"object"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"company":"Acme","job_title":"Engineer"}`, string(raw))

	extract := fakes[config.OperationExtract].requests[0]
	require.NotNil(t, extract.Schema)
	assert.Equal(t, MetadataFunctionName, extract.Schema.Name)
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: DefaultExtractSystem},
		{Role: RoleUser, Content: "Please extract metadata from the following job posting.\n\nAcme is hiring"},
	}, extract.Messages)

	tailored, err := svc.TailorResume(ctx, "my resume", "the posting")
	require.NoError(t, err)
	assert.Equal(t, "tailored", tailored)
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: DefaultPersona},
		{Role: RoleSystem, Content: DefaultTailorInstruction},
		{Role: RoleSystem, Content: "Resume:\nmy resume"},
		{Role: RoleSystem, Content: "Job Posting:\nthe posting"},
	}, fakes[config.OperationTailor].requests[0].Messages)

	explanation, err := svc.ExplainTailoring(ctx, "tailored", "the posting")
	require.NoError(t, err)
	assert.Equal(t, "explanation", explanation)
	assert.Equal(t, "Tailored Resume:\ntailored", fakes[config.OperationExplain].requests[0].Messages[2].Content)

	edited, err := svc.EditResume(ctx, "tailored", "Make it shorter")
	require.NoError(t, err)
	assert.Equal(t, "edited", edited)
	editMessages := fakes[config.OperationEdit].requests[0].Messages
	assert.Equal(t, Message{Role: RoleUser, Content: "Make it shorter"}, editMessages[len(editMessages)-1])
}

func TestServiceUsesPromptOverrides(t *testing.T) {
	dir := t.TempDir()
	personaFile := filepath.Join(dir, "persona.txt")
	require.NoError(t, os.WriteFile(personaFile, []byte("You are a concise editor."), 0o600))

	cfg := &config.Config{}
	cfg.AI.PersonaFile = personaFile
	cfg.AI.Tailor.Prompts.System = "Only reorder, never reword."
	cfg.AI.Extract.Prompts.User = "Posting without verb"

	prompts := config.NewPromptStore()
	require.NoError(t, prompts.Load(cfg))

	svc, fakes := newFakeService(prompts)
	ctx := context.Background()

	_, err := svc.TailorResume(ctx, "r", "p")
	require.NoError(t, err)
	msgs := fakes[config.OperationTailor].requests[0].Messages
	assert.Equal(t, "You are a concise editor.", msgs[0].Content)
	assert.Equal(t, "Only reorder, never reword.", msgs[1].Content)

	_, err = svc.ExtractMetadata(ctx, "posting body", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "Posting without verb\n\nposting body", fakes[config.OperationExtract].requests[0].Messages[1].Content)
}

func TestServiceWrapsProviderErrors(t *testing.T) {
	svc, fakes := newFakeService(nil)
	fakes[config.OperationTailor].err = errors.New("connection reset")

	_, err := svc.TailorResume(context.Background(), "r", "p")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAI))
	assert.Equal(t, apperrors.ErrCodeAIServiceFailed, apperrors.CodeOf(err))
}

func TestServiceMissingProvider(t *testing.T) {
	svc := NewServiceWithProviders(map[string]Provider{}, nil, nil, apperrors.Discard())

	_, err := svc.EditResume(context.Background(), "r", "e")
	assert.Equal(t, apperrors.ErrCodeInvalidConfig, apperrors.CodeOf(err))
}

func TestServiceModelInfoAndStats(t *testing.T) {
	svc, _ := newFakeService(nil)

	info := svc.GetModelInfo(context.Background())
	assert.Len(t, info, len(config.Operations))
	assert.True(t, info[config.OperationTailor].Available)

	stats := svc.GetCircuitBreakerStats()
	assert.Contains(t, stats, config.OperationEdit)
	assert.NoError(t, svc.Close())
}

func TestFillTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"single verb", "Posting:\n%s", "Posting:\nbody"},
		{"no verb", "Extract fields.", "Extract fields.\n\nbody"},
		{"two verbs", "%s and %s", "%s and %s\n\nbody"},
		{"literal percent", "Keep 100% of the facts.\nPosting:\n%s", "Keep 100% of the facts.\nPosting:\nbody"},
		{"escaped percent", "Cut 50%% of filler from %s", "Cut 50%% of filler from body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fillTemplate(tt.template, "body"))
		})
	}

	assert.Equal(t, "Posting:\nPay 10%d more", fillTemplate("Posting:\n%s", "Pay 10%d more"))
}
