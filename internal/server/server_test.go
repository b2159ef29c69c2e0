package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"resumetailor/internal/ai"
	"resumetailor/internal/config"
	"resumetailor/internal/conversation"
	apperrors "resumetailor/internal/errors"
	"resumetailor/internal/export"
	"resumetailor/internal/extract"
	"resumetailor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testResume = "John A. Smith\nSoftware Engineer\nExperience\n- Built services in Go"

type stubMetadata struct{}

func (stubMetadata) Extract(ctx context.Context, posting string) extract.JobMetadata {
	return extract.JobMetadata{Company: "Acme", JobTitle: "Backend Engineer"}
}

type stubAssistant struct {
	tailorErr error
}

func (a stubAssistant) TailorResume(ctx context.Context, resume, posting string) (string, error) {
	if a.tailorErr != nil {
		return "", a.tailorErr
	}
	return "John A. Smith\nBackend Engineer\n- Built services in Go", nil
}

func (stubAssistant) ExplainTailoring(ctx context.Context, tailored, posting string) (string, error) {
	return "Highlighted Go services.", nil
}

func (stubAssistant) EditResume(ctx context.Context, tailored, instruction string) (string, error) {
	return tailored + "\n- " + instruction, nil
}

type stubModels struct {
	available bool
}

func (m stubModels) GetModelInfo(ctx context.Context) map[string]*ai.ModelInfo {
	info := &ai.ModelInfo{Name: "gpt-4o", Provider: "openai", Available: m.available}
	if !m.available {
		info.Error = "connection refused"
	}
	return map[string]*ai.ModelInfo{config.OperationTailor: info}
}

func (stubModels) GetCircuitBreakerStats() map[string]any {
	return map[string]any{config.OperationTailor: map[string]any{"state": "closed"}}
}

type wireEvent struct {
	Kind     string              `json:"kind"`
	Speaker  string              `json:"speaker"`
	Text     string              `json:"text"`
	Step     string              `json:"step"`
	Download *types.DownloadView `json:"download"`
}

type wireSession struct {
	ID             string `json:"id"`
	Step           string `json:"step"`
	CompanyName    string `json:"company_name"`
	JobTitle       string `json:"job_title"`
	TailoredResume string `json:"tailored_resume"`
	HasDownload    bool   `json:"has_download"`
}

type wireResponse struct {
	Session wireSession `json:"session"`
	Events  []wireEvent `json:"events"`
}

func newTestServer(t *testing.T, cfg ServerConfig, assistant stubAssistant) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerExportingTo(t, cfg, assistant, t.TempDir())
}

func newTestServerExportingTo(t *testing.T, cfg ServerConfig, assistant stubAssistant, exportDir string) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.Sessions.MaxSessions == 0 {
		cfg.Sessions.MaxSessions = 10
	}
	logger := apperrors.Discard()
	engine := conversation.NewEngine(stubMetadata{}, assistant, export.NewDocxRenderer(exportDir), nil, logger,
		conversation.WithEphemeralExports())
	s := NewServer(nil, cfg, Dependencies{Engine: engine, Models: stubModels{available: true}}, logger)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		if s.RateLimiter != nil {
			s.RateLimiter.Close()
		}
	})
	return s, ts
}

func do(t *testing.T, method, url, body string, header map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func messageBody(t *testing.T, text string) string {
	t.Helper()
	data, err := json.Marshal(types.MessageRequest{Text: text})
	require.NoError(t, err)
	return string(data)
}

func createSession(t *testing.T, ts *httptest.Server) wireResponse {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/sessions", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[wireResponse](t, resp)
}

func sendMessage(t *testing.T, ts *httptest.Server, id, text string) wireResponse {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/sessions/"+id+"/messages", messageBody(t, text), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[wireResponse](t, resp)
}

func eventTexts(events []wireEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Text
	}
	return out
}

func TestSessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, stubAssistant{})

	created := createSession(t, ts)
	id := created.Session.ID
	require.NotEmpty(t, id)
	assert.Equal(t, "awaiting_resume", created.Session.Step)
	require.Len(t, created.Events, 1)
	assert.Equal(t, conversation.MsgGreeting, created.Events[0].Text)

	out := sendMessage(t, ts, id, testResume)
	assert.Equal(t, "awaiting_job_posting", out.Session.Step)
	assert.Equal(t, []string{testResume, conversation.MsgResumeReceived}, eventTexts(out.Events))

	out = sendMessage(t, ts, id, "Acme is hiring a Backend Engineer")
	assert.Equal(t, "awaiting_download_choice", out.Session.Step)
	assert.Equal(t, "Acme", out.Session.CompanyName)
	assert.Equal(t, "Backend Engineer", out.Session.JobTitle)
	assert.Contains(t, eventTexts(out.Events), "Company: Acme")
	assert.Contains(t, eventTexts(out.Events), conversation.MsgDownloadPrompt)

	out = sendMessage(t, ts, id, "Yes")
	assert.Equal(t, "awaiting_edits", out.Session.Step)
	assert.True(t, out.Session.HasDownload)
	var download *types.DownloadView
	for _, ev := range out.Events {
		if ev.Kind == string(conversation.KindDownload) {
			download = ev.Download
		}
	}
	require.NotNil(t, download)
	assert.Equal(t, "/sessions/"+id+"/download", download.URL)

	resp := do(t, http.MethodGet, ts.URL+download.URL, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, docxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "PK"), "docx is a zip archive")

	out = sendMessage(t, ts, id, "mention Kubernetes")
	assert.Equal(t, "awaiting_edits", out.Session.Step)
	assert.Contains(t, out.Session.TailoredResume, "- mention Kubernetes")

	resp = do(t, http.MethodDelete, ts.URL+"/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func exportedFiles(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.docx"))
	require.NoError(t, err)
	return files
}

func TestExportsRemovedWithSession(t *testing.T) {
	dir := t.TempDir()
	s, ts := newTestServerExportingTo(t, ServerConfig{Sessions: config.SessionConfig{TTL: time.Minute}}, stubAssistant{}, dir)

	exportOnce := func(id string) {
		sendMessage(t, ts, id, testResume)
		sendMessage(t, ts, id, "Acme is hiring a Backend Engineer")
		out := sendMessage(t, ts, id, "Yes")
		require.True(t, out.Session.HasDownload)
	}

	deleted := createSession(t, ts).Session.ID
	exportOnce(deleted)
	require.Len(t, exportedFiles(t, dir), 1)

	sendMessage(t, ts, deleted, "New Resume")
	assert.Empty(t, exportedFiles(t, dir), "restart drops the previous document")
	exportOnce(deleted)
	require.Len(t, exportedFiles(t, dir), 1)

	resp := do(t, http.MethodDelete, ts.URL+"/sessions/"+deleted, "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, exportedFiles(t, dir), "delete drops the document")

	idle := createSession(t, ts).Session.ID
	exportOnce(idle)
	require.Len(t, exportedFiles(t, dir), 1)
	assert.Equal(t, 1, s.Sessions.EvictIdle(time.Now().Add(2*time.Minute)))
	assert.Empty(t, exportedFiles(t, dir), "eviction drops the document")

	kept := createSession(t, ts).Session.ID
	exportOnce(kept)
	require.Len(t, exportedFiles(t, dir), 1)
	s.cleanup()
	assert.Empty(t, exportedFiles(t, dir), "shutdown drops the remaining documents")
}

func TestCreateSessionSetsLocation(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, stubAssistant{})

	resp := do(t, http.MethodPost, ts.URL+"/sessions", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[wireResponse](t, resp)
	assert.Equal(t, "/sessions/"+out.Session.ID, resp.Header.Get("Location"))
}

func TestMessageEventStream(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, stubAssistant{})
	id := createSession(t, ts).Session.ID
	sendMessage(t, ts, id, testResume)

	resp := do(t, http.MethodPost, ts.URL+"/sessions/"+id+"/messages",
		messageBody(t, "Acme is hiring a Backend Engineer"),
		map[string]string{"Accept": "text/event-stream"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var names []string
	var last string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			last = data
		}
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, names)
	assert.Equal(t, "user", names[0])
	assert.Equal(t, "status", names[1])
	assert.Equal(t, "session", names[len(names)-1])

	var settled wireSession
	require.NoError(t, json.Unmarshal([]byte(last), &settled))
	assert.Equal(t, "awaiting_download_choice", settled.Step)
}

func TestModelFailureKeepsStep(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, stubAssistant{tailorErr: errors.New("boom")})
	id := createSession(t, ts).Session.ID
	sendMessage(t, ts, id, testResume)

	out := sendMessage(t, ts, id, "Acme is hiring")
	assert.Equal(t, "awaiting_job_posting", out.Session.Step)
	last := out.Events[len(out.Events)-1]
	assert.Equal(t, string(conversation.KindError), last.Kind)
	assert.Equal(t, conversation.MsgModelCallFailed, last.Text)
}

func TestGetSessionFormats(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{BotName: "Tailor"}, stubAssistant{})
	id := createSession(t, ts).Session.ID
	sendMessage(t, ts, id, testResume)

	resp := do(t, http.MethodGet, ts.URL+"/sessions/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_job_posting", decode[wireSession](t, resp).Step)

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"text", "text/plain; charset=utf-8", "=== CONVERSATION ==="},
		{"markdown", "text/markdown; charset=utf-8", "# Conversation"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			resp := do(t, http.MethodGet, ts.URL+"/sessions/"+id+"?format="+tt.format, "", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tt.contains)
			assert.Contains(t, string(body), "Tailor")
		})
	}

	resp = do(t, http.MethodGet, ts.URL+"/sessions/"+id+"?format=xml", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, stubAssistant{})

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/sessions/missing", ""},
		{http.MethodDelete, "/sessions/missing", ""},
		{http.MethodGet, "/sessions/missing/download", ""},
		{http.MethodPost, "/sessions/missing/messages", `{"text":"hi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := do(t, tt.method, ts.URL+tt.path, tt.body, nil)
			require.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Equal(t, apperrors.ErrCodeSessionNotFound, decode[types.ErrorResponse](t, resp).Code)
		})
	}
}

func TestDownloadBeforeExport(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, stubAssistant{})
	id := createSession(t, ts).Session.ID

	resp := do(t, http.MethodGet, ts.URL+"/sessions/"+id+"/download", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidMessageRequests(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{MaxRequestSize: 64}, stubAssistant{})
	id := createSession(t, ts).Session.ID
	url := ts.URL + "/sessions/" + id + "/messages"

	resp := do(t, http.MethodPost, url, "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, url, `{"text":"hi"}`, map[string]string{"Content-Type": "text/plain"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, url, messageBody(t, strings.Repeat("x", 200)), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[types.ErrorResponse](t, resp).Message, "too large")
}

func TestAuthentication(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{APIKeys: []string{"secret-key-123"}}, stubAssistant{})

	resp := do(t, http.MethodPost, ts.URL+"/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/sessions", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/sessions", "", map[string]string{"X-API-Key": "secret-key-123"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/sessions", "", map[string]string{"Authorization": "Bearer secret-key-123"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	cfg := ServerConfig{RateLimit: &config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 1, ByIP: true}}
	_, ts := newTestServer(t, cfg, stubAssistant{})

	resp := do(t, http.MethodGet, ts.URL+"/sessions/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/sessions/missing", "", nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp = do(t, http.MethodGet, ts.URL+"/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[types.StatsResponse](t, resp)
	assert.Equal(t, true, stats.RateLimiting["enabled"])
}

func TestSessionLimit(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{Sessions: config.SessionConfig{MaxSessions: 1}}, stubAssistant{})
	createSession(t, ts)

	resp := do(t, http.MethodPost, ts.URL+"/sessions", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, apperrors.ErrCodeSessionLimit, decode[types.ErrorResponse](t, resp).Code)
}

func TestHealth(t *testing.T) {
	s, ts := newTestServer(t, ServerConfig{Version: "1.2.3"}, stubAssistant{})

	resp := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[types.HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
	assert.True(t, health.Models[config.OperationTailor].Available)
	assert.Contains(t, health.Breakers, config.OperationTailor)

	s.Models = stubModels{available: false}
	resp = do(t, http.MethodGet, ts.URL+"/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	health = decode[types.HealthResponse](t, resp)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "connection refused", health.Models[config.OperationTailor].Error)
}

func TestStats(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{MaxRequestSize: 1024}, stubAssistant{})
	createSession(t, ts)
	createSession(t, ts)

	resp := do(t, http.MethodGet, ts.URL+"/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[types.StatsResponse](t, resp)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, int64(1024), stats.MaxRequestSize)
	assert.Equal(t, false, stats.RateLimiting["enabled"])
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "junk, 10.0.0.1, 10.0.0.2"}, "1.2.3.4:5", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "1.2.3.4:5", "10.0.0.9"},
		{"invalid real ip", map[string]string{"X-Real-IP": "nope"}, "1.2.3.4:5", "1.2.3.4"},
		{"remote addr", nil, "1.2.3.4:5", "1.2.3.4"},
		{"no port", nil, "1.2.3.4", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "abcdefgh****", maskAPIKey("abcdefghijkl"))
}

func TestLimiterCleanup(t *testing.T) {
	m := NewRateLimiter(60, 5, apperrors.Discard())
	defer m.Close()

	m.GetLimiter("ip:1.2.3.4")
	m.cleanup(time.Now().Add(time.Hour), time.Minute)
	assert.Equal(t, 0, m.GetStats()["active_limiters"])
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, ServerConfig{}, stubAssistant{})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
