package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPromptStoreLoad(t *testing.T) {
	dir := t.TempDir()
	personaFile := filepath.Join(dir, "persona.md")
	tailorFile := filepath.Join(dir, "tailor.md")

	if err := os.WriteFile(personaFile, []byte("  You are a terse recruiter.\n"), 0600); err != nil {
		t.Fatalf("Failed to write persona file: %v", err)
	}
	if err := os.WriteFile(tailorFile, []byte("Reorder only."), 0600); err != nil {
		t.Fatalf("Failed to write tailor file: %v", err)
	}

	cfg := &Config{
		AI: AIConfig{
			PersonaFile: personaFile,
			Tailor:      OperationAIConfig{Prompts: PromptConfig{SystemFile: tailorFile}},
			Edit:        OperationAIConfig{Prompts: PromptConfig{System: "  Keep the format.  "}},
		},
	}

	store := NewPromptStore()
	if err := store.Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := store.Persona(); got != "You are a terse recruiter." {
		t.Errorf("Persona() = %q", got)
	}
	if got := store.Get(OperationTailor).System; got != "Reorder only." {
		t.Errorf("tailor system = %q", got)
	}
	if got := store.Get(OperationEdit).System; got != "Keep the format." {
		t.Errorf("edit system = %q", got)
	}
	if got := store.Get(OperationExplain); got != (LoadedPrompts{}) {
		t.Errorf("explain prompts = %+v, want empty", got)
	}
	if len(store.Files()) != 2 {
		t.Errorf("Files() = %v, want 2 entries", store.Files())
	}
}

func TestPromptStoreLoadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "explain.md")
	if err := os.WriteFile(file, []byte("Explain briefly."), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{AI: AIConfig{Explain: OperationAIConfig{Prompts: PromptConfig{SystemFile: file}}}}

	store := NewPromptStore()
	if err := store.Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := os.WriteFile(file, []byte("   "), 0600); err != nil {
		t.Fatal(err)
	}
	if err := store.Load(cfg); err == nil {
		t.Fatal("expected error for empty prompt file")
	}
	if got := store.Get(OperationExplain).System; got != "Explain briefly." {
		t.Errorf("previous prompt lost, got %q", got)
	}
}

func TestValidatePromptFiles(t *testing.T) {
	cfg := &Config{AI: AIConfig{
		PersonaFile: "/nonexistent/persona.md",
		Extract:     OperationAIConfig{Prompts: PromptConfig{UserFile: "/nonexistent/extract.md"}},
	}}

	err := cfg.validatePromptFiles()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"persona prompt file not found", "extract user prompt file not found"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err.Error(), want)
		}
	}
}

func TestPromptWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "edit.md")
	if err := os.WriteFile(file, []byte("first"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{AI: AIConfig{Edit: OperationAIConfig{Prompts: PromptConfig{SystemFile: file}}}}
	if err := cfg.Prompts().Load(cfg); err != nil {
		t.Fatal(err)
	}

	watcher := NewPromptWatcher(cfg, 20*time.Millisecond, newTestLogger())
	reloaded := make(chan struct{}, 1)
	watcher.OnReload(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	if err := os.WriteFile(file, []byte("second"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for prompt reload")
	}
	if got := cfg.Prompts().Get(OperationEdit).System; got != "second" {
		t.Errorf("edit system after reload = %q, want %q", got, "second")
	}
}
