package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"resumetailor/internal/errors"
)

// LoadedPrompts holds the effective prompt overrides of one operation.
// Empty fields mean the built-in prompt applies.
type LoadedPrompts struct {
	System string
	User   string
}

// PromptStore holds prompt overrides resolved from config and prompt files.
// It is safe for concurrent use and can be reloaded while the process runs.
type PromptStore struct {
	mu         sync.RWMutex
	persona    string
	operations map[string]LoadedPrompts
	files      []string
}

func NewPromptStore() *PromptStore {
	return &PromptStore{operations: make(map[string]LoadedPrompts)}
}

// Persona returns the configured persona override, or "".
func (ps *PromptStore) Persona() string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.persona
}

// Get returns the overrides for operation.
func (ps *PromptStore) Get(operation string) LoadedPrompts {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.operations[operation]
}

// Files returns the prompt files referenced by the last successful load.
func (ps *PromptStore) Files() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return append([]string(nil), ps.files...)
}

// Load resolves every prompt override of cfg. On error the previous contents are kept.
func (ps *PromptStore) Load(cfg *Config) error {
	var files []string

	persona, err := resolvePrompt(cfg.AI.Persona, cfg.AI.PersonaFile, "persona", &files)
	if err != nil {
		return err
	}

	operations := make(map[string]LoadedPrompts, len(Operations))
	for _, op := range Operations {
		pc := cfg.promptConfigFor(op)
		system, err := resolvePrompt(pc.System, pc.SystemFile, op+" system", &files)
		if err != nil {
			return err
		}
		user, err := resolvePrompt(pc.User, pc.UserFile, op+" user", &files)
		if err != nil {
			return err
		}
		operations[op] = LoadedPrompts{System: system, User: user}
	}

	ps.mu.Lock()
	ps.persona = persona
	ps.operations = operations
	ps.files = files
	ps.mu.Unlock()

	if len(files) == 0 {
		log.Println("[CONFIG] No prompt files configured - using inline or built-in prompts")
	} else {
		log.Printf("[CONFIG] Total prompt files loaded: %d", len(files))
	}
	return nil
}

func resolvePrompt(inline, file, label string, files *[]string) (string, error) {
	if file == "" {
		return strings.TrimSpace(inline), nil
	}
	content, err := loadPromptFromFile(file, label)
	if err != nil {
		return "", err
	}
	abs, _ := filepath.Abs(file)
	*files = append(*files, abs)
	return content, nil
}

// loadPromptFromFile reads a prompt file, rejecting missing or empty files
func loadPromptFromFile(filePath, label string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("failed to resolve absolute path for %s prompt file '%s'", label, filePath), err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewConfigError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("%s prompt file not found: %s", label, absPath), err)
		}
		return "", errors.NewConfigError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("failed to read %s prompt file '%s'", label, absPath), err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("%s prompt file '%s' is empty", label, absPath), nil)
	}

	log.Printf("[CONFIG] Loaded %s prompt from file: %s (%d characters)", label, absPath, len(trimmed))
	return trimmed, nil
}

// validatePromptFiles reports every missing prompt file at once
func (c *Config) validatePromptFiles() error {
	var problems []string

	check := func(filePath, label string) {
		if filePath == "" {
			return
		}
		absPath, err := filepath.Abs(filePath)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid path for %s prompt: %s", label, filePath))
			return
		}
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("%s prompt file not found: %s", label, absPath))
		}
	}

	check(c.AI.PersonaFile, "persona")
	for _, op := range Operations {
		pc := c.promptConfigFor(op)
		check(pc.SystemFile, op+" system")
		check(pc.UserFile, op+" user")
	}

	if len(problems) > 0 {
		return errors.NewConfigError(errors.ErrCodeFileNotFound,
			"prompt file validation failed:\n"+strings.Join(problems, "\n"), nil)
	}
	return nil
}
