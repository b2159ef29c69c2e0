package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"resumetailor/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// PromptWatcher reloads a PromptStore when one of its prompt files changes on disk
type PromptWatcher struct {
	mu sync.Mutex

	cfg    *Config
	store  *PromptStore
	logger *errors.Logger

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}
	running    bool

	onReload func()
}

// NewPromptWatcher creates a watcher for the prompt files referenced by cfg
func NewPromptWatcher(cfg *Config, debounceDelay time.Duration, logger *errors.Logger) *PromptWatcher {
	if debounceDelay == 0 {
		debounceDelay = 500 * time.Millisecond
	}
	return &PromptWatcher{
		cfg:           cfg,
		store:         cfg.Prompts(),
		logger:        logger,
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
	}
}

// OnReload registers a callback invoked after each successful reload.
func (pw *PromptWatcher) OnReload(fn func()) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.onReload = fn
}

// Start begins watching. It is a no-op when no prompt files are configured.
func (pw *PromptWatcher) Start() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.running {
		return fmt.Errorf("prompt watcher is already running")
	}

	files := pw.store.Files()
	if len(files) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	pw.fsWatcher = watcher

	// Directories catch editors that replace files through rename.
	dirs := make(map[string]struct{})
	for _, file := range files {
		dirs[filepath.Dir(file)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			pw.logger.Warn("Failed to watch prompt directory", "directory", dir, "error", err)
		}
	}

	pw.running = true
	go pw.watchLoop(files)

	pw.logger.Info("Prompt file watcher started", "files", files, "debounce_delay", pw.debounceDelay)
	return nil
}

// Stop stops the watcher
func (pw *PromptWatcher) Stop() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if !pw.running {
		return nil
	}
	close(pw.stopChan)
	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.running = false
	return pw.fsWatcher.Close()
}

func (pw *PromptWatcher) watchLoop(files []string) {
	for {
		select {
		case event, ok := <-pw.fsWatcher.Events:
			if !ok {
				return
			}
			if isPromptEvent(event, files) {
				pw.scheduleReload()
			}

		case err, ok := <-pw.fsWatcher.Errors:
			if !ok {
				return
			}
			pw.logger.LogError(err, "Prompt watcher error")

		case <-pw.reloadChan:
			pw.reload()

		case <-pw.stopChan:
			return
		}
	}
}

func (pw *PromptWatcher) reload() {
	if err := pw.store.Load(pw.cfg); err != nil {
		pw.logger.LogError(err, "Prompt reload failed, keeping previous prompts")
		return
	}
	pw.logger.Info("Prompts reloaded", "files", pw.store.Files())

	pw.mu.Lock()
	fn := pw.onReload
	pw.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func isPromptEvent(event fsnotify.Event, files []string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		name = event.Name
	}
	return slices.Contains(files, name)
}

func (pw *PromptWatcher) scheduleReload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.debounceTimer = time.AfterFunc(pw.debounceDelay, func() {
		select {
		case pw.reloadChan <- struct{}{}:
		default:
		}
	})
}
