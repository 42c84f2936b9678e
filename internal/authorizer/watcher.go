package authorizer

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"authflow/pkg/logging"
)

const watcherSubsystem = "CredentialWatcher"

// DefaultDebounceInterval is the time to wait after the last change of the
// credential file before reloading it.
const DefaultDebounceInterval = 500 * time.Millisecond

// DefaultPollInterval is the polling interval used when fsnotify is not
// available.
const DefaultPollInterval = 5 * time.Second

// StateLoader is the part of the Coordinator a CredentialWatcher drives.
type StateLoader interface {
	LoadState() error
	IsAuthorized() bool
}

// CredentialWatcherConfig holds configuration for the credential watcher.
type CredentialWatcherConfig struct {
	// Path is the credential file to watch. Its directory must exist.
	Path string

	// Loader reloads the credential after a change.
	Loader StateLoader

	// OnChange is called after every reload with the new authorization state.
	OnChange func(authorized bool)

	// Debounce overrides DefaultDebounceInterval.
	Debounce time.Duration

	// PollInterval overrides DefaultPollInterval for the polling fallback.
	PollInterval time.Duration
}

// CredentialWatcher reloads the credential when another process (e.g. a
// second "auth login" or "auth logout") writes or removes the file.
type CredentialWatcher struct {
	mu sync.Mutex

	config    CredentialWatcherConfig
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewCredentialWatcher creates a credential watcher.
func NewCredentialWatcher(config CredentialWatcherConfig) (*CredentialWatcher, error) {
	if config.Path == "" {
		return nil, errors.New("credential path is required")
	}
	if config.Loader == nil {
		return nil, errors.New("state loader is required")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounceInterval
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &CredentialWatcher{config: config}, nil
}

// Start begins watching. Calling Start on a running watcher is a no-op.
func (w *CredentialWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.running = true
	dir := filepath.Dir(w.config.Path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn(watcherSubsystem, "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges(w.stopCh)
		return nil
	}

	if err := watcher.Add(dir); err != nil {
		logging.Warn(watcherSubsystem, "Failed to watch directory %s, falling back to polling: %v", dir, err)
		_ = watcher.Close()
		go w.pollForChanges(w.stopCh)
		return nil
	}
	w.fsWatcher = watcher

	go w.processEvents(w.stopCh, watcher.Events, watcher.Errors)

	logging.Info(watcherSubsystem, "Started watching %s for credential changes", dir)
	return nil
}

func (w *CredentialWatcher) processEvents(stopCh <-chan struct{}, eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error(watcherSubsystem, err, "fsnotify error")
		}
	}
}

func (w *CredentialWatcher) handleEvent(event fsnotify.Event) {
	// Temporary files of atomic writes show up as a Create on the target
	// once they are renamed.
	if filepath.Base(event.Name) != filepath.Base(w.config.Path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug(watcherSubsystem, "Credential file changed: %s (%s)", event.Name, event.Op)
	w.triggerReloadDebounced()
}

func (w *CredentialWatcher) triggerReloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, w.reload)
}

func (w *CredentialWatcher) reload() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	if err := w.config.Loader.LoadState(); err != nil {
		logging.Error(watcherSubsystem, err, "Failed to reload credential")
		return
	}

	authorized := w.config.Loader.IsAuthorized()
	logging.Debug(watcherSubsystem, "Reloaded credential, authorized=%t", authorized)
	if w.config.OnChange != nil {
		w.config.OnChange(authorized)
	}
}

// pollForChanges is the fallback when fsnotify cannot watch the directory.
func (w *CredentialWatcher) pollForChanges(stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	last, exists := w.stat()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			modTime, ok := w.stat()
			if ok != exists || !modTime.Equal(last) {
				logging.Debug(watcherSubsystem, "Credential file change detected via polling")
				w.triggerReloadDebounced()
			}
			last, exists = modTime, ok
		}
	}
}

func (w *CredentialWatcher) stat() (time.Time, bool) {
	info, err := os.Stat(w.config.Path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Stop stops the watcher and cancels any pending reload.
func (w *CredentialWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn(watcherSubsystem, "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	logging.Info(watcherSubsystem, "Stopped credential watcher")
	return nil
}

// IsRunning returns whether the watcher is currently active.
func (w *CredentialWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
