package authorizer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeRecorder struct {
	mu      sync.Mutex
	changes []bool
}

func (r *changeRecorder) record(authorized bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, authorized)
}

func (r *changeRecorder) last() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return false, false
	}
	return r.changes[len(r.changes)-1], true
}

func TestNewCredentialWatcher_Validation(t *testing.T) {
	_, err := NewCredentialWatcher(CredentialWatcherConfig{})
	assert.Error(t, err)

	_, err = NewCredentialWatcher(CredentialWatcherConfig{Path: "/tmp/x.json"})
	assert.Error(t, err)
}

func TestCredentialWatcher_ReloadsOnExternalChanges(t *testing.T) {
	p := newFakeProvider(t)
	dir := t.TempDir()

	ours, err := NewCredentialStore(CredentialStoreConfig{StorageDir: dir, FileMode: true})
	require.NoError(t, err)
	theirs, err := NewCredentialStore(CredentialStoreConfig{StorageDir: dir, FileMode: true})
	require.NoError(t, err)

	c := newTestCoordinator(t, p, &recordingAgent{}, ours)
	require.NoError(t, c.LoadState())
	require.False(t, c.IsAuthorized())

	recorder := &changeRecorder{}
	w, err := NewCredentialWatcher(CredentialWatcherConfig{
		Path:     ours.Path(c.CredentialName()),
		Loader:   c,
		OnChange: recorder.record,
		Debounce: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()
	assert.True(t, w.IsRunning())

	// Another process logs in.
	require.NoError(t, theirs.Save(c.CredentialName(), testCredential("from-elsewhere")))

	require.Eventually(t, func() bool {
		authorized, ok := recorder.last()
		return ok && authorized
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "from-elsewhere", c.Credential().AccessToken)

	// Another process logs out.
	require.NoError(t, theirs.Remove(c.CredentialName()))

	require.Eventually(t, func() bool {
		authorized, ok := recorder.last()
		return ok && !authorized
	}, 5*time.Second, 20*time.Millisecond)
	assert.False(t, c.IsAuthorized())
}

func TestCredentialWatcher_IgnoresOtherFiles(t *testing.T) {
	p := newFakeProvider(t)
	dir := t.TempDir()

	store, err := NewCredentialStore(CredentialStoreConfig{StorageDir: dir, FileMode: true})
	require.NoError(t, err)
	c := newTestCoordinator(t, p, &recordingAgent{}, store)

	recorder := &changeRecorder{}
	w, err := NewCredentialWatcher(CredentialWatcherConfig{
		Path:     store.Path(c.CredentialName()),
		Loader:   c,
		OnChange: recorder.record,
		Debounce: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()

	require.NoError(t, store.Save("someone-else", testCredential("other")))

	time.Sleep(200 * time.Millisecond)
	_, changed := recorder.last()
	assert.False(t, changed)
}

func TestCredentialWatcher_StartStopIdempotent(t *testing.T) {
	p := newFakeProvider(t)
	store, err := NewCredentialStore(CredentialStoreConfig{StorageDir: t.TempDir(), FileMode: true})
	require.NoError(t, err)
	c := newTestCoordinator(t, p, &recordingAgent{}, store)

	w, err := NewCredentialWatcher(CredentialWatcherConfig{
		Path:   store.Path(c.CredentialName()),
		Loader: c,
	})
	require.NoError(t, err)

	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}

func TestCredentialWatcher_PollingFallback(t *testing.T) {
	p := newFakeProvider(t)
	dir := t.TempDir()
	store, err := NewCredentialStore(CredentialStoreConfig{StorageDir: dir, FileMode: true})
	require.NoError(t, err)
	c := newTestCoordinator(t, p, &recordingAgent{}, store)

	recorder := &changeRecorder{}
	w, err := NewCredentialWatcher(CredentialWatcherConfig{
		Path:         store.Path(c.CredentialName()),
		Loader:       c,
		OnChange:     recorder.record,
		Debounce:     10 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	// Drive the polling loop directly.
	w.mu.Lock()
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()
	go w.pollForChanges(w.stopCh)
	defer func() { _ = w.Stop() }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, store.Save(c.CredentialName(), testCredential("polled")))

	require.Eventually(t, func() bool {
		authorized, ok := recorder.last()
		return ok && authorized
	}, 5*time.Second, 20*time.Millisecond)
}
