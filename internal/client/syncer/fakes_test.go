package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/client/snapshot"
	"github.com/dmitrijs2005/notesync/internal/client/storage"
	"github.com/dmitrijs2005/notesync/internal/client/syncstate"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/require"
)

type fakeFile struct {
	id       string
	name     string
	loc      models.StorageLocation
	content  []byte
	modified time.Time
	// trashed files keep their metadata but are not listed or readable
	trashed bool
}

func (f *fakeFile) remote() models.RemoteFile {
	return models.RemoteFile{ID: f.id, Name: f.name, ModifiedTime: f.modified, Location: f.loc}
}

// fakeRemote is an in-memory remote.Store that counts calls. errs injects
// a failure per method name. When block is set, the method named by
// blockOn signals entered and waits for block to be closed.
type fakeRemote struct {
	mu      sync.Mutex
	files   map[string]*fakeFile
	clock   time.Time
	seq     int
	calls   map[string]int
	errs    map[string]error
	targets []string
	// onDownload runs under the lock after a file is read
	onDownload func(*fakeFile)

	blockOn   string
	block     chan struct{}
	entered   chan struct{}
	active    int
	maxActive int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files: map[string]*fakeFile{},
		clock: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		calls: map[string]int{},
		errs:  map[string]error{},
	}
}

func (f *fakeRemote) put(name string, loc models.StorageLocation, content []byte) models.RemoteFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.clock = f.clock.Add(time.Minute)
	file := &fakeFile{id: fmt.Sprintf("file-%d", f.seq), name: name, loc: loc, content: content, modified: f.clock}
	f.files[file.id] = file
	return file.remote()
}

func (f *fakeRemote) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRemote) trash(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id].trashed = true
}

func (f *fakeRemote) fileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// gate makes the next calls of method block until the returned func runs.
func (f *fakeRemote) gate(method string) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockOn = method
	f.block = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	block := f.block
	return func() { close(block) }
}

func (f *fakeRemote) only(t *testing.T) *fakeFile {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.files, 1)
	for _, file := range f.files {
		return file
	}
	return nil
}

func (f *fakeRemote) enter(method string) error {
	f.mu.Lock()
	f.calls[method]++
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	err := f.errs[method]
	block := f.block
	blocked := block != nil && method == f.blockOn
	f.mu.Unlock()

	if blocked {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-block
	}
	return err
}

func (f *fakeRemote) leave() {
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", common.ErrRemoteNotFound, id)
}

func (f *fakeRemote) FindByName(_ context.Context, name string, loc models.StorageLocation) ([]models.RemoteFile, error) {
	defer f.leave()
	if err := f.enter("FindByName"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RemoteFile
	for _, file := range f.files {
		if file.name == name && file.loc == loc && !file.trashed {
			out = append(out, file.remote())
		}
	}
	remote.SortNewestFirst(out)
	return out, nil
}

func (f *fakeRemote) GetMetadata(_ context.Context, id string) (*models.RemoteFile, error) {
	defer f.leave()
	if err := f.enter("GetMetadata"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, notFound(id)
	}
	r := file.remote()
	return &r, nil
}

func (f *fakeRemote) Download(_ context.Context, id string) ([]byte, error) {
	defer f.leave()
	if err := f.enter("Download"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok || file.trashed {
		return nil, notFound(id)
	}
	if f.onDownload != nil {
		f.onDownload(file)
	}
	return file.content, nil
}

func (f *fakeRemote) Upload(_ context.Context, name string, content []byte, targetID string, loc models.StorageLocation) (models.RemoteFile, error) {
	defer f.leave()
	if err := f.enter("Upload"); err != nil {
		return models.RemoteFile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, targetID)
	f.clock = f.clock.Add(time.Minute)

	if targetID == "" {
		f.seq++
		file := &fakeFile{id: fmt.Sprintf("file-%d", f.seq), name: name, loc: loc, content: content, modified: f.clock}
		f.files[file.id] = file
		return file.remote(), nil
	}
	file, ok := f.files[targetID]
	if !ok {
		return models.RemoteFile{}, notFound(targetID)
	}
	file.content = content
	file.modified = f.clock
	return file.remote(), nil
}

func (f *fakeRemote) EnsureFolder(_ context.Context, name string) (string, error) {
	defer f.leave()
	if err := f.enter("EnsureFolder"); err != nil {
		return "", err
	}
	return "folder-" + name, nil
}

type fakeAuth struct {
	mu          sync.Mutex
	err         error
	invalidated int
	interactive []bool
}

func (a *fakeAuth) Credential(_ context.Context, interactive bool) (models.Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interactive = append(a.interactive, interactive)
	if a.err != nil {
		return models.Credential{}, a.err
	}
	return models.Credential{AccessToken: "tok"}, nil
}

func (a *fakeAuth) Invalidate(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidated++
	return nil
}

func (a *fakeAuth) Available(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err == nil
}

type harness struct {
	dbPath   string
	lockPath string

	engine *Engine
	notes  services.NoteService
	state  *syncstate.Store
	remote *fakeRemote
	auth   *fakeAuth
	now    time.Time

	// factory can be swapped by tests before the first sync
	factory remote.Factory

	mu           sync.Mutex
	events       []StatusEvent
	notesChanged int
}

func newHarness(t *testing.T, loc models.StorageLocation) *harness {
	t.Helper()
	dir := t.TempDir()
	h := openHarness(t, filepath.Join(dir, "notes.db"), filepath.Join(dir, LockFile), newFakeRemote())
	if loc != models.LocationUnset {
		require.NoError(t, h.state.SetLocation(context.Background(), loc))
	}
	return h
}

// twin opens a second engine over the same database, lock file and remote,
// the way the REPL and the daemon share a data directory.
func (h *harness) twin(t *testing.T) *harness {
	t.Helper()
	return openHarness(t, h.dbPath, h.lockPath, h.remote)
}

func openHarness(t *testing.T, dbPath, lockPath string, rs *fakeRemote) *harness {
	t.Helper()

	st, err := storage.Open(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	state := syncstate.New(st.DB, st.Dialect)
	h := &harness{
		dbPath:   dbPath,
		lockPath: lockPath,
		notes:    services.NewNoteService(st.DB, st.Dialect, state),
		state:    state,
		remote:   rs,
		auth:     &fakeAuth{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.factory = func(context.Context, models.Credential) (remote.Store, error) { return h.remote, nil }

	pub := PublisherFuncs{
		Status: func(_ context.Context, ev StatusEvent) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, ev)
		},
		NotesChanged: func(context.Context) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notesChanged++
		},
	}
	factory := func(ctx context.Context, cred models.Credential) (remote.Store, error) {
		return h.factory(ctx, cred)
	}
	h.engine = New(h.notes, state, h.auth, factory, pub, logging.NewNop(), Options{
		RemoteCallTimeout: time.Second,
		Now:               func() time.Time { return h.now },
		LockPath:          lockPath,
	})
	return h
}

func (h *harness) save(t *testing.T, n models.Note) {
	t.Helper()
	_, err := h.notes.Save(context.Background(), n)
	require.NoError(t, err)
}

func (h *harness) load(t *testing.T) syncstate.State {
	t.Helper()
	st, err := h.state.Load(context.Background())
	require.NoError(t, err)
	return st
}

func (h *harness) lastEvent(t *testing.T) StatusEvent {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.events)
	return h.events[len(h.events)-1]
}

func (h *harness) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func encode(t *testing.T, notes ...models.Note) []byte {
	t.Helper()
	b, err := snapshot.Encode(notes, time.Now())
	require.NoError(t, err)
	return b
}

func decode(t *testing.T, content []byte) []models.Note {
	t.Helper()
	s, err := snapshot.Decode(content)
	require.NoError(t, err)
	return s.Notes
}
