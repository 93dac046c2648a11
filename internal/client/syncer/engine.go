// Package syncer runs sync cycles between the local note store and the
// remote snapshot file.
//
// A cycle downloads the remote snapshot, merges it into the local store
// with last-writer-wins, decides whether to upload, uploads the full local
// set and reports a status. At most one cycle runs at a time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/auth"
	"github.com/dmitrijs2005/notesync/internal/client/merge"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/client/syncstate"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"
)

// DefaultFileName is the remote snapshot file name.
const DefaultFileName = "notesync_data.json"

// LockFile is the cycle lock shared by every process syncing one data
// directory.
const LockFile = "sync.lock"

const lastSyncLayout = "2006-01-02 15:04:05"

// lockRetryDelay is how often a queued caller polls a cycle lock held by
// another process.
const lockRetryDelay = 100 * time.Millisecond

var errBusy = errors.New("sync cycle in flight")

const (
	msgDisabled          = "Sync disabled"
	msgAuthFailed        = "Error: Authentication failed. Please reconnect."
	msgChooseLocation    = "Please choose a storage location first."
	msgDownloading       = "Syncing (downloading)..."
	msgUploading         = "Syncing (uploading)..."
	msgNewFile           = "Synced (new file created)"
	msgConsistency       = "Internal error: inconsistent sync state, please report this."
	msgNotFoundOnSave    = "Could not save remotely (not found)."
	msgUnexpected        = "Sync error: unexpected problem. See logs."
	msgAlreadyConfigured = "Storage location already set."
	msgNothingFound      = "No existing notesync data found. Please choose a storage location."
)

// StateStore is the persisted sync state used by the engine.
type StateStore interface {
	Load(ctx context.Context) (syncstate.State, error)
	SetRemote(ctx context.Context, f models.RemoteFile) error
	SetModifiedTime(ctx context.Context, t time.Time) error
	ClearRemote(ctx context.Context) error
	ClearRemoteIf(ctx context.Context, id string) (bool, error)
	ChangeLocation(ctx context.Context, loc models.StorageLocation) (bool, error)
	SetDiscovered(ctx context.Context, f models.RemoteFile) error
	SetLastSync(ctx context.Context, t time.Time) error
	SetLastSessionSync(ctx context.Context, t time.Time) error
	CommitUpload(ctx context.Context, f models.RemoteFile, observedSeq int64) (bool, error)
}

// Notes is the local note store as seen by the engine.
type Notes interface {
	merge.Store
	List(ctx context.Context, includeTombstones bool) ([]models.Note, error)
	CountActive(ctx context.Context) (int, error)
}

type Options struct {
	FileName string
	// RemoteCallTimeout bounds every single remote call. Zero disables it.
	RemoteCallTimeout time.Duration
	Now               func() time.Time
	// LockPath is held for the length of every cycle so that engines in
	// other processes over the same store wait or drop. Empty keeps the
	// exclusion in process.
	LockPath string
}

// Result describes one finished (or refused) cycle.
type Result struct {
	Trigger  Trigger
	Outcome  DownloadOutcome
	Decision UploadDecision
	Uploaded bool

	NewFileCreated bool
	Healthy        bool
	Message        string

	// PreferenceDiscovered is set when a discovery cycle adopted a location.
	PreferenceDiscovered bool
	Location             models.StorageLocation

	// Dropped is set when an automatic trigger found a cycle in flight.
	Dropped bool
	Err     error
}

// StatusReport is a point-in-time view of the sync state.
type StatusReport struct {
	LastSyncTime  time.Time
	Authenticated bool
	FileID        string
	Location      models.StorageLocation
	Phase         syncstate.Phase
	Dirty         bool
}

type Engine struct {
	notes   Notes
	state   StateStore
	auth    auth.Provider
	factory remote.Factory
	pub     Publisher
	log     logging.Logger
	locator *Locator

	fileName    string
	callTimeout time.Duration
	now         func() time.Time

	sem         *semaphore.Weighted
	lock        *flock.Flock
	discovering atomic.Bool
}

func New(notes Notes, state StateStore, provider auth.Provider, factory remote.Factory, pub Publisher, log logging.Logger, opts Options) *Engine {
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if pub == nil {
		pub = Publishers(nil)
	}
	var lock *flock.Flock
	if opts.LockPath != "" {
		lock = flock.New(opts.LockPath)
	}
	return &Engine{
		notes:       notes,
		state:       state,
		auth:        provider,
		factory:     factory,
		pub:         pub,
		log:         log,
		locator:     NewLocator(state, log),
		fileName:    opts.FileName,
		callTimeout: opts.RemoteCallTimeout,
		now:         opts.Now,
		sem:         semaphore.NewWeighted(1),
		lock:        lock,
	}
}

// Sync runs one cycle. Manual and discovery triggers wait for a running
// cycle; automatic triggers are dropped while one is in flight.
func (e *Engine) Sync(ctx context.Context, trig Trigger) Result {
	release, err := e.acquire(ctx, trig.queues())
	if errors.Is(err, errBusy) {
		e.log.Info(ctx, "sync in progress, trigger dropped", "trigger", trig.String())
		return Result{Trigger: trig, Dropped: true}
	}
	if err != nil {
		return Result{Trigger: trig, Err: err}
	}
	defer release()

	return e.runSafe(ctx, trig)
}

// acquire takes the in-process semaphore and then the cycle lock file.
// With wait unset it returns errBusy as soon as either is held.
func (e *Engine) acquire(ctx context.Context, wait bool) (func(), error) {
	if wait {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	} else if !e.sem.TryAcquire(1) {
		return nil, errBusy
	}
	if e.lock == nil {
		return func() { e.sem.Release(1) }, nil
	}

	var (
		locked bool
		err    error
	)
	if wait {
		locked, err = e.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = e.lock.TryLock()
	}
	switch {
	case err != nil && ctx.Err() != nil:
		e.sem.Release(1)
		return nil, ctx.Err()
	case err != nil:
		e.sem.Release(1)
		return nil, fmt.Errorf("cycle lock %s: %w", e.lock.Path(), err)
	case !locked:
		e.sem.Release(1)
		return nil, errBusy
	}

	return func() {
		if err := e.lock.Unlock(); err != nil {
			e.log.Error(ctx, "failed to release cycle lock", "path", e.lock.Path(), "error", err)
		}
		e.sem.Release(1)
	}, nil
}

func (e *Engine) runSafe(ctx context.Context, trig Trigger) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(ctx, "sync cycle panicked", "trigger", trig.String(), "panic", r, "stack", string(debug.Stack()))
			res = e.fail(ctx, trig, fmt.Errorf("sync panic: %v", r))
		}
	}()
	return e.runCycle(ctx, trig)
}

func (e *Engine) runCycle(ctx context.Context, trig Trigger) Result {
	log := e.log.With("trigger", trig.String())

	st, err := e.state.Load(ctx)
	if err != nil {
		return e.fail(ctx, trig, err)
	}
	if st.Location == models.LocationDisabled {
		e.publish(ctx, trig, msgDisabled, true, st.LastSyncTime, false)
		return Result{Trigger: trig, Healthy: true, Message: msgDisabled, Location: st.Location, Err: common.ErrSyncDisabled}
	}

	cred, err := e.auth.Credential(ctx, trig.Interactive())
	if err != nil {
		if !trig.Interactive() {
			log.Debug(ctx, "no credential available, skipping", "error", err)
			return Result{Trigger: trig, Err: err}
		}
		log.Warn(ctx, "credential acquisition failed", "error", err)
		e.publish(ctx, trig, msgAuthFailed, false, st.LastSyncTime, false)
		return Result{Trigger: trig, Message: msgAuthFailed, Err: err}
	}

	preset := st.Location.Syncable()
	if !preset && trig != TriggerDiscovery {
		if !trig.Manual() {
			log.Debug(ctx, "storage location not chosen, skipping")
			return Result{Trigger: trig, Err: common.ErrPreferenceUnset}
		}
		e.publish(ctx, trig, msgChooseLocation, false, st.LastSyncTime, false)
		return Result{Trigger: trig, Message: msgChooseLocation, Err: common.ErrPreferenceUnset}
	}

	store, err := e.factory(ctx, cred)
	if err != nil {
		return e.fail(ctx, trig, err)
	}
	store = remote.WithTimeout(store, e.callTimeout)

	if trig == TriggerDiscovery {
		e.discovering.Store(true)
		defer e.discovering.Store(false)
	}

	e.publish(ctx, trig, msgDownloading, true, st.LastSyncTime, true)
	outcome := e.download(ctx, store, trig == TriggerDiscovery)
	log.Info(ctx, "download finished", "outcome", outcome.String(), "id", outcome.FileID, "error", outcome.Err)
	if isAuthError(outcome.Err) {
		e.invalidate(ctx)
	}

	if trig == TriggerDiscovery {
		return e.completeDiscovery(ctx, outcome, preset)
	}

	st, err = e.state.Load(ctx)
	if err != nil {
		return e.fail(ctx, trig, err)
	}
	active, err := e.notes.CountActive(ctx)
	if err != nil {
		return e.fail(ctx, trig, err)
	}

	d := decideUpload(outcome.Kind, trig.Manual(), st.Dirty(), st.FileID != "", active)
	switch {
	case d.Override:
		log.Warn(ctx, "uploading despite failed download", "outcome", outcome.String())
	case d.SuppressedEmpty:
		log.Warn(ctx, "empty local set, upload suppressed", "outcome", outcome.String())
	default:
		log.Debug(ctx, "upload decision", "upload", d.Upload, "reason", d.Reason)
	}

	res := Result{Trigger: trig, Outcome: outcome, Decision: d, Location: st.Location}

	uploadOK := outcome.Healthy() && !trig.Manual() && !st.Dirty()
	var upErr error
	if d.Upload {
		e.publish(ctx, trig, msgUploading, true, st.LastSyncTime, true)
		upErr = e.upload(ctx, store, outcome, st)
		uploadOK = upErr == nil
		res.Uploaded = uploadOK
		if upErr != nil {
			log.Error(ctx, "upload failed", "error", upErr)
		}
	}
	res.NewFileCreated = st.FileID == "" && outcome.NoRemoteFile() && res.Uploaded
	res.Healthy = (outcome.Healthy() && uploadOK) || res.NewFileCreated

	last := st.LastSyncTime
	switch {
	case res.Healthy:
		now := e.now()
		if err := e.state.SetLastSync(ctx, now); err != nil {
			log.Error(ctx, "failed to record sync time", "error", err)
		}
		if trig.recordsSession() {
			if err := e.state.SetLastSessionSync(ctx, now); err != nil {
				log.Error(ctx, "failed to record session sync time", "error", err)
			}
		}
		last = now
		res.Message = "Last synced: " + now.Format(lastSyncLayout)
		if res.NewFileCreated {
			res.Message = msgNewFile
		}
	case upErr != nil:
		res.Err = upErr
		switch {
		case errors.Is(upErr, common.ErrConsistency):
			res.Message = msgConsistency
		case isAuthError(upErr):
			e.invalidate(ctx)
			res.Message = msgAuthFailed
		case errors.Is(upErr, common.ErrRemoteNotFound):
			res.Message = msgNotFoundOnSave
		default:
			res.Message = fmt.Sprintf("Sync error: upload failed. (D: %s)", outcome)
		}
	case outcome.Kind == OutcomeError:
		res.Err = outcome.Err
		res.Message = fmt.Sprintf("Sync warning: download issue (%s)", outcome)
		if isAuthError(outcome.Err) {
			res.Message = msgAuthFailed
		}
	default:
		res.Message = msgUnexpected
	}

	e.publish(ctx, trig, res.Message, res.Healthy, last, false)
	return res
}

// completeDiscovery finishes a discovery cycle. No upload happens here.
func (e *Engine) completeDiscovery(ctx context.Context, outcome DownloadOutcome, preset bool) Result {
	res := Result{Trigger: TriggerDiscovery, Outcome: outcome, Err: outcome.Err}

	st, err := e.state.Load(ctx)
	if err != nil {
		return e.fail(ctx, TriggerDiscovery, err)
	}

	if st.Location.Syncable() && st.FileID != "" && outcome.Healthy() {
		res.Healthy = true
		res.Location = st.Location
		res.PreferenceDiscovered = !preset
		res.Message = fmt.Sprintf("Discovered data in '%s'.", st.Location)
		e.publish(ctx, TriggerDiscovery, res.Message, true, st.LastSyncTime, false)
		return res
	}

	if !preset && st.Location.Syncable() {
		// a file was found but could not be used; do not adopt its location
		if _, err := e.state.ChangeLocation(ctx, models.LocationUnset); err != nil {
			e.log.Error(ctx, "failed to reset storage location", "error", err)
		}
	}

	switch {
	case isAuthError(outcome.Err):
		res.Message = msgAuthFailed
	case outcome.Kind == OutcomeError:
		res.Message = fmt.Sprintf("Issue processing discovered file (%s). Please choose a storage location.", outcome)
	default:
		res.Healthy = true
		res.Message = msgNothingFound
	}
	e.publish(ctx, TriggerDiscovery, res.Message, res.Healthy, st.LastSyncTime, false)
	return res
}

// Pull downloads and merges without ever uploading. It never prompts.
func (e *Engine) Pull(ctx context.Context) (DownloadOutcome, error) {
	release, err := e.acquire(ctx, true)
	if err != nil {
		return DownloadOutcome{}, err
	}
	defer release()

	st, err := e.state.Load(ctx)
	if err != nil {
		return DownloadOutcome{}, err
	}
	switch {
	case st.Location == models.LocationDisabled:
		return DownloadOutcome{}, common.ErrSyncDisabled
	case !st.Location.Syncable():
		return DownloadOutcome{}, common.ErrPreferenceUnset
	}

	cred, err := e.auth.Credential(ctx, false)
	if err != nil {
		return DownloadOutcome{}, err
	}
	store, err := e.factory(ctx, cred)
	if err != nil {
		return DownloadOutcome{}, err
	}

	outcome := e.download(ctx, remote.WithTimeout(store, e.callTimeout), false)
	e.log.Info(ctx, "pull finished", "outcome", outcome.String(), "error", outcome.Err)
	if isAuthError(outcome.Err) {
		e.invalidate(ctx)
	}
	return outcome, nil
}

// Discover runs first-run discovery unless a location is already set.
func (e *Engine) Discover(ctx context.Context) Result {
	st, err := e.state.Load(ctx)
	if err != nil {
		return Result{Trigger: TriggerDiscovery, Err: err}
	}
	if st.Location != models.LocationUnset {
		return Result{Trigger: TriggerDiscovery, Healthy: true, Message: msgAlreadyConfigured, Location: st.Location}
	}
	return e.Sync(ctx, TriggerDiscovery)
}

// SetLocation records the user's storage choice. Changing the location
// forgets the remote file of the old one.
func (e *Engine) SetLocation(ctx context.Context, loc models.StorageLocation) error {
	if loc == models.LocationUnset {
		return errors.New("storage location is required")
	}
	release, err := e.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	changed, err := e.state.ChangeLocation(ctx, loc)
	if err != nil {
		return fmt.Errorf("set storage location: %w", err)
	}
	if changed {
		e.log.Info(ctx, "storage location changed", "location", string(loc))
	}
	if loc == models.LocationDisabled {
		st, err := e.state.Load(ctx)
		if err != nil {
			return err
		}
		e.publish(ctx, TriggerManual, msgDisabled, true, st.LastSyncTime, false)
	}
	return nil
}

func (e *Engine) Status(ctx context.Context) (StatusReport, error) {
	st, err := e.state.Load(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	r := StatusReport{
		LastSyncTime: st.LastSyncTime,
		FileID:       st.FileID,
		Location:     st.Location,
		Phase:        st.Phase(),
		Dirty:        st.Dirty(),
	}
	if e.discovering.Load() {
		r.Phase = syncstate.PhaseDiscovering
	}
	if st.Location.Syncable() {
		r.Authenticated = e.auth.Available(ctx)
	}
	return r, nil
}

// fail classifies an unexpected cycle failure and reports it.
func (e *Engine) fail(ctx context.Context, trig Trigger, err error) Result {
	res := Result{Trigger: trig, Err: err}
	switch {
	case isAuthError(err):
		e.invalidate(ctx)
		res.Message = msgAuthFailed
	case errors.Is(err, common.ErrConsistency):
		res.Message = msgConsistency
	default:
		res.Message = msgUnexpected
	}
	e.log.Error(ctx, "sync cycle failed", "trigger", trig.String(), "error", err)

	var last time.Time
	if st, lerr := e.state.Load(ctx); lerr == nil {
		last = st.LastSyncTime
	}
	e.publish(ctx, trig, res.Message, false, last, false)
	return res
}

func (e *Engine) invalidate(ctx context.Context) {
	if err := e.auth.Invalidate(ctx); err != nil {
		e.log.Error(ctx, "failed to drop cached credential", "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, trig Trigger, msg string, healthy bool, last time.Time, inProgress bool) {
	e.pub.PublishStatus(ctx, StatusEvent{
		Message:      msg,
		LastSyncTime: last,
		Healthy:      healthy,
		InProgress:   inProgress,
		Trigger:      trig.String(),
		Time:         e.now(),
	})
}

var authPatterns = []string{"401", "403", "invalid grant", "authentication failed", "token"}

// isAuthError reports whether err means the credential is unusable.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, common.ErrAuth) || errors.Is(err, common.ErrCredentialExpired) {
		return true
	}
	switch remote.StatusCode(err) {
	case 401, 403:
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range authPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
