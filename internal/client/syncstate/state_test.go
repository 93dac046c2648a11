package syncstate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/storage"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *storage.Store) {
	t.Helper()
	s, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s.DB, s.Dialect), s
}

func TestLoad_EmptyState(t *testing.T) {
	st, _ := newStore(t)

	got, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, State{}, got)
	assert.Equal(t, PhaseUninitialized, got.Phase())
	assert.False(t, got.Dirty())
}

func TestSetRemoteAndClear(t *testing.T) {
	st, _ := newStore(t)
	ctx := context.Background()
	mod := time.Date(2025, 3, 1, 10, 0, 0, 123000000, time.UTC)

	require.NoError(t, st.SetRemote(ctx, models.RemoteFile{ID: "F1", ModifiedTime: mod}))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "F1", got.FileID)
	assert.True(t, mod.Equal(got.ModifiedTime))

	cleared, err := st.ClearRemoteIf(ctx, "F2")
	require.NoError(t, err)
	assert.False(t, cleared)

	cleared, err = st.ClearRemoteIf(ctx, "F1")
	require.NoError(t, err)
	assert.True(t, cleared)

	got, err = st.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.FileID)
	assert.True(t, got.ModifiedTime.IsZero())
}

func TestSetDiscovered_AdoptsLocation(t *testing.T) {
	st, _ := newStore(t)
	ctx := context.Background()

	f := models.RemoteFile{ID: "V1", ModifiedTime: time.Unix(100, 0), Location: models.LocationVisible}
	require.NoError(t, st.SetDiscovered(ctx, f))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LocationVisible, got.Location)
	assert.Equal(t, "V1", got.FileID)
	assert.Equal(t, PhaseConfigured, got.Phase())
}

func TestChangeLocation_DropsReferenceOnlyOnChange(t *testing.T) {
	st, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetDiscovered(ctx, models.RemoteFile{ID: "H1", Location: models.LocationHidden}))

	changed, err := st.ChangeLocation(ctx, models.LocationHidden)
	require.NoError(t, err)
	assert.False(t, changed)
	got, _ := st.Load(ctx)
	assert.Equal(t, "H1", got.FileID)

	changed, err = st.ChangeLocation(ctx, models.LocationVisible)
	require.NoError(t, err)
	assert.True(t, changed)
	got, _ = st.Load(ctx)
	assert.Equal(t, models.LocationVisible, got.Location)
	assert.Empty(t, got.FileID)

	_, err = st.ChangeLocation(ctx, models.LocationDisabled)
	require.NoError(t, err)
	got, _ = st.Load(ctx)
	assert.Equal(t, PhaseDisabled, got.Phase())
}

func TestMarkDirtyAndCommitUpload(t *testing.T) {
	st, s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return st.MarkDirty(ctx, tx)
		})
		require.NoError(t, err)
	}

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.DirtySeq)
	assert.True(t, got.Dirty())

	// a write slipped in after the snapshot was taken
	cleared, err := st.CommitUpload(ctx, models.RemoteFile{ID: "F1", ModifiedTime: time.Unix(5, 0)}, 1)
	require.NoError(t, err)
	assert.False(t, cleared)

	got, _ = st.Load(ctx)
	assert.Equal(t, "F1", got.FileID)
	assert.True(t, got.Dirty())

	cleared, err = st.CommitUpload(ctx, models.RemoteFile{ID: "F1", ModifiedTime: time.Unix(6, 0)}, 2)
	require.NoError(t, err)
	assert.True(t, cleared)

	got, _ = st.Load(ctx)
	assert.False(t, got.Dirty())
	assert.True(t, time.Unix(6, 0).Equal(got.ModifiedTime))
}

func TestTimestampsAndClear(t *testing.T) {
	st, _ := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, st.SetLastSync(ctx, now))
	require.NoError(t, st.SetLastSessionSync(ctx, now.Add(-time.Minute)))
	require.NoError(t, st.SetModifiedTime(ctx, now.Add(-time.Hour)))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.True(t, now.Equal(got.LastSyncTime))
	assert.True(t, now.Add(-time.Minute).Equal(got.LastSessionSync))
	assert.True(t, now.Add(-time.Hour).Equal(got.ModifiedTime))

	require.NoError(t, st.Clear(ctx))
	got, err = st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{}, got)
}

func TestLoad_IgnoresGarbageValues(t *testing.T) {
	st, s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Metadata.Set(ctx, keyLastSync, []byte("yesterday")))
	require.NoError(t, s.Metadata.Set(ctx, keyDirtySeq, []byte("many")))
	require.NoError(t, s.Metadata.Set(ctx, keyLocation, []byte("moon")))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.LastSyncTime.IsZero())
	assert.Equal(t, int64(0), got.DirtySeq)
	assert.Equal(t, models.LocationUnset, got.Location)
}

func TestLoad_LegacyLocationNames(t *testing.T) {
	st, s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Metadata.Set(ctx, keyLocation, []byte("appDataFolder")))
	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LocationHidden, got.Location)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "uninitialized", PhaseUninitialized.String())
	assert.Equal(t, "discovering", PhaseDiscovering.String())
	assert.Equal(t, "configured", PhaseConfigured.String())
	assert.Equal(t, "disabled", PhaseDisabled.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
