package syncer

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// searchOrder is the order searchBoth walks the locations in.
var searchOrder = []models.StorageLocation{models.LocationHidden, models.LocationVisible}

// Locator finds the snapshot file by name.
type Locator struct {
	state StateStore
	log   logging.Logger
}

func NewLocator(state StateStore, log logging.Logger) *Locator {
	return &Locator{state: state, log: log}
}

// FindByName returns the newest file called name, or nil when there is
// none.
//
// With loc set only that location is searched. With searchBoth hidden is
// tried before visible, a failing location is logged and skipped, and the
// first match is persisted together with its location. Otherwise the
// recorded preference is searched, hidden when none is recorded.
func (l *Locator) FindByName(ctx context.Context, store remote.Store, name string, loc models.StorageLocation, searchBoth bool) (*models.RemoteFile, error) {
	if loc.Syncable() {
		return l.findIn(ctx, store, name, loc)
	}

	if searchBoth {
		for _, where := range searchOrder {
			f, err := l.findIn(ctx, store, name, where)
			if err != nil {
				l.log.Warn(ctx, "search failed, trying next location", "location", string(where), "error", err)
				continue
			}
			if f == nil {
				continue
			}
			if err := l.state.SetDiscovered(ctx, *f); err != nil {
				return nil, err
			}
			l.log.Info(ctx, "discovered remote file", "id", f.ID, "location", string(where))
			return f, nil
		}
		return nil, nil
	}

	st, err := l.state.Load(ctx)
	if err != nil {
		return nil, err
	}
	where := st.Location
	if !where.Syncable() {
		where = models.LocationHidden
	}
	return l.findIn(ctx, store, name, where)
}

func (l *Locator) findIn(ctx context.Context, store remote.Store, name string, loc models.StorageLocation) (*models.RemoteFile, error) {
	files, err := store.FindByName(ctx, name, loc)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	remote.SortNewestFirst(files)
	if len(files) > 1 {
		l.log.Warn(ctx, "multiple remote files share the name, using the most recent",
			"name", name, "location", string(loc), "count", len(files), "id", files[0].ID)
	}
	f := files[0]
	if f.Location == models.LocationUnset {
		f.Location = loc
	}
	return &f, nil
}
