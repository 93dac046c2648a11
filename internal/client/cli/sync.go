package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/common"
)

// Sync runs a manual cycle. The engine publishes the outcome, which the
// console prints, so only a missing storage choice is handled here.
func (a *App) Sync(ctx context.Context) error {
	res := a.engine.Sync(ctx, syncer.TriggerManual)
	if errors.Is(res.Err, common.ErrPreferenceUnset) {
		return a.chooseLocation(ctx)
	}
	return res.Err
}

// Connect runs first-run discovery. When nothing usable is found the user
// picks a storage location.
func (a *App) Connect(ctx context.Context) error {
	res := a.engine.Discover(ctx)
	if errors.Is(res.Err, common.ErrAuth) || ctx.Err() != nil {
		return res.Err
	}
	if res.Location != models.LocationUnset {
		a.out.Println("Storage location:", string(res.Location))
		return nil
	}

	st, err := a.engine.Status(ctx)
	if err != nil {
		a.out.Println("Error:", err)
		return err
	}
	if st.Location != models.LocationUnset {
		a.out.Println("Storage location:", string(st.Location))
		return nil
	}
	return a.chooseLocation(ctx)
}

func (a *App) Storage(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.out.Println("Usage: storage hidden|visible|disabled")
		return errUsage
	}
	return a.applyLocation(ctx, args[0])
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.engine.Status(ctx)
	if err != nil {
		a.out.Println("Error:", err)
		return err
	}

	loc := string(st.Location)
	if loc == "" {
		loc = "(not chosen)"
	}
	last := "never"
	if !st.LastSyncTime.IsZero() {
		last = st.LastSyncTime.Local().Format(timeLayout)
	}
	file := st.FileID
	if file == "" {
		file = "(none)"
	}

	a.out.Println("Phase:          ", st.Phase.String())
	a.out.Println("Location:       ", loc)
	a.out.Println("Remote file:    ", file)
	a.out.Println("Last synced:    ", last)
	a.out.Println("Pending changes:", yesNo(st.Dirty))
	if st.Location.Syncable() {
		a.out.Println("Signed in:      ", yesNo(st.Authenticated))
	}
	return nil
}

func (a *App) chooseLocation(ctx context.Context) error {
	answer, err := GetSimpleText(a.reader, "Choose a storage location: hidden, visible or disabled", a.out)
	if err != nil {
		return err
	}
	return a.applyLocation(ctx, answer)
}

// applyLocation stores the choice and, for a syncable location, runs a
// manual sync right away.
func (a *App) applyLocation(ctx context.Context, s string) error {
	loc, err := models.ParseStorageLocation(s)
	if err == nil && loc == models.LocationUnset {
		err = errors.New("storage location is required")
	}
	if err != nil {
		a.out.Println("Error:", err)
		return err
	}

	if err := a.engine.SetLocation(ctx, loc); err != nil {
		a.out.Println("Error:", err)
		return err
	}
	a.out.Println("Storage location set to", string(loc))

	if loc.Syncable() {
		return a.engine.Sync(ctx, syncer.TriggerManual).Err
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
