package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/services"
)

var errUsage = errors.New("usage")

const timeLayout = "2006-01-02 15:04:05"

func (a *App) Add(ctx context.Context) error {
	title, err := GetSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return err
	}
	content, err := GetMultiline(a.reader, "Content", a.out)
	if err != nil {
		return err
	}
	scope, err := GetSimpleText(a.reader, "Scope as type=value (empty for global)", a.out)
	if err != nil {
		return err
	}
	scopeType, scopeValue, err := ParseScope(scope)
	if err != nil {
		a.out.Println("Error:", err)
		return err
	}

	n, err := a.notes.Create(ctx, title, content, scopeType, scopeValue)
	if err != nil {
		a.out.Println("Error:", err)
		return err
	}
	a.out.Println("Added note", n.ID)
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	var (
		list []models.Note
		err  error
	)
	switch len(args) {
	case 0:
		list, err = a.notes.List(ctx, false)
	case 2:
		list, err = a.notes.ListForScope(ctx, args[0], args[1])
	default:
		a.out.Println("Usage: list [scopeType scopeValue]")
		return errUsage
	}
	if err != nil {
		a.out.Println("Error:", err)
		return err
	}

	shown := 0
	for _, n := range list {
		if n.IsDeleted {
			continue
		}
		a.out.Println(overview(n))
		shown++
	}
	if shown == 0 {
		a.out.Println("No notes.")
	}
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	n, err := a.lookup(ctx, "show", args)
	if err != nil {
		return err
	}

	a.out.Println("Title:  ", n.Title)
	a.out.Println("Scope:  ", scopeLabel(*n))
	a.out.Println("Updated:", formatMillis(n.Timestamp))
	if n.IsDeleted {
		a.out.Println("(deleted)")
	}
	a.out.Println()
	a.out.Println(n.Content)
	return nil
}

// Edit replaces title and content; empty answers keep the old values. The
// new timestamp is always greater than the old one so the edit wins the
// next merge.
func (a *App) Edit(ctx context.Context, args []string) error {
	n, err := a.lookup(ctx, "edit", args)
	if err != nil {
		return err
	}
	if n.IsDeleted {
		a.out.Println("Note is deleted.")
		return fmt.Errorf("note %s is deleted", n.ID)
	}

	title, err := GetSimpleText(a.reader, fmt.Sprintf("Title [%s]", n.Title), a.out)
	if err != nil {
		return err
	}
	content, err := GetMultiline(a.reader, "Content (empty keeps the current text)", a.out)
	if err != nil {
		return err
	}
	if title != "" {
		n.Title = title
	}
	if content != "" {
		n.Content = content
	}
	n.Timestamp = max(models.NowMillis(), n.Timestamp+1)

	if _, err := a.notes.Save(ctx, *n); err != nil {
		a.out.Println("Error:", err)
		return err
	}
	a.out.Println("Saved note", n.ID)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.out.Println("Usage: delete <id>")
		return errUsage
	}
	if _, err := a.notes.TombstoneDelete(ctx, args[0]); err != nil {
		a.printLookupError(args[0], err)
		return err
	}
	a.out.Println("Deleted note", args[0])
	return nil
}

// Purge removes a note without leaving a tombstone. Other devices that
// already have the note will keep it.
func (a *App) Purge(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.out.Println("Usage: purge <id>")
		return errUsage
	}
	if err := a.notes.PermanentlyDelete(ctx, args[0]); err != nil {
		a.printLookupError(args[0], err)
		return err
	}
	a.out.Println("Purged note", args[0])
	return nil
}

func (a *App) Clear(ctx context.Context) error {
	ok, err := Confirm(a.reader, "Delete all local notes and sync state?", a.out)
	if err != nil {
		return err
	}
	if !ok {
		a.out.Println("Cancelled.")
		return nil
	}
	if err := a.notes.ClearAll(ctx); err != nil {
		a.out.Println("Error:", err)
		return err
	}
	a.out.Println("Local data cleared.")
	return nil
}

func (a *App) lookup(ctx context.Context, cmd string, args []string) (*models.Note, error) {
	if len(args) != 1 {
		a.out.Printf("Usage: %s <id>\n", cmd)
		return nil, errUsage
	}
	n, err := a.notes.Get(ctx, args[0])
	if err != nil {
		a.printLookupError(args[0], err)
		return nil, err
	}
	return n, nil
}

func (a *App) printLookupError(id string, err error) {
	if services.IsNotFound(err) {
		a.out.Println("No such note:", id)
		return
	}
	a.out.Println("Error:", err)
}

func overview(n models.Note) string {
	title := n.Title
	if title == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("%s  %-30s  %-24s  %s", n.ID, title, scopeLabel(n), formatMillis(n.Timestamp))
}

func scopeLabel(n models.Note) string {
	if n.ScopeType == "" {
		return "global"
	}
	return n.ScopeType + "=" + n.ScopeValue
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format(timeLayout)
}
