package cli

import (
	"bufio"
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/client/syncer"
)

// Engine is the part of *syncer.Engine the REPL drives.
type Engine interface {
	Sync(ctx context.Context, trig syncer.Trigger) syncer.Result
	Discover(ctx context.Context) syncer.Result
	SetLocation(ctx context.Context, loc models.StorageLocation) error
	Status(ctx context.Context) (syncer.StatusReport, error)
}

// SessionStarter runs the session sync, if one is due.
type SessionStarter interface {
	Fire(ctx context.Context) bool
}

type App struct {
	notes   services.NoteService
	engine  Engine
	session SessionStarter
	reader  *bufio.Reader
	out     *Console
}

// NewApp builds the REPL. in is shared by the command loop and by prompts,
// so it must be the same reader any credential prompter uses.
func NewApp(notes services.NoteService, engine Engine, session SessionStarter, in *bufio.Reader, out *Console) *App {
	return &App{notes: notes, engine: engine, session: session, reader: in, out: out}
}

// Run starts the session sync in the background and blocks in the REPL
// until the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	a.out.Println("Welcome to notesync (type 'help' for commands)")
	if a.session != nil {
		go a.session.Fire(ctx)
	}
	runREPL(ctx, a, a.prompt, a.reader, a.out)
}

func (a *App) prompt(ctx context.Context) string {
	st, err := a.engine.Status(ctx)
	if err != nil {
		return "notes> "
	}
	if st.Dirty {
		return "notes (" + st.Phase.String() + ", *)> "
	}
	return "notes (" + st.Phase.String() + ")> "
}
