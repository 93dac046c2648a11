package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/client/syncer"
)

// Console serializes terminal output. Status events arrive from background
// cycles while the REPL is printing, so every write goes through one lock.
// It implements syncer.Publisher.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

func (c *Console) Println(a ...any) {
	fmt.Fprintln(c, a...)
}

func (c *Console) Printf(format string, a ...any) {
	fmt.Fprintf(c, format, a...)
}

func (c *Console) PublishStatus(_ context.Context, ev syncer.StatusEvent) {
	if ev.Message == "" {
		return
	}
	if ev.InProgress {
		c.Println("[sync] " + ev.Message + "...")
		return
	}
	c.Println("[sync] " + ev.Message)
}

func (c *Console) PublishNotesChanged(context.Context) {
	c.Println("[sync] notes updated from remote")
}

var _ syncer.Publisher = (*Console)(nil)
