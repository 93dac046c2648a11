package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Add(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Purge(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Connect(ctx context.Context) error
	Storage(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Clear(ctx context.Context) error
}

const helpText = `Available commands:
  add                                 add a note
  list [scopeType scopeValue]         list notes
  show <id>                           show a note
  edit <id>                           edit a note
  delete <id>                         delete a note everywhere
  purge <id>                          remove a note from this device only
  sync                                sync now
  connect                             look for existing notes in your storage
  storage hidden|visible|disabled     choose where notes are stored
  status                              show sync status
  clear                               delete all local data
  exit | quit                         leave`

// runREPL starts a simple read–eval–print loop.
//
// It reads a line from in, parses the first token as the command, and
// dispatches to methods on 'a'. Unknown commands are reported back to the
// user. The loop exits on EOF, when ctx is cancelled, or when the user
// types "exit" or "quit".
//
// Errors returned by command handlers are ignored here; handlers print
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, promptFn func(context.Context) string, in *bufio.Reader, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprint(out, promptFn(ctx))

		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			fmt.Fprintln(out)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			fmt.Fprintln(out, helpText)
		case "add":
			_ = a.Add(ctx)
		case "l", "list":
			_ = a.List(ctx, args)
		case "show":
			_ = a.Show(ctx, args)
		case "edit":
			_ = a.Edit(ctx, args)
		case "delete":
			_ = a.Delete(ctx, args)
		case "purge":
			_ = a.Purge(ctx, args)
		case "sync":
			_ = a.Sync(ctx)
		case "connect":
			_ = a.Connect(ctx)
		case "storage":
			_ = a.Storage(ctx, args)
		case "status":
			_ = a.Status(ctx)
		case "clear":
			_ = a.Clear(ctx)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}
	}
}
