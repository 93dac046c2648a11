// Package cli provides the interactive notesync command-line client.
//
// It wires the local note service and the sync engine into a REPL. At start
// the session gate may run a sync; afterwards the user edits notes, picks a
// storage location and triggers manual syncs. Status events published by
// the engine are printed as they arrive.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, Console and runREPL for details.
package cli
