package syncer

import (
	"context"
	"time"
)

// StatusEvent is published after every cycle and at phase changes.
type StatusEvent struct {
	Message string `json:"message"`
	// LastSyncTime is zero when no cycle has ever been healthy.
	LastSyncTime time.Time `json:"lastSyncTime,omitzero"`
	Healthy      bool      `json:"healthy"`
	InProgress   bool      `json:"inProgress,omitempty"`
	Trigger      string    `json:"trigger,omitempty"`
	Time         time.Time `json:"time"`
}

// Publisher receives engine notifications. Implementations must not block
// for long; the engine calls them while holding the cycle lock.
type Publisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent)
	// PublishNotesChanged tells observers that a merge changed local notes.
	PublishNotesChanged(ctx context.Context)
}

// Publishers fans out to several publishers.
type Publishers []Publisher

func (ps Publishers) PublishStatus(ctx context.Context, ev StatusEvent) {
	for _, p := range ps {
		p.PublishStatus(ctx, ev)
	}
}

func (ps Publishers) PublishNotesChanged(ctx context.Context) {
	for _, p := range ps {
		p.PublishNotesChanged(ctx)
	}
}

// PublisherFuncs adapts plain functions. Nil fields are skipped.
type PublisherFuncs struct {
	Status       func(ctx context.Context, ev StatusEvent)
	NotesChanged func(ctx context.Context)
}

func (f PublisherFuncs) PublishStatus(ctx context.Context, ev StatusEvent) {
	if f.Status != nil {
		f.Status(ctx, ev)
	}
}

func (f PublisherFuncs) PublishNotesChanged(ctx context.Context) {
	if f.NotesChanged != nil {
		f.NotesChanged(ctx)
	}
}
