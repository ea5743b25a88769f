package app

import (
	"context"
	"errors"

	"plexmirror/internal/mirror"
)

// Operation tracks a CLI operation that mirrors files. Operations start in
// memory; only sync and watch persist them to the journal as runs.
type Operation struct {
	Run       *mirror.Run
	persisted bool
}

// NewOperation creates a new in-memory operation in the running state.
func NewOperation(command string, clock mirror.Clock, ids mirror.IDGenerator) *Operation {
	return &Operation{
		Run: &mirror.Run{
			ID:        ids.New(),
			Command:   command,
			Status:    mirror.RunRunning,
			StartedAt: clock.Now().UTC(),
		},
	}
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.persisted
}

// Finish sets the final status from the error the operation ended with.
func (op *Operation) Finish(err error) string {
	switch {
	case err == nil:
		op.Run.Status = mirror.RunSuccess
	case errors.Is(err, context.Canceled):
		op.Run.Status = mirror.RunCanceled
	default:
		op.Run.Status = mirror.RunError
	}
	return op.Run.Status
}
