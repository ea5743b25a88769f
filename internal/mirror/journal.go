package mirror

import "time"

// Run status values.
const (
	RunRunning  = "running"
	RunSuccess  = "success"
	RunError    = "error"
	RunCanceled = "canceled"
)

// Run is one invocation of the mirror process.
type Run struct {
	ID         string
	Command    string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// JournalEntry records the handling of a single event.
type JournalEntry struct {
	ID        string
	RunID     string
	Target    string
	Kind      string
	SrcPath   string
	DestPath  string
	Action    string
	Error     string
	HandledAt time.Time
}

// Journal persists runs and handled events.
type Journal interface {
	CreateRun(run *Run) error
	FinishRun(id, status string, finishedAt time.Time) error
	RecordEvent(entry *JournalEntry) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*Run, error)

	// ListEvents returns the most recent journaled events, newest first.
	ListEvents(limit int) ([]*JournalEntry, error)

	Close() error
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) CreateRun(*Run) error                      { return nil }
func (NopJournal) FinishRun(string, string, time.Time) error { return nil }
func (NopJournal) RecordEvent(*JournalEntry) error           { return nil }
func (NopJournal) ListRuns(int) ([]*Run, error)              { return nil, nil }
func (NopJournal) ListEvents(int) ([]*JournalEntry, error)   { return nil, nil }
func (NopJournal) Close() error                              { return nil }

var _ Journal = NopJournal{}
