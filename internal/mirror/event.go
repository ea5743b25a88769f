package mirror

import "fmt"

// EventKind identifies the filesystem change a FileEvent reports.
type EventKind int

const (
	Created EventKind = iota
	Modified
	Deleted
	Moved
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FileEvent is a single change notification for a path in a source tree.
// DestPath is only set for Moved events.
type FileEvent struct {
	Kind     EventKind
	SrcPath  string
	DestPath string
}

func (e FileEvent) String() string {
	if e.Kind == Moved {
		return fmt.Sprintf("%s %s -> %s", e.Kind, e.SrcPath, e.DestPath)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.SrcPath)
}

// Action describes what handling an event did to the backup tree.
type Action int

const (
	ActionNone Action = iota
	ActionIgnored
	ActionCreatedDir
	ActionCopied
	ActionLinked
	ActionMoved
	ActionRemoved
	ActionSkipped
	ActionAbandoned
)

var actionNames = map[Action]string{
	ActionNone:       "none",
	ActionIgnored:    "ignored",
	ActionCreatedDir: "created-dir",
	ActionCopied:     "copied",
	ActionLinked:     "linked",
	ActionMoved:      "moved",
	ActionRemoved:    "removed",
	ActionSkipped:    "skipped",
	ActionAbandoned:  "abandoned",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// EventHandler is the capability set bound to one watched tree.
// Each method accepts only events of its own kind.
type EventHandler interface {
	OnCreated(ev FileEvent) (Action, error)
	OnModified(ev FileEvent) (Action, error)
	OnDeleted(ev FileEvent) (Action, error)
	OnMoved(ev FileEvent) (Action, error)
}

// Dispatch routes ev to the EventHandler method for its kind.
func Dispatch(h EventHandler, ev FileEvent) (Action, error) {
	switch ev.Kind {
	case Created:
		return h.OnCreated(ev)
	case Modified:
		return h.OnModified(ev)
	case Deleted:
		return h.OnDeleted(ev)
	case Moved:
		return h.OnMoved(ev)
	default:
		return ActionNone, fmt.Errorf("unknown event kind: %s", ev.Kind)
	}
}
