package mirror

// Dispatcher is the single consumer of events from all watched trees. It
// routes each event to the handler of the tree it came from, logs failures
// and journals the outcome. A failing event never stops the dispatcher.
type Dispatcher struct {
	journal Journal
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	runID   string
}

// NewDispatcher creates a Dispatcher that journals under runID.
func NewDispatcher(journal Journal, logger Logger, clock Clock, idgen IDGenerator, runID string) *Dispatcher {
	return &Dispatcher{
		journal: journal,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		runID:   runID,
	}
}

// Handle processes ev with h and returns the resulting action.
func (d *Dispatcher) Handle(h *TargetHandler, ev FileEvent) Action {
	label := h.Target().Label

	action, err := Dispatch(h, ev)
	if err != nil {
		d.logger.Error("error handling event", "target", label, "event", ev.String(), "error", err)
	} else {
		d.logger.Debug("event handled", "target", label, "event", ev.String(), "action", action.String())
	}

	if action == ActionIgnored && err == nil {
		return action
	}

	entry := &JournalEntry{
		ID:        d.idgen.New(),
		RunID:     d.runID,
		Target:    label,
		Kind:      ev.Kind.String(),
		SrcPath:   ev.SrcPath,
		DestPath:  ev.DestPath,
		Action:    action.String(),
		HandledAt: d.clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if jerr := d.journal.RecordEvent(entry); jerr != nil {
		d.logger.Warn("failed to journal event", "event", ev.String(), "error", jerr)
	}
	return action
}
