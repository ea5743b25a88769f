package mirror

import "path/filepath"

// TargetHandler is the EventHandler bound to one watched tree. It guards
// against events on the root itself and against ignored paths, then hands
// the event to the Engine.
type TargetHandler struct {
	target Target
	engine *Engine
	ignore Matcher
	logger Logger
}

// NewTargetHandler creates a handler for target. logger should already carry
// the target's label. ignore may be nil.
func NewTargetHandler(target Target, owners Ownership, ignore Matcher, logger Logger) *TargetHandler {
	return &TargetHandler{
		target: target,
		engine: NewEngine(target, owners, logger),
		ignore: ignore,
		logger: logger,
	}
}

// Target returns the tree pairing this handler serves.
func (h *TargetHandler) Target() Target {
	return h.target
}

func (h *TargetHandler) OnCreated(ev FileEvent) (Action, error) {
	if h.skip(ev.SrcPath) {
		return ActionIgnored, nil
	}
	h.logger.Info("file created, backing up", "file", filepath.Base(ev.SrcPath))
	return h.engine.Backup(ev.SrcPath)
}

func (h *TargetHandler) OnModified(ev FileEvent) (Action, error) {
	if h.skip(ev.SrcPath) {
		return ActionIgnored, nil
	}
	h.logger.Info("file modified, backing up", "file", filepath.Base(ev.SrcPath))
	return h.engine.Backup(ev.SrcPath)
}

func (h *TargetHandler) OnDeleted(ev FileEvent) (Action, error) {
	if h.skip(ev.SrcPath) {
		return ActionIgnored, nil
	}
	h.logger.Info("file deleted, removing", "file", filepath.Base(ev.SrcPath))
	return h.engine.Delete(ev.SrcPath)
}

// OnMoved handles a rename. A rename between an ignored and a mirrored name
// degrades to a creation or deletion of the mirrored side.
func (h *TargetHandler) OnMoved(ev FileEvent) (Action, error) {
	if h.target.IsRoot(ev.SrcPath) || h.target.IsRoot(ev.DestPath) {
		return ActionIgnored, nil
	}

	oldIgnored, newIgnored := h.ignored(ev.SrcPath), h.ignored(ev.DestPath)
	switch {
	case oldIgnored && newIgnored:
		return ActionIgnored, nil
	case oldIgnored:
		h.logger.Info("file moved from ignored name, backing up", "file", filepath.Base(ev.DestPath))
		return h.engine.Backup(ev.DestPath)
	case newIgnored:
		h.logger.Info("file moved to ignored name, removing", "file", filepath.Base(ev.SrcPath))
		return h.engine.Delete(ev.SrcPath)
	}

	h.logger.Info("file moved", "old", filepath.Base(ev.SrcPath), "new", filepath.Base(ev.DestPath))
	return h.engine.Move(ev.SrcPath, ev.DestPath)
}

func (h *TargetHandler) skip(path string) bool {
	return h.target.IsRoot(path) || h.ignored(path)
}

func (h *TargetHandler) ignored(path string) bool {
	if h.ignore == nil {
		return false
	}
	return h.ignore.Match(Relativize(path, h.target.SourceRoot))
}

// Compile-time check that TargetHandler implements EventHandler
var _ EventHandler = (*TargetHandler)(nil)
