package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"plexmirror/internal/mirror"
	"plexmirror/internal/watch"
)

// queueSize bounds the events buffered between the watchers and the consumer.
const queueSize = 1024

// routedEvent is an event tagged with the handler of the tree it came from.
type routedEvent struct {
	handler *mirror.TargetHandler
	event   mirror.FileEvent
}

// Watch mirrors both trees until ctx is done. When initial_sync is set the
// trees are reconciled first; watches are registered before that pass so
// changes made during it are not lost.
//
// Each tree has its own watcher goroutine. All events go through a single
// consumer that handles them one at a time, in arrival order per tree.
func (a *App) Watch(ctx context.Context) error {
	err := a.watch(ctx)
	a.op.Finish(err)
	return err
}

func (a *App) watch(ctx context.Context) error {
	if err := a.begin(); err != nil {
		return err
	}

	handlers, err := a.handlers()
	if err != nil {
		return err
	}

	watchers := make([]*watch.Watcher, 0, len(handlers))
	for _, h := range handlers {
		t := h.Target()
		w, err := a.newWatcher(h)
		if err != nil {
			for _, w := range watchers {
				w.Close()
			}
			return fmt.Errorf("%s: %w", t.Label, err)
		}
		watchers = append(watchers, w)
		a.logger.Info("watching", "target", t.Label, "source", t.SourceRoot, "backup", t.BackupRoot)
	}

	if a.cfg.InitialSync {
		// Per-tree failures are logged; watching continues regardless.
		a.reconcile(handlers)
	}

	dispatcher := mirror.NewDispatcher(a.journal, &slogAdapter{l: a.logger}, a.clock, a.ids, a.op.Run.ID)
	queue := make(chan routedEvent, queueSize)

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range watchers {
		h := handlers[i]
		g.Go(func() error {
			return w.Run(gctx, func(ev mirror.FileEvent) {
				select {
				case queue <- routedEvent{handler: h, event: ev}:
				case <-gctx.Done():
				}
			})
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case r := <-queue:
				dispatcher.Handle(r.handler, r.event)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("stopped watching")
	return ctx.Err()
}

func (a *App) newWatcher(h *mirror.TargetHandler) (*watch.Watcher, error) {
	t := h.Target()
	ignore, err := a.ignoreMatcher(t.SourceRoot)
	if err != nil {
		return nil, err
	}
	return watch.New(t.SourceRoot, ignore, &slogAdapter{l: a.logger.With("target", t.Label)})
}
