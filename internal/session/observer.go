package session

import (
	"context"
	"log"

	"github.com/fortuna/scout/internal/coordinator"
	"github.com/fortuna/scout/internal/publisher"
	"golang.org/x/sync/errgroup"
)

// fanout is the coordinator observer of one session. The coordinator
// serializes its calls, so prev needs no lock.
type fanout struct {
	m    *Manager
	id   string
	prev coordinator.State
}

func (m *Manager) observer(id string, initial coordinator.State) *fanout {
	return &fanout{m: m, id: id, prev: initial}
}

// StateChanged saves the snapshot, publishes finished requests and pushes
// the state to subscribers. Sinks run independently: one failing does not
// cut the others short.
func (f *fanout) StateChanged(state coordinator.State) {
	prev := f.prev
	f.prev = state

	ctx, cancel := context.WithTimeout(context.Background(), f.m.fanoutTimeout)
	defer cancel()

	var g errgroup.Group

	if f.m.snapshots != nil {
		f.sink(&g, "snapshot save", func() error {
			return f.m.snapshots.Save(ctx, f.id, state)
		})
	}

	if f.m.events != nil {
		for _, cat := range completed(prev, state) {
			a, ok := publisher.ActivityFor(f.id, cat, state)
			if !ok {
				continue
			}
			f.sink(&g, "activity publish", func() error {
				return f.m.events.PublishActivity(ctx, a)
			})
		}
	}

	if f.m.broadcaster != nil {
		f.sink(&g, "broadcast", func() error {
			f.m.broadcaster.Broadcast(f.id, state)
			return nil
		})
	}

	g.Wait()
}

// ChatTurnAppended records the turn durably and on the event stream
func (f *fanout) ChatTurnAppended(turn coordinator.ChatTurn) {
	ctx, cancel := context.WithTimeout(context.Background(), f.m.fanoutTimeout)
	defer cancel()

	var g errgroup.Group

	if f.m.history != nil {
		f.sink(&g, "chat history append", func() error {
			_, err := f.m.history.Append(ctx, f.id, turn)
			return err
		})
	}
	if f.m.events != nil {
		f.sink(&g, "chat turn publish", func() error {
			return f.m.events.PublishChatTurn(ctx, f.id, turn)
		})
	}

	g.Wait()
}

// sink runs fn on g and logs its failure
func (f *fanout) sink(g *errgroup.Group, name string, fn func() error) {
	g.Go(func() error {
		if err := fn(); err != nil {
			log.Printf("[session] ⚠️  %s for %s failed: %v", name, f.id, err)
		}
		return nil
	})
}

// completed lists the categories that left Loading in this transition
func completed(prev, next coordinator.State) []coordinator.Category {
	var cats []coordinator.Category
	for _, cat := range coordinator.Categories {
		if prev.Phases.Get(cat) == coordinator.PhaseLoading && !next.Loading(cat) {
			cats = append(cats, cat)
		}
	}
	return cats
}
