package docstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Snapshot is one observed state of a watched path. A subscription delivers
// its current state first (Exists false when nothing is stored there yet),
// then every later committed state in commit order. Rapid writes may be
// coalesced into fewer snapshots; ordering is never violated.
type Snapshot struct {
	Path   string
	Exists bool
	Value  json.RawMessage
}

type watcher struct {
	id   int64
	path string
	root string
	rest []string
	out  chan Snapshot

	mu      sync.Mutex
	pending *Snapshot
	wake    chan struct{}
}

// Watch subscribes to the value at path. The returned channel yields the
// current snapshot first, then updates, and is closed when ctx is cancelled.
// Cancelling one subscription does not affect others.
func (s *Store) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	root, rest, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	w := &watcher{
		path: path,
		root: root,
		rest: rest,
		out:  make(chan Snapshot, 1),
		wake: make(chan struct{}, 1),
	}

	// Registration, the initial read, and its enqueue happen under the
	// commit lock: no commit can slide its notification between the read
	// and the enqueue, so the first snapshot is never staler than a later
	// delivered one.
	s.commitMu.Lock()
	s.mu.Lock()
	s.nextWatch++
	w.id = s.nextWatch
	s.watchers[w.id] = w
	s.mu.Unlock()

	raw, err := s.Get(ctx, path)
	switch {
	case err == nil:
		w.enqueue(Snapshot{Path: path, Exists: true, Value: raw})
	default:
		// Read failures degrade to an absent snapshot; never fail a subscriber.
		w.enqueue(Snapshot{Path: path, Exists: false})
	}
	s.commitMu.Unlock()

	go w.run(ctx, func() {
		s.mu.Lock()
		delete(s.watchers, w.id)
		s.mu.Unlock()
	})

	return w.out, nil
}

// notify delivers post-commit document states to every watcher under the
// changed roots. A nil document means the root was deleted.
func (s *Store) notify(changed map[string]map[string]any) {
	if len(changed) == 0 {
		return
	}

	s.mu.Lock()
	targets := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		if _, ok := changed[w.root]; ok {
			targets = append(targets, w)
		}
	}
	s.mu.Unlock()

	for _, w := range targets {
		doc := changed[w.root]
		snap := Snapshot{Path: w.path}
		if doc != nil {
			if node, ok := getNode(doc, w.rest); ok {
				raw, err := json.Marshal(node)
				if err != nil {
					s.logger.Error("marshal snapshot", "path", w.path, "error", err)
					continue
				}
				snap.Exists = true
				snap.Value = raw
			}
		}
		w.enqueue(snap)
	}
}

func (w *watcher) enqueue(snap Snapshot) {
	w.mu.Lock()
	w.pending = &snap
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) run(ctx context.Context, unregister func()) {
	// Unregister before closing so a closed channel implies the watcher is
	// already gone from the registry.
	defer close(w.out)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			snap := w.pending
			w.pending = nil
			w.mu.Unlock()
			if snap == nil {
				break
			}
			select {
			case w.out <- *snap:
			case <-ctx.Done():
				return
			}
		}
	}
}

// WatcherCount reports the number of active subscriptions, optionally
// filtered by path prefix. Used by tests and the health endpoint.
func (s *Store) WatcherCount(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prefix == "" {
		return len(s.watchers)
	}
	n := 0
	for _, w := range s.watchers {
		if strings.HasPrefix(w.path, prefix) {
			n++
		}
	}
	return n
}
