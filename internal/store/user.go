package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"

	"github.com/bpires/listd/internal/docstore"
	"github.com/bpires/listd/internal/model"
)

const listLockStripes = 64

type UserStore struct {
	docs   *docstore.Store
	logger *slog.Logger

	// Serializes the remove/decrement/delete sequence per list so two
	// simultaneous last-member departures cannot both skip the delete.
	// Striped by list id hash: a fixed set of mutexes instead of one per
	// list id ever seen.
	listLocks [listLockStripes]sync.Mutex
}

func NewUserStore(docs *docstore.Store, logger *slog.Logger) *UserStore {
	return &UserStore{
		docs:   docs,
		logger: logger,
	}
}

// EnsureExists creates the user record with an empty membership set on first
// sign-in. Idempotent: an existing record, lists and all, is never
// overwritten.
func (s *UserStore) EnsureExists(ctx context.Context, userID, displayName string) error {
	if userID == "" {
		return fmt.Errorf("ensure user: user id is required")
	}
	if err := s.docs.Insert(ctx, userPath(userID), model.User{Name: displayName}); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// Get returns the user, or nil when no record exists.
func (s *UserStore) Get(ctx context.Context, userID string) (*model.User, error) {
	raw, err := s.docs.Get(ctx, userPath(userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// ImportList adds the list to the user's membership set, then increments the
// list's reference count. The membership write is durable on its own: if the
// increment fails the import has still happened (at-least-once).
func (s *UserStore) ImportList(ctx context.Context, userID, listID string) error {
	if _, err := s.docs.Get(ctx, listPath(listID)); err != nil {
		return fmt.Errorf("import list: %w", err)
	}

	if err := s.docs.Set(ctx, membershipPath(userID, listID), true); err != nil {
		return fmt.Errorf("import list: %w", err)
	}

	if _, err := s.docs.Increment(ctx, listPath(listID)+"/referenceCount", 1); err != nil {
		return fmt.Errorf("increment reference count: %w", err)
	}

	s.logger.Info("list imported", "list_id", listID, "user_id", userID)
	return nil
}

// RemoveList drops the list from the user's membership set, decrements the
// reference count, re-reads the persisted count, and deletes the whole list
// once it reaches zero. The count check is a read-after-write, never the
// local decrement result. Removing a list that is already gone is a no-op.
func (s *UserStore) RemoveList(ctx context.Context, userID, listID string) error {
	lock := s.listLock(listID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.docs.Delete(ctx, membershipPath(userID, listID)); err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}

	if _, err := s.docs.Increment(ctx, listPath(listID)+"/referenceCount", -1); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("decrement reference count: %w", err)
	}

	raw, err := s.docs.Get(ctx, listPath(listID)+"/referenceCount")
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read reference count: %w", err)
	}
	var count float64
	if err := json.Unmarshal(raw, &count); err != nil {
		return fmt.Errorf("decode reference count: %w", err)
	}

	if count <= 0 {
		if err := s.docs.Delete(ctx, listPath(listID)); err != nil {
			return fmt.Errorf("delete list: %w", err)
		}
		s.logger.Info("list deleted", "list_id", listID, "last_user", userID)
	}
	return nil
}

// Observe streams user snapshots; nil when the record is absent. Closed on
// ctx cancellation.
func (s *UserStore) Observe(ctx context.Context, userID string) (<-chan *model.User, error) {
	snaps, err := s.docs.Watch(ctx, userPath(userID))
	if err != nil {
		return nil, fmt.Errorf("observe user: %w", err)
	}

	out := make(chan *model.User, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			var u *model.User
			if snap.Exists {
				u = &model.User{}
				if err := json.Unmarshal(snap.Value, u); err != nil {
					s.logger.Warn("decode user snapshot", "user_id", userID, "error", err)
					u = nil
				}
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ObserveMembership streams the user's set of list ids, sorted, empty when
// the user has none.
func (s *UserStore) ObserveMembership(ctx context.Context, userID string) (<-chan []string, error) {
	snaps, err := s.docs.Watch(ctx, userPath(userID)+"/myLists")
	if err != nil {
		return nil, fmt.Errorf("observe membership: %w", err)
	}

	out := make(chan []string, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			ids := []string{}
			if snap.Exists {
				var set map[string]bool
				if err := json.Unmarshal(snap.Value, &set); err != nil {
					s.logger.Warn("decode membership snapshot", "user_id", userID, "error", err)
				} else {
					for id := range set {
						ids = append(ids, id)
					}
					sort.Strings(ids)
				}
			}
			select {
			case out <- ids:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *UserStore) listLock(listID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(listID))
	return &s.listLocks[h.Sum32()%listLockStripes]
}
