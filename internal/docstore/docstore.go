// Package docstore implements the hierarchical document store the list and
// user repositories persist into: a path-addressed JSON tree backed by
// SQLite, with atomic multi-path updates, numeric field increments, and live
// per-path subscriptions.
//
// Paths are slash-separated, e.g. "shopping_lists/abc/categories/def/items".
// The first two segments address a stored document row; deeper segments
// address fields inside that document's JSON value. Concurrent writers are
// serialized per transaction; the last write wins.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrNotFound is returned when a read or partial update addresses a path
// with no document or field present.
var ErrNotFound = errors.New("docstore: not found")

type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// commitMu is held across every transaction and the watcher
	// notification that follows its commit, so watchers are always fed
	// states in commit order. Watch holds it while taking its initial
	// snapshot for the same reason.
	commitMu sync.Mutex

	mu         sync.Mutex
	watchers   map[int64]*watcher
	nextWatch  int64
	keepSynced map[string]bool
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:         db,
		logger:     logger,
		watchers:   make(map[int64]*watcher),
		keepSynced: make(map[string]bool),
	}
}

// splitPath validates a path and splits it into the document root
// (first two segments) and the field segments below it.
func splitPath(path string) (root string, rest []string, err error) {
	segs := strings.Split(path, "/")
	if len(segs) < 2 {
		return "", nil, fmt.Errorf("path %q: need at least collection and id", path)
	}
	for _, s := range segs {
		if s == "" {
			return "", nil, fmt.Errorf("path %q: empty segment", path)
		}
	}
	return segs[0] + "/" + segs[1], segs[2:], nil
}

// KeepSynced records a cache hint for the given path. The embedded store is
// already local and durable, so this is a pass-through flag only.
func (s *Store) KeepSynced(path string, keep bool) {
	s.mu.Lock()
	if keep {
		s.keepSynced[path] = true
	} else {
		delete(s.keepSynced, path)
	}
	s.mu.Unlock()
	s.logger.Debug("keep synced", "path", path, "keep", keep)
}

// Get returns the JSON value at path, or ErrNotFound.
func (s *Store) Get(ctx context.Context, path string) (json.RawMessage, error) {
	root, rest, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE path = ?`, root).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode %q: %w", root, err)
	}

	node, ok := getNode(doc, rest)
	if !ok {
		return nil, ErrNotFound
	}
	out, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", path, err)
	}
	return out, nil
}

// Set writes a full value at path, implicitly materializing ancestors.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	root, rest, err := splitPath(path)
	if err != nil {
		return err
	}
	norm, err := normalize(value)
	if err != nil {
		return err
	}

	changed := make(map[string]map[string]any)
	err = s.withTx(ctx, changed, func(tx *sql.Tx) error {
		doc, _, err := loadDoc(ctx, tx, root)
		if err != nil {
			return err
		}
		doc = applySet(doc, rest, norm)
		if doc == nil {
			if err := removeDoc(ctx, tx, root); err != nil {
				return err
			}
		} else if err := saveDoc(ctx, tx, root, doc); err != nil {
			return err
		}
		changed[root] = doc
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	return nil
}

// Insert writes value at path only if nothing exists there yet. An existing
// value is left untouched and no error is returned.
func (s *Store) Insert(ctx context.Context, path string, value any) error {
	root, rest, err := splitPath(path)
	if err != nil {
		return err
	}
	norm, err := normalize(value)
	if err != nil {
		return err
	}

	changed := make(map[string]map[string]any)
	err = s.withTx(ctx, changed, func(tx *sql.Tx) error {
		doc, found, err := loadDoc(ctx, tx, root)
		if err != nil {
			return err
		}
		if found {
			if _, ok := getNode(doc, rest); ok {
				return nil
			}
		}
		doc = applySet(doc, rest, norm)
		if err := saveDoc(ctx, tx, root, doc); err != nil {
			return err
		}
		changed[root] = doc
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert %q: %w", path, err)
	}
	return nil
}

// Update merges fields into the existing value at path. A missing document
// or field node fails with ErrNotFound rather than creating a malformed
// ancestor.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	root, rest, err := splitPath(path)
	if err != nil {
		return err
	}

	changed := make(map[string]map[string]any)
	err = s.withTx(ctx, changed, func(tx *sql.Tx) error {
		doc, found, err := loadDoc(ctx, tx, root)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		node, ok := getNode(doc, rest)
		if !ok {
			return ErrNotFound
		}
		target, ok := node.(map[string]any)
		if !ok {
			return fmt.Errorf("value at %q is not an object", path)
		}
		for k, v := range fields {
			norm, err := normalize(v)
			if err != nil {
				return err
			}
			if norm == nil {
				delete(target, k)
			} else {
				target[k] = norm
			}
		}
		if err := saveDoc(ctx, tx, root, doc); err != nil {
			return err
		}
		changed[root] = doc
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("update %q: %w", path, ErrNotFound)
		}
		return fmt.Errorf("update %q: %w", path, err)
	}
	return nil
}

// Delete removes the value at path and all its descendants. Deleting an
// absent path is a no-op.
func (s *Store) Delete(ctx context.Context, path string) error {
	root, rest, err := splitPath(path)
	if err != nil {
		return err
	}

	changed := make(map[string]map[string]any)
	err = s.withTx(ctx, changed, func(tx *sql.Tx) error {
		doc, found, err := loadDoc(ctx, tx, root)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if len(rest) == 0 {
			if err := removeDoc(ctx, tx, root); err != nil {
				return err
			}
			changed[root] = nil
			return nil
		}
		if !deleteNode(doc, rest) {
			return nil
		}
		if err := saveDoc(ctx, tx, root, doc); err != nil {
			return err
		}
		changed[root] = doc
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}
	return nil
}

// MultiUpdate applies full-value writes at several paths in one transaction;
// either every path is applied or none are. A nil value deletes the path.
func (s *Store) MultiUpdate(ctx context.Context, updates map[string]any) error {
	type write struct {
		rest  []string
		value any
	}
	byRoot := make(map[string][]write)
	for path, value := range updates {
		root, rest, err := splitPath(path)
		if err != nil {
			return err
		}
		norm, err := normalize(value)
		if err != nil {
			return err
		}
		byRoot[root] = append(byRoot[root], write{rest: rest, value: norm})
	}

	changed := make(map[string]map[string]any)
	err := s.withTx(ctx, changed, func(tx *sql.Tx) error {
		for root, writes := range byRoot {
			doc, _, err := loadDoc(ctx, tx, root)
			if err != nil {
				return err
			}
			for _, w := range writes {
				if w.value == nil {
					if len(w.rest) == 0 {
						doc = nil
					} else if doc != nil {
						deleteNode(doc, w.rest)
					}
					continue
				}
				doc = applySet(doc, w.rest, w.value)
			}
			if doc == nil {
				if err := removeDoc(ctx, tx, root); err != nil {
					return err
				}
			} else if err := saveDoc(ctx, tx, root, doc); err != nil {
				return err
			}
			changed[root] = doc
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("multi update: %w", err)
	}
	return nil
}

// Increment atomically adds delta to the numeric field at path and returns
// the new value. The enclosing document must exist; an absent field starts
// from zero.
func (s *Store) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	root, rest, err := splitPath(path)
	if err != nil {
		return 0, err
	}
	if len(rest) == 0 {
		return 0, fmt.Errorf("increment %q: path must address a field", path)
	}

	var result int64
	changed := make(map[string]map[string]any)
	err = s.withTx(ctx, changed, func(tx *sql.Tx) error {
		doc, found, err := loadDoc(ctx, tx, root)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		parent, ok := getNode(doc, rest[:len(rest)-1])
		if !ok {
			return ErrNotFound
		}
		obj, ok := parent.(map[string]any)
		if !ok {
			return fmt.Errorf("parent of %q is not an object", path)
		}
		field := rest[len(rest)-1]
		var current float64
		if v, ok := obj[field]; ok {
			n, ok := v.(float64)
			if !ok {
				return fmt.Errorf("value at %q is not a number", path)
			}
			current = n
		}
		result = int64(current) + delta
		obj[field] = float64(result)
		if err := saveDoc(ctx, tx, root, doc); err != nil {
			return err
		}
		changed[root] = doc
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, fmt.Errorf("increment %q: %w", path, ErrNotFound)
		}
		return 0, fmt.Errorf("increment %q: %w", path, err)
	}
	return result, nil
}

// --- transaction and row helpers ---

// withTx runs fn in a transaction and, on success, notifies watchers of the
// documents recorded in changed. The whole sequence holds commitMu: two
// commits cannot notify out of commit order, and a transaction never waits
// on the lock while holding the pool's single connection (which would
// deadlock a Watch reading its initial snapshot under the same lock).
func (s *Store) withTx(ctx context.Context, changed map[string]map[string]any, fn func(*sql.Tx) error) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.notify(changed)
	return nil
}

func loadDoc(ctx context.Context, tx *sql.Tx, root string) (map[string]any, bool, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT value FROM documents WHERE path = ?`, root).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %q: %w", root, err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, fmt.Errorf("decode %q: %w", root, err)
	}
	return doc, true, nil
}

func saveDoc(ctx context.Context, tx *sql.Tx, root string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %q: %w", root, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (path, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		root, string(raw),
	)
	if err != nil {
		return fmt.Errorf("save %q: %w", root, err)
	}
	return nil
}

func removeDoc(ctx context.Context, tx *sql.Tx, root string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, root); err != nil {
		return fmt.Errorf("remove %q: %w", root, err)
	}
	return nil
}

// --- nested value helpers ---

// normalize round-trips a value through JSON so stored trees are always
// map[string]any / []any / float64 / string / bool.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

func getNode(doc map[string]any, segs []string) (any, bool) {
	var node any = doc
	for _, seg := range segs {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// applySet writes value at segs below doc, materializing intermediate
// objects. With no segs the whole document is replaced; a non-object
// replacement clears the document row.
func applySet(doc map[string]any, segs []string, value any) map[string]any {
	if len(segs) == 0 {
		if obj, ok := value.(map[string]any); ok {
			return obj
		}
		return nil
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	node := doc
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = value
	return doc
}

func deleteNode(doc map[string]any, segs []string) bool {
	node := doc
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			return false
		}
		node = child
	}
	if _, ok := node[segs[len(segs)-1]]; !ok {
		return false
	}
	delete(node, segs[len(segs)-1])
	return true
}
