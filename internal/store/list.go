package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bpires/listd/internal/docstore"
	"github.com/bpires/listd/internal/model"
	"github.com/bpires/listd/internal/ordering"
)

type ListStore struct {
	docs   *docstore.Store
	logger *slog.Logger
}

func NewListStore(docs *docstore.Store, logger *slog.Logger) *ListStore {
	return &ListStore{docs: docs, logger: logger}
}

// Create persists a new list with a reference count of one and registers it
// in the owner's membership set. Both writes land in one atomic update; a
// failure applies neither.
func (s *ListStore) Create(ctx context.Context, ownerID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}

	listID := NewID()
	list := model.ShoppingList{Name: name, OwnerID: ownerID, ReferenceCount: 1}

	updates := map[string]any{
		membershipPath(ownerID, listID): true,
		listPath(listID):                list,
	}
	if err := s.docs.MultiUpdate(ctx, updates); err != nil {
		return "", fmt.Errorf("create list: %w", err)
	}

	s.logger.Info("list created", "list_id", listID, "owner_id", ownerID)
	return listID, nil
}

// Get returns the list, or nil when it does not exist.
func (s *ListStore) Get(ctx context.Context, listID string) (*model.ShoppingList, error) {
	raw, err := s.docs.Get(ctx, listPath(listID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	var list model.ShoppingList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return &list, nil
}

func (s *ListStore) Rename(ctx context.Context, listID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}
	return s.docs.Update(ctx, listPath(listID), map[string]any{"name": newName})
}

// AddCategory inserts an empty category. An empty name falls back to
// "General".
func (s *ListStore) AddCategory(ctx context.Context, listID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "General"
	}

	if _, err := s.docs.Get(ctx, listPath(listID)); err != nil {
		return "", fmt.Errorf("add category: %w", err)
	}

	categoryID := NewID()
	if err := s.docs.Set(ctx, categoryPath(listID, categoryID), model.Category{Name: name}); err != nil {
		return "", fmt.Errorf("add category: %w", err)
	}
	return categoryID, nil
}

func (s *ListStore) RenameCategory(ctx context.Context, listID, categoryID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}
	return s.docs.Update(ctx, categoryPath(listID, categoryID), map[string]any{"name": newName})
}

// DeleteCategory removes the category and every item in it. Deleting an
// absent category is a no-op.
func (s *ListStore) DeleteCategory(ctx context.Context, listID, categoryID string) error {
	return s.docs.Delete(ctx, categoryPath(listID, categoryID))
}

// AddItem inserts an unpurchased item at position 0. Quantities below one
// are raised to one.
func (s *ListStore) AddItem(ctx context.Context, listID, categoryID, name string, quantity int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if quantity < 1 {
		quantity = 1
	}

	if _, err := s.docs.Get(ctx, categoryPath(listID, categoryID)); err != nil {
		return "", fmt.Errorf("add item: %w", err)
	}

	itemID := NewID()
	item := model.Item{Name: name, Quantity: quantity, Purchased: false, Position: 0.0}
	if err := s.docs.Set(ctx, itemPath(listID, categoryID, itemID), item); err != nil {
		return "", fmt.Errorf("add item: %w", err)
	}
	return itemID, nil
}

func (s *ListStore) RenameItem(ctx context.Context, listID, categoryID, itemID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}
	return s.UpdateItem(ctx, listID, categoryID, itemID, ItemUpdate{Name: &newName})
}

// DeleteItem removes a single item; the enclosing category stays, even when
// it becomes empty.
func (s *ListStore) DeleteItem(ctx context.Context, listID, categoryID, itemID string) error {
	return s.docs.Delete(ctx, itemPath(listID, categoryID, itemID))
}

// ItemUpdate names the fields a partial item update may touch; nil fields
// are left alone.
type ItemUpdate struct {
	Name      *string
	Quantity  *int
	Purchased *bool
	Position  *float64
}

func (s *ListStore) UpdateItem(ctx context.Context, listID, categoryID, itemID string, upd ItemUpdate) error {
	fields := make(map[string]any)
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return ErrEmptyName
		}
		fields["name"] = name
	}
	if upd.Quantity != nil {
		q := *upd.Quantity
		if q < 1 {
			q = 1
		}
		fields["quantity"] = q
	}
	if upd.Purchased != nil {
		fields["purchased"] = *upd.Purchased
	}
	if upd.Position != nil {
		fields["position"] = *upd.Position
	}
	if len(fields) == 0 {
		return nil
	}
	return s.docs.Update(ctx, itemPath(listID, categoryID, itemID), fields)
}

// MoveItem computes a fractional position placing the item at newIndex among
// its siblings and persists it. No other sibling is touched. Returns the
// assigned position.
func (s *ListStore) MoveItem(ctx context.Context, listID, categoryID, itemID string, newIndex int) (float64, error) {
	list, err := s.Get(ctx, listID)
	if err != nil {
		return 0, err
	}
	if list == nil {
		return 0, fmt.Errorf("move item: %w", docstore.ErrNotFound)
	}
	cat, ok := list.Categories[categoryID]
	if !ok {
		return 0, fmt.Errorf("move item: %w", docstore.ErrNotFound)
	}
	if _, ok := cat.Items[itemID]; !ok {
		return 0, fmt.Errorf("move item: %w", docstore.ErrNotFound)
	}

	arranged := ordering.Arrange(ordering.SortedSiblings(cat.Items), itemID, newIndex)
	at := 0
	for i, sib := range arranged {
		if sib.ID == itemID {
			at = i
			break
		}
	}
	pos := ordering.MovedPosition(arranged, at)

	if err := s.UpdateItem(ctx, listID, categoryID, itemID, ItemUpdate{Position: &pos}); err != nil {
		return 0, err
	}
	return pos, nil
}

// Observe streams list snapshots: the current state first, then every
// committed change, nil when the list is absent or unreadable. The channel
// closes when ctx is cancelled.
func (s *ListStore) Observe(ctx context.Context, listID string) (<-chan *model.ShoppingList, error) {
	snaps, err := s.docs.Watch(ctx, listPath(listID))
	if err != nil {
		return nil, fmt.Errorf("observe list: %w", err)
	}

	out := make(chan *model.ShoppingList, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			var list *model.ShoppingList
			if snap.Exists {
				list = &model.ShoppingList{}
				if err := json.Unmarshal(snap.Value, list); err != nil {
					s.logger.Warn("decode list snapshot", "list_id", listID, "error", err)
					list = nil
				}
			}
			select {
			case out <- list:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
