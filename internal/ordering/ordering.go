// Package ordering computes fractional positions for drag-reordered items.
// Moving one item assigns it a new position between its neighbors, so no
// other sibling is ever renumbered.
package ordering

import (
	"sort"

	"github.com/bpires/listd/internal/model"
)

// Sibling pairs an item id with its position.
type Sibling struct {
	ID       string
	Position float64
}

// SortedSiblings flattens a category's items into position-ascending order,
// breaking position ties by id.
func SortedSiblings(items map[string]model.Item) []Sibling {
	siblings := make([]Sibling, 0, len(items))
	for id, item := range items {
		siblings = append(siblings, Sibling{ID: id, Position: item.Position})
	}
	sort.Slice(siblings, func(i, j int) bool {
		if siblings[i].Position != siblings[j].Position {
			return siblings[i].Position < siblings[j].Position
		}
		return siblings[i].ID < siblings[j].ID
	})
	return siblings
}

// Arrange returns the sibling order after moving id to newIndex. Indexes out
// of range clamp to the ends. The input slice is not modified.
func Arrange(siblings []Sibling, id string, newIndex int) []Sibling {
	var moved Sibling
	rest := make([]Sibling, 0, len(siblings))
	found := false
	for _, s := range siblings {
		if s.ID == id {
			moved = s
			found = true
			continue
		}
		rest = append(rest, s)
	}
	if !found {
		return rest
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(rest) {
		newIndex = len(rest)
	}
	out := make([]Sibling, 0, len(siblings))
	out = append(out, rest[:newIndex]...)
	out = append(out, moved)
	out = append(out, rest[newIndex:]...)
	return out
}

// MovedPosition computes the position for the item now sitting at newIndex in
// siblings, where siblings is the post-move order (moved item included).
// Neighbors keep their positions; only the moved item gets a new one.
//
// Repeated insertion at the same boundary narrows the available gap toward
// float64 precision limits; positions are never renumbered to recover.
func MovedPosition(siblings []Sibling, newIndex int) float64 {
	switch {
	case len(siblings) <= 1:
		return 0.0
	case newIndex <= 0:
		return siblings[1].Position - 1.0
	case newIndex >= len(siblings)-1:
		return siblings[len(siblings)-2].Position + 1.0
	default:
		return (siblings[newIndex-1].Position + siblings[newIndex+1].Position) / 2.0
	}
}
