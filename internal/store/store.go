// Package store holds the two repositories the app is built from: ListStore
// for a shopping list's contents and UserStore for per-user membership and
// shared-list reference counting. Both are thin translations of caller
// actions into document-store reads and writes.
package store

import (
	"errors"

	"github.com/oklog/ulid/v2"
)

// ErrEmptyName rejects renames and creates with a blank name.
var ErrEmptyName = errors.New("store: name is required")

// NewID allocates a time-ordered, globally unique identifier.
func NewID() string {
	return ulid.Make().String()
}

func userPath(userID string) string {
	return "users/" + userID
}

func membershipPath(userID, listID string) string {
	return "users/" + userID + "/myLists/" + listID
}

func listPath(listID string) string {
	return "shopping_lists/" + listID
}

func categoryPath(listID, categoryID string) string {
	return listPath(listID) + "/categories/" + categoryID
}

func itemPath(listID, categoryID, itemID string) string {
	return categoryPath(listID, categoryID) + "/items/" + itemID
}
