package model

// User is the per-user document at users/{userId}. MyLists is the set of
// list ids the user owns or has imported; the boolean carries no meaning.
type User struct {
	Name    string          `json:"name"`
	MyLists map[string]bool `json:"myLists,omitempty"`
}

// ShoppingList is the document at shopping_lists/{listId}. ReferenceCount is
// the number of users whose membership set contains this list; the list is
// deleted when it drops to zero.
type ShoppingList struct {
	Name           string              `json:"name"`
	OwnerID        string              `json:"ownerId"`
	ReferenceCount int                 `json:"referenceCount"`
	Categories     map[string]Category `json:"categories,omitempty"`
}

type Category struct {
	Name  string          `json:"name"`
	Items map[string]Item `json:"items,omitempty"`
}

// Item positions establish a total order among siblings in a category; ties
// are broken by item id. Values need not be contiguous or integral.
type Item struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Purchased bool    `json:"purchased"`
	Position  float64 `json:"position"`
}
