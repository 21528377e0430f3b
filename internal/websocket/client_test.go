package websocket

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/bpires/listd/internal/database"
	"github.com/bpires/listd/internal/docstore"
)

func setupHub(t *testing.T) *Hub {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(docstore.New(db, logger), logger)
}

func TestClientAllowed(t *testing.T) {
	c := &Client{userID: "user-1"}

	cases := []struct {
		name string
		path string
		want bool
	}{
		{"own user doc", "users/user-1", true},
		{"other user doc", "users/user-2", false},
		{"any list", "shopping_lists/01J5EXAMPLE", true},
		{"list subtree too deep", "shopping_lists/01J5EXAMPLE/categories", false},
		{"user subtree too deep", "users/user-1/myLists", false},
		{"unknown tree", "secrets/user-1", false},
		{"missing id", "users/", false},
		{"bare root", "users", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.allowed(tc.path); got != tc.want {
				t.Errorf("allowed(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

// A forwarder that is mid-delivery when its client disconnects must drop the
// frame, not crash the process.
func TestUnregisterDuringSnapshotDelivery(t *testing.T) {
	hub := setupHub(t)
	ctx := context.Background()

	if err := hub.docs.Set(ctx, "shopping_lists/l1", map[string]any{"name": "Groceries"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	for i := 0; i < 200; i++ {
		c := NewClient(hub, nil, "u1")
		clientCtx, cancel := context.WithCancel(ctx)
		c.ctx = clientCtx
		hub.Register(c)
		c.subscribe("shopping_lists/l1")

		done := make(chan struct{})
		go func(i int) {
			defer close(done)
			hub.docs.Set(ctx, "shopping_lists/l1", map[string]any{"name": fmt.Sprintf("v%d", i)})
		}(i)

		hub.Unregister(c)
		<-done
		cancel()
	}
}

func TestReplyCoalescesToLatestPerPath(t *testing.T) {
	c := NewClient(nil, nil, "u1")
	c.reply(Frame{Type: "error", Error: "forbidden path"})
	for i := 1; i <= 40; i++ {
		c.reply(Frame{Type: "snapshot", Path: "shopping_lists/l1", Exists: true, Value: fmt.Sprintf("v%d", i)})
	}
	c.reply(Frame{Type: "snapshot", Path: "users/u1", Exists: true, Value: "me"})

	frames := c.takeFrames()
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3 (error + one snapshot per path)", len(frames))
	}
	byPath := make(map[string]Frame)
	var errors int
	for _, f := range frames {
		if f.Type == "error" {
			errors++
			continue
		}
		byPath[f.Path] = f
	}
	if errors != 1 {
		t.Errorf("error frames = %d, want 1", errors)
	}
	if got := byPath["shopping_lists/l1"].Value; got != "v40" {
		t.Errorf("list snapshot = %v, want v40", got)
	}
	if got := byPath["users/u1"].Value; got != "me" {
		t.Errorf("user snapshot = %v, want me", got)
	}

	if rest := c.takeFrames(); len(rest) != 0 {
		t.Errorf("second drain returned %d frames, want 0", len(rest))
	}
}

func TestReplyAfterShutdownIsDropped(t *testing.T) {
	c := NewClient(nil, nil, "u1")
	c.shutdown()
	c.reply(Frame{Type: "snapshot", Path: "shopping_lists/l1", Exists: true})
	c.reply(Frame{Type: "error", Error: "late"})
	if frames := c.takeFrames(); len(frames) != 0 {
		t.Errorf("got %d frames after shutdown, want 0", len(frames))
	}
}
