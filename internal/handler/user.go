package handler

import (
	"log/slog"
	"net/http"

	"github.com/bpires/listd/internal/auth"
	"github.com/bpires/listd/internal/store"
)

type UserHandler struct {
	userStore *store.UserStore
	logger    *slog.Logger
}

func NewUserHandler(us *store.UserStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{userStore: us, logger: logger}
}

// StartSession creates the user record on first sign-in and returns it.
// Called once per session start; safe to repeat, an existing record is never
// overwritten.
func (h *UserHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.userStore.EnsureExists(r.Context(), id.UserID, id.DisplayName); err != nil {
		h.logger.Error("ensure user", "user_id", id.UserID, "error", err)
		writeStoreError(w, err, "failed to start session")
		return
	}

	user, err := h.userStore.Get(r.Context(), id.UserID)
	if err != nil {
		writeStoreError(w, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Me returns the caller's user record.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userStore.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeStoreError(w, err, "failed to load user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
