package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bpires/listd/internal/auth"
	"github.com/bpires/listd/internal/share"
	"github.com/bpires/listd/internal/store"
)

type ShareHandler struct {
	listStore *store.ListStore
	userStore *store.UserStore
	codec     *share.Codec
	logger    *slog.Logger
}

func NewShareHandler(ls *store.ListStore, us *store.UserStore, codec *share.Codec, logger *slog.Logger) *ShareHandler {
	return &ShareHandler{listStore: ls, userStore: us, codec: codec, logger: logger}
}

// Code returns the share code for a list; the QR rendering happens on the
// client.
func (h *ShareHandler) Code(w http.ResponseWriter, r *http.Request) {
	listID := r.PathValue("list_id")

	list, err := h.listStore.Get(r.Context(), listID)
	if err != nil {
		writeStoreError(w, err, "failed to get list")
		return
	}
	if list == nil {
		writeError(w, http.StatusNotFound, "list not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"code": h.codec.Encode(listID)})
}

type importRequest struct {
	Code string `json:"code"`
}

// Import adds a scanned list to the caller's membership set and bumps the
// list's reference count.
func (h *ShareHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	listID, err := h.codec.Decode(req.Code)
	if err != nil {
		if errors.Is(err, share.ErrInvalidCode) {
			writeError(w, http.StatusBadRequest, "invalid share code")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to decode share code")
		return
	}

	userID := auth.UserID(r.Context())
	if err := h.userStore.ImportList(r.Context(), userID, listID); err != nil {
		h.logger.Error("import list", "list_id", listID, "user_id", userID, "error", err)
		writeStoreError(w, err, "failed to import list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": listID})
}

// Leave drops the list from the caller's membership set; the last member out
// deletes the list.
func (h *ShareHandler) Leave(w http.ResponseWriter, r *http.Request) {
	listID := r.PathValue("list_id")
	userID := auth.UserID(r.Context())

	if err := h.userStore.RemoveList(r.Context(), userID, listID); err != nil {
		h.logger.Error("remove list", "list_id", listID, "user_id", userID, "error", err)
		writeStoreError(w, err, "failed to remove list")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
