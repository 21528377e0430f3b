package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bpires/listd/internal/auth"
	"github.com/bpires/listd/internal/store"
)

type ListHandler struct {
	listStore *store.ListStore
	logger    *slog.Logger
}

func NewListHandler(ls *store.ListStore, logger *slog.Logger) *ListHandler {
	return &ListHandler{listStore: ls, logger: logger}
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	listID, err := h.listStore.Create(r.Context(), auth.UserID(r.Context()), req.Name)
	if err != nil {
		h.logger.Error("create list", "error", err)
		writeStoreError(w, err, "failed to create list")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": listID})
}

func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	list, err := h.listStore.Get(r.Context(), r.PathValue("list_id"))
	if err != nil {
		writeStoreError(w, err, "failed to get list")
		return
	}
	if list == nil {
		writeError(w, http.StatusNotFound, "list not found")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ListHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.listStore.Rename(r.Context(), r.PathValue("list_id"), req.Name); err != nil {
		writeStoreError(w, err, "failed to rename list")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	categoryID, err := h.listStore.AddCategory(r.Context(), r.PathValue("list_id"), req.Name)
	if err != nil {
		writeStoreError(w, err, "failed to add category")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": categoryID})
}

func (h *ListHandler) RenameCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	err := h.listStore.RenameCategory(r.Context(), r.PathValue("list_id"), r.PathValue("category_id"), req.Name)
	if err != nil {
		writeStoreError(w, err, "failed to rename category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	err := h.listStore.DeleteCategory(r.Context(), r.PathValue("list_id"), r.PathValue("category_id"))
	if err != nil {
		writeStoreError(w, err, "failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type itemRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

func (h *ListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	itemID, err := h.listStore.AddItem(r.Context(), r.PathValue("list_id"), r.PathValue("category_id"), req.Name, req.Quantity)
	if err != nil {
		writeStoreError(w, err, "failed to add item")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": itemID})
}

type itemUpdateRequest struct {
	Name      *string  `json:"name"`
	Quantity  *int     `json:"quantity"`
	Purchased *bool    `json:"purchased"`
	Position  *float64 `json:"position"`
}

func (h *ListHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req itemUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	upd := store.ItemUpdate{
		Name:      req.Name,
		Quantity:  req.Quantity,
		Purchased: req.Purchased,
		Position:  req.Position,
	}
	err := h.listStore.UpdateItem(r.Context(), r.PathValue("list_id"), r.PathValue("category_id"), r.PathValue("item_id"), upd)
	if err != nil {
		writeStoreError(w, err, "failed to update item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	err := h.listStore.DeleteItem(r.Context(), r.PathValue("list_id"), r.PathValue("category_id"), r.PathValue("item_id"))
	if err != nil {
		writeStoreError(w, err, "failed to delete item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	Index int `json:"index"`
}

func (h *ListHandler) MoveItem(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	pos, err := h.listStore.MoveItem(r.Context(), r.PathValue("list_id"), r.PathValue("category_id"), r.PathValue("item_id"), req.Index)
	if err != nil {
		writeStoreError(w, err, "failed to move item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"position": pos})
}
