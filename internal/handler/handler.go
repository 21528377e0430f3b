package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bpires/listd/internal/docstore"
	"github.com/bpires/listd/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store failures onto HTTP statuses: validation to 400,
// missing paths to 404, everything else to a 500 the caller can retry.
func writeStoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrEmptyName):
		writeError(w, http.StatusBadRequest, "name is required")
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
