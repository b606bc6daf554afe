// ABOUTME: Small shared helpers for the HTTP handlers
// ABOUTME: JSON encode/decode, error mapping and order short ids

package api

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tidemark/driftsync/internal/engine"
	"github.com/tidemark/driftsync/internal/store"
)

// errForbidden marks policy denials inside transaction functions.
var errForbidden = errors.New("forbidden")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeDomainError maps an error coming out of the write pipeline or a
// read query onto the HTTP surface.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, engine.ErrOracleUnavailable):
		writeError(w, http.StatusInternalServerError, "coordination service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// shortID generates an 8-character alphanumeric reference for orders.
func shortID() string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, 8)
	rand.Read(buf)
	for i := range buf {
		buf[i] = alphabet[buf[i]%byte(len(alphabet))]
	}
	return string(buf)
}
