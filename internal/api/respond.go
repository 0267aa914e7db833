package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/rrelayer/rrelayer/internal/signer"
	"github.com/rrelayer/rrelayer/internal/txqueue"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeStoreError maps a storage/orchestrator error onto §7's taxonomy:
// unknown ids are 404, everything else this package doesn't recognise is
// 500 (the caller should have already produced a 4xx for validation
// failures it can detect without reaching the store).
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, signer.ErrNoBackendForIndex):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, txqueue.ErrNotAllowlisted):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, txqueue.ErrPaused):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, txqueue.ErrBlobsUnsupported):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case isNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// isNotFound is a best-effort classifier: the Postgres store wraps
// pgx.ErrNoRows with context via github.com/pkg/errors, so a substring
// check is the only option without a dedicated sentinel per call site.
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no rows") || strings.Contains(msg, "not found")
}

func parseUUID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id: "+raw)
		return uuid.UUID{}, false
	}
	return id, true
}

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address: "+raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "missing request body")
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
