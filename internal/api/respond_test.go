package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/signer"
	"github.com/rrelayer/rrelayer/internal/txqueue"
)

func TestWriteJSONSetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"a": "b"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"a":"b"}`, rec.Body.String())
}

func TestWriteErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadRequest, "bad thing")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"bad thing"}`, rec.Body.String())
}

func TestWriteStoreErrorMapsNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	writeStoreError(rec, errors.New("sql: no rows in result set"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteStoreErrorMapsSignerBackendMissingTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	writeStoreError(rec, signer.ErrNoBackendForIndex)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWriteStoreErrorMapsNotAllowlistedTo403(t *testing.T) {
	rec := httptest.NewRecorder()
	writeStoreError(rec, txqueue.ErrNotAllowlisted)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWriteStoreErrorMapsPausedTo403(t *testing.T) {
	rec := httptest.NewRecorder()
	writeStoreError(rec, txqueue.ErrPaused)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWriteStoreErrorMapsBlobsUnsupportedTo422(t *testing.T) {
	rec := httptest.NewRecorder()
	writeStoreError(rec, txqueue.ErrBlobsUnsupported)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWriteStoreErrorDefaultsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	writeStoreError(rec, errors.New("connection reset"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIsNotFoundCaseInsensitive(t *testing.T) {
	require.True(t, isNotFound(errors.New("Not Found: relayer")))
	require.True(t, isNotFound(errors.New("NO ROWS in result set")))
	require.False(t, isNotFound(errors.New("permission denied")))
}

func TestParseUUIDRejectsInvalid(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := parseUUID(rec, "not-a-uuid")
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseAddressRejectsInvalid(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := parseAddress(rec, "not-an-address")
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseAddressAccepts(t *testing.T) {
	rec := httptest.NewRecorder()
	addr, ok := parseAddress(rec, "0x0000000000000000000000000000000000000001")
	require.True(t, ok)
	require.Equal(t, "0x0000000000000000000000000000000000000001", strings.ToLower(addr.Hex()))
}

func TestDecodeBodyRejectsInvalidJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{invalid"))
	var dst map[string]string
	ok := decodeBody(rec, req, &dst)
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeBodyAcceptsValidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	var dst struct {
		Name string `json:"name"`
	}
	ok := decodeBody(rec, req, &dst)
	require.True(t, ok)
	require.Equal(t, "x", dst.Name)
}
