package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teledrive/internal/drive"
)

func newDriveRouter(store *drive.Store, blob *fakeBlob) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/files", func(r chi.Router) {
		r.Get("/", ListFiles(store))
		r.Post("/", CreateFile(store))
		r.Get("/{id}", GetFile(store))
		r.Patch("/{id}", PatchFile(store))
		r.Delete("/{id}", DeleteFile(store))
	})
	r.Route("/folders", func(r chi.Router) {
		r.Get("/", ListFolders(store))
		r.Post("/", CreateFolder(store))
		r.Delete("/{id}", DeleteFolder(store))
	})
	if blob != nil {
		r.Post("/upload", Upload(blob, store, zerolog.Nop()))
		r.Get("/healthz", Health(blob))
	}
	return r
}

func doJSON(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeFile(t *testing.T, w *httptest.ResponseRecorder) drive.File {
	t.Helper()
	var file drive.File
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	return file
}

func TestFileCRUDFlow(t *testing.T) {
	r := newDriveRouter(newTestStore(t), nil)

	w := doJSON(t, r, http.MethodPost, "/folders", map[string]string{"name": "movies"})
	require.Equal(t, http.StatusCreated, w.Code)
	var folder drive.Folder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &folder))
	require.NotEmpty(t, folder.ID)

	w = doJSON(t, r, http.MethodPost, "/files", map[string]any{
		"name": "movie.mp4", "messageId": 42, "folderId": folder.ID, "size": 1 << 20,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeFile(t, w)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, 42, created.MessageID)

	w = doJSON(t, r, http.MethodGet, "/files/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "movie.mp4", decodeFile(t, w).Name)

	w = doJSON(t, r, http.MethodGet, "/files?folder="+folder.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []drive.File
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	w = doJSON(t, r, http.MethodPatch, "/files/"+created.ID, map[string]string{"name": "renamed.mp4"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed.mp4", decodeFile(t, w).Name)

	// Folder still holds the file, so deleting it must be refused.
	w = doJSON(t, r, http.MethodDelete, "/folders/"+folder.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/files/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/folders/"+folder.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCreateFileValidation(t *testing.T) {
	r := newDriveRouter(newTestStore(t), nil)

	w := doJSON(t, r, http.MethodPost, "/files", map[string]any{"name": "x.mp4"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/files", map[string]any{"messageId": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/files", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileNotFoundResponses(t *testing.T) {
	r := newDriveRouter(newTestStore(t), nil)

	w := doJSON(t, r, http.MethodGet, "/files/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPatch, "/files/missing", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/files/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadCreatesRecord(t *testing.T) {
	blob := newFakeBlob()
	store := newTestStore(t)
	r := newDriveRouter(store, blob)

	payload := strings.Repeat("x", 4096)
	req := httptest.NewRequest(http.MethodPost, "/upload?name=notes.pdf", strings.NewReader(payload))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	file := decodeFile(t, w)
	assert.Equal(t, "notes.pdf", file.Name)
	assert.Equal(t, "application/pdf", file.MimeType)
	assert.Equal(t, int64(len(payload)), file.Size)
	assert.Greater(t, file.MessageID, 100)

	// The blob landed upstream under the returned message id.
	stored, err := blob.ResolveMessage(req.Context(), file.MessageID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), stored.Size)

	// And the drive record is retrievable.
	got, err := store.GetFile(file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.MessageID, got.MessageID)
}

func TestUploadValidation(t *testing.T) {
	r := newDriveRouter(newTestStore(t), newFakeBlob())

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("data"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/upload?name=x.bin", nil)
	req.ContentLength = 0
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusLengthRequired, w.Code)
}

func TestHealthReportsAuthorization(t *testing.T) {
	r := newDriveRouter(newTestStore(t), newFakeBlob())

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["authorized"])
}
