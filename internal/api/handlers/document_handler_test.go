package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/paperbase-io/paperbase/internal/api/middlewares"
	"github.com/paperbase-io/paperbase/internal/core"
	memorydb "github.com/paperbase-io/paperbase/internal/core/database/memory"
	"github.com/paperbase-io/paperbase/internal/core/queue"
	memoryvec "github.com/paperbase-io/paperbase/internal/core/vectorstore/memory"
	"github.com/paperbase-io/paperbase/internal/index"
	"github.com/paperbase-io/paperbase/internal/ingest"
	"github.com/paperbase-io/paperbase/internal/models"
	"github.com/paperbase-io/paperbase/internal/retrieval"
)

const testSecret = "test-secret"

type memStorage struct {
	objects map[string][]byte
}

func (m *memStorage) UploadFile(_ context.Context, key string, data []byte, _ string) error {
	m.objects[key] = data
	return nil
}

func (m *memStorage) GetFile(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) DeleteFile(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

type flatEmbedder struct{}

func (flatEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f flatEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type staticReindexer struct{}

func (staticReindexer) Reindex(context.Context, string) (index.Report, error) {
	return index.Report{Persisted: true, Count: 2}, nil
}

var _ core.ObjectClient = (*memStorage)(nil)

type apiFixture struct {
	db     *memorydb.Store
	router *chi.Mux
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := memorydb.New()
	store := &memStorage{objects: map[string][]byte{}}
	vectors := memoryvec.New()
	q := queue.NewMemoryQueue(16)

	intake := ingest.NewIntake(db, store, q, vectors, nil)
	retriever := retrieval.NewRetriever(flatEmbedder{}, vectors, nil)
	h := NewDocumentHandler(db, intake, retriever, staticReindexer{}, nil)

	r := chi.NewRouter()
	r.Group(func(protected chi.Router) {
		protected.Use(middleware.JWT(testSecret))
		protected.Post("/api/documents/upload", h.Upload)
		protected.Get("/api/documents", h.List)
		protected.Get("/api/documents/{documentID}/status", h.Status)
		protected.Get("/api/documents/{documentID}/search", h.Search)
		protected.Get("/api/documents/{documentID}/related", h.Related)
		protected.Post("/api/documents/{documentID}/reindex", h.Reindex)
		protected.Delete("/api/documents/{documentID}", h.Delete)
	})
	return &apiFixture{db: db, router: r}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (f *apiFixture) do(t *testing.T, req *http.Request, userID string) *httptest.ResponseRecorder {
	t.Helper()
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, fileName string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (f *apiFixture) upload(t *testing.T, userID, fileName string, data []byte) ingest.SubmitResult {
	t.Helper()
	rec := f.do(t, uploadRequest(t, fileName, data), userID)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var res ingest.SubmitResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func TestUploadRequiresAuth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, uploadRequest(t, "a.pdf", []byte("pdf")), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadRejectsBadToken(t *testing.T) {
	f := newAPIFixture(t)
	req := uploadRequest(t, "a.pdf", []byte("pdf"))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadAndStatus(t *testing.T) {
	f := newAPIFixture(t)
	res := f.upload(t, "alice", "paper.pdf", []byte("pdf bytes"))
	assert.Equal(t, models.StatusProcessing, res.Status)
	assert.NotEmpty(t, res.JobID)

	rec := f.do(t, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/documents/%s/status", res.DocumentID), nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, res.DocumentID, status["document_id"])
	assert.Equal(t, models.StatusPending, status["status"])
}

func TestStatusHiddenFromNonOwners(t *testing.T) {
	f := newAPIFixture(t)
	res := f.upload(t, "alice", "paper.pdf", []byte("pdf bytes"))

	rec := f.do(t, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/documents/%s/status", res.DocumentID), nil), "mallory")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListShowsOwnDocuments(t *testing.T) {
	f := newAPIFixture(t)
	f.upload(t, "alice", "mine.pdf", []byte("alice bytes"))
	f.upload(t, "bob", "theirs.pdf", []byte("bob bytes"))

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/documents", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Documents []models.Document `json:"documents"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out.Documents, 1)
	assert.Equal(t, "mine.pdf", out.Documents[0].FileName)
}

func TestSearchRequiresQuery(t *testing.T) {
	f := newAPIFixture(t)
	res := f.upload(t, "alice", "paper.pdf", []byte("pdf bytes"))

	rec := f.do(t, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/documents/%s/search", res.DocumentID), nil), "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReindexEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	res := f.upload(t, "alice", "paper.pdf", []byte("pdf bytes"))

	rec := f.do(t, httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/documents/%s/reindex", res.DocumentID), nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, true, out["persisted"])
}

func TestDeleteEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	res := f.upload(t, "alice", "paper.pdf", []byte("pdf bytes"))

	rec := f.do(t, httptest.NewRequest(http.MethodDelete,
		"/api/documents/"+res.DocumentID, nil), "alice")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	doc, err := f.db.GetDocumentByID(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Nil(t, doc)
}
