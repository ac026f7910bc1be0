package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"drivebot/internal/auth"
	"drivebot/internal/config"
	"drivebot/internal/drive"
	"drivebot/internal/logger"
	"drivebot/internal/models"
	"drivebot/internal/storage"
)

const testKey = "secret-key"

var authHeaders = map[string]string{"X-Admin-Key": testKey}

type stubFolder struct {
	folder models.Folder
	ok     bool
}

func (s stubFolder) Current() (models.Folder, bool) { return s.folder, s.ok }

type stubLogs struct {
	entries   []logger.LogEntry
	err       error
	lastLevel string
	lastLimit int
}

func (s *stubLogs) Tail(level string, limit int) ([]logger.LogEntry, error) {
	s.lastLevel = level
	s.lastLimit = limit
	return s.entries, s.err
}

type testServer struct {
	router *gin.Engine
	index  *drive.Index
	logs   *stubLogs
}

func TestHealthNeedsNoKey(t *testing.T) {
	srv := newTestServer(t, stubFolder{})

	rec := doJSONRequest(t, srv.router, http.MethodGet, "/healthz", nil, nil)
	assertStatus(t, rec, http.StatusOK)
}

func TestAPIRejectsMissingOrWrongKey(t *testing.T) {
	srv := newTestServer(t, stubFolder{})

	rec := doJSONRequest(t, srv.router, http.MethodGet, "/api/folder", nil, nil)
	assertStatus(t, rec, http.StatusUnauthorized)

	rec = doJSONRequest(t, srv.router, http.MethodGet, "/api/folder", nil, map[string]string{"X-Admin-Key": "nope"})
	assertStatus(t, rec, http.StatusUnauthorized)

	rec = doJSONRequest(t, srv.router, http.MethodGet, "/api/folder", nil, map[string]string{"Authorization": "Bearer " + testKey})
	assertStatus(t, rec, http.StatusOK)
}

func TestCurrentFolder(t *testing.T) {
	srv := newTestServer(t, stubFolder{})
	rec := doJSONRequest(t, srv.router, http.MethodGet, "/api/folder", nil, authHeaders)
	assertStatus(t, rec, http.StatusOK)
	var empty struct {
		Folder *models.Folder `json:"folder"`
	}
	decodeJSON(t, rec.Body.Bytes(), &empty)
	if empty.Folder != nil {
		t.Fatalf("expected no folder, got %+v", empty.Folder)
	}

	srv = newTestServer(t, stubFolder{folder: models.Folder{Path: "/a1", Name: "Docs"}, ok: true})
	rec = doJSONRequest(t, srv.router, http.MethodGet, "/api/folder", nil, authHeaders)
	assertStatus(t, rec, http.StatusOK)
	var set struct {
		Folder models.Folder `json:"folder"`
	}
	decodeJSON(t, rec.Body.Bytes(), &set)
	if set.Folder.Path != "/a1" || set.Folder.Name != "Docs" {
		t.Fatalf("unexpected folder %+v", set.Folder)
	}
}

func TestCreateFolderAndList(t *testing.T) {
	srv := newTestServer(t, stubFolder{})

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/folders", map[string]string{"name": "Docs"}, authHeaders)
	assertStatus(t, rec, http.StatusCreated)
	var created struct {
		Folder models.Item `json:"folder"`
	}
	decodeJSON(t, rec.Body.Bytes(), &created)
	if created.Folder.Name != "Docs" || !created.Folder.IsFolder() || created.Folder.Path != drive.RootPath {
		t.Fatalf("unexpected folder %+v", created.Folder)
	}

	body := map[string]string{"parent_path": created.Folder.FullPath(), "name": "Invoices"}
	rec = doJSONRequest(t, srv.router, http.MethodPost, "/api/folders", body, authHeaders)
	assertStatus(t, rec, http.StatusCreated)

	rec = doJSONRequest(t, srv.router, http.MethodGet, "/api/items?path="+created.Folder.FullPath(), nil, authHeaders)
	assertStatus(t, rec, http.StatusOK)
	var listed struct {
		Items []models.Item `json:"items"`
	}
	decodeJSON(t, rec.Body.Bytes(), &listed)
	if len(listed.Items) != 1 || listed.Items[0].Name != "Invoices" {
		t.Fatalf("unexpected listing %+v", listed.Items)
	}

	rec = doJSONRequest(t, srv.router, http.MethodGet, "/api/items", nil, authHeaders)
	assertStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec.Body.Bytes(), &listed)
	if len(listed.Items) != 1 || listed.Items[0].ID != created.Folder.ID {
		t.Fatalf("unexpected root listing %+v", listed.Items)
	}
}

func TestCreateFolderErrors(t *testing.T) {
	srv := newTestServer(t, stubFolder{})

	rec := doJSONRequest(t, srv.router, http.MethodPost, "/api/folders", map[string]string{"name": "  "}, authHeaders)
	assertStatus(t, rec, http.StatusBadRequest)

	body := map[string]string{"parent_path": "/missing", "name": "x"}
	rec = doJSONRequest(t, srv.router, http.MethodPost, "/api/folders", body, authHeaders)
	assertStatus(t, rec, http.StatusNotFound)

	req := httptest.NewRequest(http.MethodPost, "/api/folders", bytes.NewBufferString("{"))
	req.Header.Set("X-Admin-Key", testKey)
	bad := httptest.NewRecorder()
	srv.router.ServeHTTP(bad, req)
	assertStatus(t, bad, http.StatusBadRequest)
}

func TestListMissingFolder(t *testing.T) {
	srv := newTestServer(t, stubFolder{})
	rec := doJSONRequest(t, srv.router, http.MethodGet, "/api/items?path=/nowhere", nil, authHeaders)
	assertStatus(t, rec, http.StatusNotFound)
}

func TestSearchItemsSortedByName(t *testing.T) {
	srv := newTestServer(t, stubFolder{})
	ctx := context.Background()
	for _, name := range []string{"Taxes 2024", "taxes archive", "Photos"} {
		if _, err := srv.index.NewFolder(ctx, drive.RootPath, name); err != nil {
			t.Fatalf("NewFolder error: %v", err)
		}
	}

	rec := doJSONRequest(t, srv.router, http.MethodGet, "/api/items/search?q=TAX", nil, authHeaders)
	assertStatus(t, rec, http.StatusOK)
	var found struct {
		Items []models.Item `json:"items"`
	}
	decodeJSON(t, rec.Body.Bytes(), &found)
	if len(found.Items) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found.Items))
	}
	if found.Items[0].Name != "Taxes 2024" || found.Items[1].Name != "taxes archive" {
		t.Fatalf("unexpected order %+v", found.Items)
	}

	rec = doJSONRequest(t, srv.router, http.MethodGet, "/api/items/search?q=", nil, authHeaders)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestTailLogs(t *testing.T) {
	srv := newTestServer(t, stubFolder{})
	srv.logs.entries = []logger.LogEntry{{Level: "ERROR", Message: "boom", Module: "INGEST"}}

	rec := doJSONRequest(t, srv.router, http.MethodGet, "/api/logs?level=error&limit=5000", nil, authHeaders)
	assertStatus(t, rec, http.StatusOK)
	if srv.logs.lastLevel != "ERROR" || srv.logs.lastLimit != maxLogLimit {
		t.Fatalf("unexpected tail args %q %d", srv.logs.lastLevel, srv.logs.lastLimit)
	}
	var out struct {
		Logs []logger.LogEntry `json:"logs"`
	}
	decodeJSON(t, rec.Body.Bytes(), &out)
	if len(out.Logs) != 1 || out.Logs[0].Message != "boom" {
		t.Fatalf("unexpected logs %+v", out.Logs)
	}

	rec = doJSONRequest(t, srv.router, http.MethodGet, "/api/logs?limit=abc", nil, authHeaders)
	assertStatus(t, rec, http.StatusBadRequest)

	srv.logs.err = errors.New("disk gone")
	rec = doJSONRequest(t, srv.router, http.MethodGet, "/api/logs", nil, authHeaders)
	assertStatus(t, rec, http.StatusInternalServerError)
	if srv.logs.lastLimit != defaultLogLimit {
		t.Fatalf("expected default limit, got %d", srv.logs.lastLimit)
	}
}

func newTestServer(t *testing.T, folder FolderSource) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	index := drive.NewIndex(db)
	logs := &stubLogs{}
	handler := NewHandler(folder, index, auth.NewService(testKey, []int64{1}), logs, logger.NewNop())

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, index: index, logs: logs}
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}
