package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bigkaa/student-registry/internal/api/handlers"
)

func TestNewRouter_ServesUploads(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "images", "STU1")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o640); err != nil {
		t.Fatal(err)
	}

	router := NewRouter(Handlers{
		Health:     handlers.NewHealthHandler(nil, root),
		UploadsDir: root,
	})

	tests := []struct {
		path   string
		status int
	}{
		{"/uploads/images/STU1/a.png", http.StatusOK},
		{"/uploads/images/STU1/", http.StatusNotFound},
		{"/uploads/images/STU1/missing.png", http.StatusNotFound},
		{"/uploads/../secret", http.StatusNotFound},
		{"/health/live", http.StatusOK},
		{"/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("GET %s: хотели %d, получили %d", tt.path, tt.status, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/images/STU1/a.png", nil))
	if rec.Body.String() != "png" {
		t.Errorf("содержимое: получили %q", rec.Body.String())
	}
}
