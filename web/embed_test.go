package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func TestSPAHandler(t *testing.T) {
	t.Parallel()

	h := newSPAHandler(fstest.MapFS{
		"index.html": {Data: []byte("<html>reader</html>")},
		"app.js":     {Data: []byte("console.log(1)")},
	})

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/", wantCode: http.StatusOK, wantBody: "reader"},
		{path: "/app.js", wantCode: http.StatusOK, wantBody: "console.log"},
		{path: "/viewer/3", wantCode: http.StatusOK, wantBody: "reader"},
		{path: "/api/unknown", wantCode: http.StatusNotFound},
		{path: "/ws/nothing", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.wantCode {
			t.Fatalf("GET %s status = %d, want %d", tt.path, rec.Code, tt.wantCode)
		}
		if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
			t.Fatalf("GET %s body = %q, want %q", tt.path, rec.Body.String(), tt.wantBody)
		}
	}
}

func TestEmbeddedIndex(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SPAHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "AutoPDF") {
		t.Fatalf("embedded index = %d", rec.Code)
	}
}
