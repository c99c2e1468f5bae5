package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	return string(body)
}

func TestMiddlewareLabelsRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Middleware)
	router.HandleFunc("/api/jobs/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	for _, id := range []string{"q-1", "q-2", "q-3"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/result", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request for %s: status %d", id, rec.Code)
		}
	}

	body := scrape(t)
	if !strings.Contains(body, `path="/api/jobs/{id}/result"`) {
		t.Fatalf("request counter missing route-template path label")
	}
	if strings.Contains(body, `path="/api/jobs/q-1/result"`) {
		t.Fatalf("request counter labeled with a raw job ID path")
	}
}
