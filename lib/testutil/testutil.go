package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"comebackwatch/lib/telemetry"

	_ "modernc.org/sqlite"
)

// SetupSQLite opens an in-memory sqlite database with schema applied, the
// database and test telemetry are torn down with the test.
func SetupSQLite(t testing.TB, name, schema string) *sql.DB {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", name))
	t.Cleanup(cleanup)

	sqlite, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// every connection to :memory: is its own database
	sqlite.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlite.Close() })

	if schema != "" {
		_, err = sqlite.Exec(schema)
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			t.Fatal(err)
		}
	}
	return sqlite
}

// NoSleep is a sleep function that returns immediately.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type Page struct {
	Status int
	Header map[string]string
	Body   string
}

// Site is a fake website serving canned pages, every "{{base}}" in a body
// is replaced by the server url. Unknown paths are 404.
type Site struct {
	*httptest.Server

	mutex sync.Mutex
	pages map[string]Page
	hits  map[string]int
}

func NewSite(t testing.TB) *Site {
	s := &Site{
		pages: map[string]Page{},
		hits:  map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	s.hits[r.URL.Path]++
	page, ok := s.pages[r.URL.Path]
	s.mutex.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	for k, v := range page.Header {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	status := page.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	fmt.Fprint(w, strings.ReplaceAll(page.Body, "{{base}}", s.Server.URL))
}

func (s *Site) Set(path string, page Page) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pages[path] = page
}

func (s *Site) HTML(path, body string) {
	s.Set(path, Page{Body: body})
}

func (s *Site) URL(path string) string {
	return s.Server.URL + path
}

func (s *Site) Hits(path string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.hits[path]
}
