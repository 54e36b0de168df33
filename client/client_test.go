package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	goSession "github.com/moneysab/goSession"
)

func newFlakyServer(t *testing.T, failures int32, hits *atomic.Int32, ids chan<- string) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	handler := func(w http.ResponseWriter, req *http.Request) {
		n := hits.Add(1)
		if ids != nil {
			ids <- req.Header.Get(HeaderRequestID)
		}
		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"count":3}`)
	}
	r.Get("/api/reports", handler)
	r.Post("/api/reports", handler)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: baseURL, RetryInitialInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClientRetriesIdempotentRequests(t *testing.T) {
	var hits atomic.Int32
	ids := make(chan string, 8)
	srv := newFlakyServer(t, 2, &hits, ids)
	c := newTestClient(t, srv.URL)

	var out struct{ Count int }
	ctx := goSession.WithRequestID(context.Background(), "req-42")
	if err := c.Get(ctx, "/api/reports", url.Values{"network": {"visa"}}, &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Count != 3 || hits.Load() != 3 {
		t.Fatalf("expected success on third attempt, got count=%d hits=%d", out.Count, hits.Load())
	}
	close(ids)
	for id := range ids {
		if id != "req-42" {
			t.Fatalf("expected request id from context, got %q", id)
		}
	}
}

func TestClientRetryBudgetExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := newFlakyServer(t, 10, &hits, nil)
	c := newTestClient(t, srv.URL)

	err := c.Get(context.Background(), "/api/reports", nil, nil)
	if goSession.StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", hits.Load())
	}
}

func TestClientDoesNotRetryPost(t *testing.T) {
	var hits atomic.Int32
	srv := newFlakyServer(t, 1, &hits, nil)
	c := newTestClient(t, srv.URL)

	if err := c.Post(context.Background(), "/api/reports", map[string]int{"n": 1}, nil); err == nil {
		t.Fatal("expected 503")
	}
	if hits.Load() != 1 {
		t.Fatalf("POST must not be retried, got %d attempts", hits.Load())
	}

	hits.Store(0)
	if err := c.Post(WithIdempotent(context.Background()), "/api/reports", nil, nil); err != nil {
		t.Fatalf("marked POST should retry: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits.Load())
	}
}

func TestClientGeneratesRequestID(t *testing.T) {
	var hits atomic.Int32
	ids := make(chan string, 1)
	srv := newFlakyServer(t, 0, &hits, ids)
	c := newTestClient(t, srv.URL)

	if err := c.Get(context.Background(), "/api/reports", nil, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if id := <-ids; len(id) != 36 {
		t.Fatalf("expected uuid request id, got %q", id)
	}
}

func TestClientDecodesErrorBody(t *testing.T) {
	r := chi.NewRouter()
	r.Delete("/api/banks/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"bank in use"}`)
	})
	r.Put("/api/banks/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"VALIDATION","message":"name required"}`)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	err := c.Put(context.Background(), "/api/banks/7", map[string]string{}, nil)
	var se *goSession.StatusError
	if !errors.As(err, &se) || se.Code != "VALIDATION" || se.Message != "name required" || se.Path != "/api/banks/7" || se.Method != http.MethodPut {
		t.Fatalf("unexpected error %#v", err)
	}

	err = c.Delete(context.Background(), "/api/banks/7", nil)
	if goSession.StatusCode(err) != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestClientURL(t *testing.T) {
	c, err := New(Options{BaseURL: "backoffice.local:8080/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.URL("/api/user/me", nil); got != "http://backoffice.local:8080/api/user/me" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := c.URL("api/x", url.Values{"email": {"a@b.c"}}); got != "http://backoffice.local:8080/api/x?email=a%40b.c" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := c.URL("https://other/x", nil); got != "https://other/x" {
		t.Fatalf("absolute url changed: %q", got)
	}
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected BaseURL error")
	}
}
