package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestTavily(t *testing.T, url string) *Tavily {
	t.Helper()
	tav, err := NewTavily("test-key", 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tav.endpoint = url
	return tav
}

func TestTavily_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["query"] != "proptech competitors" {
			t.Errorf("unexpected query %v", req["query"])
		}
		if req["search_depth"] != "advanced" {
			t.Errorf("unexpected depth %v", req["search_depth"])
		}
		fmt.Fprint(w, `{"results":[
			{"title":"PropTech News","url":"https://example.com/a","content":"Daily proptech market coverage"},
			{"title":"Smart Buildings Hub","url":"https://example.com/b","content":"Building automation insights"}
		]}`)
	}))
	defer ts.Close()

	tav := newTestTavily(t, ts.URL)
	results, err := tav.Search(context.Background(), "proptech competitors", 5, "advanced")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "PropTech News" || results[0].URL != "https://example.com/a" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[0].Snippet == "" {
		t.Error("expected a snippet derived from content")
	}
}

func TestTavily_MaxResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[
			{"title":"a","url":"u1","content":"c"},
			{"title":"b","url":"u2","content":"c"},
			{"title":"c","url":"u3","content":"c"}
		]}`)
	}))
	defer ts.Close()

	tav := newTestTavily(t, ts.URL)
	results, err := tav.Search(context.Background(), "q", 2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected results capped at 2, got %d", len(results))
	}
}

func TestTavily_RateLimited(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	tav := newTestTavily(t, ts.URL)

	// Bound the test: cancel after the first backoff sleep would complete.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := tav.Search(ctx, "q", 5, "")
	if err == nil {
		t.Fatal("expected an error")
	}
	// Either the context expired during backoff or the retry budget ran out;
	// both are acceptable, but a 429 must never look like success.
	if !errors.Is(err, ErrRateLimited) && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("unexpected error type: %v", err)
	}
	if calls < 1 {
		t.Error("expected at least one request")
	}
}

func TestTavily_MissingKey(t *testing.T) {
	tav, err := NewTavily("", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tav.Search(context.Background(), "q", 5, ""); err == nil {
		t.Fatal("expected missing-key error")
	}
}

func TestTavily_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	tav := newTestTavily(t, ts.URL)
	if _, err := tav.Search(context.Background(), "q", 5, ""); err == nil {
		t.Fatal("expected error for 500 response")
	} else if errors.Is(err, ErrRateLimited) {
		t.Error("500 must not classify as rate limited")
	}
}
