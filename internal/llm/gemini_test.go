package llm

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

func newTestGemini(t *testing.T, url string) *Gemini {
	t.Helper()
	g, err := NewGemini(GeminiConfig{APIKey: "test-key", BaseURL: url, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func TestGemini_GenerateStructured(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "list proptech topics" {
			t.Errorf("unexpected prompt payload: %+v", req.Contents)
		}
		if req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("ungrounded call should request JSON mime type")
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"{\"topics\":[\"smart buildings\"]}"}]}}]}`)
	}))
	defer ts.Close()

	g := newTestGemini(t, ts.URL)
	resp, err := g.GenerateStructured(context.Background(), Request{
		Prompt:         "list proptech topics",
		ResponseSchema: map[string]any{"type": "object"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload struct {
		Topics []string `json:"topics"`
	}
	if err := json.Unmarshal(resp.Content, &payload); err != nil {
		t.Fatalf("content is not valid JSON: %v", err)
	}
	if len(payload.Topics) != 1 || payload.Topics[0] != "smart buildings" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if resp.Cost != 0.0 {
		t.Errorf("free-tier call should cost 0.0, got %f", resp.Cost)
	}
}

func TestGemini_GroundedCall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Tools) != 1 {
			t.Errorf("grounded call should include the google_search tool")
		}
		if req.GenerationConfig.ResponseSchema != nil {
			t.Errorf("grounded call must not set a response schema")
		}
		fmt.Fprint(w, `{"candidates":[{
			"content":{"parts":[{"text":"`+"```json\\n{\\\"competitors\\\":[]}\\n```"+`"}]},
			"groundingMetadata":{
				"webSearchQueries":["proptech companies germany"],
				"groundingChunks":[{"web":{"uri":"https://example.com/source"}}]
			}
		}]}`)
	}))
	defer ts.Close()

	g := newTestGemini(t, ts.URL)
	resp, err := g.GenerateStructured(context.Background(), Request{Prompt: "p", Grounding: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Fenced output must be unwrapped into parseable JSON.
	var payload map[string]any
	if err := json.Unmarshal(resp.Content, &payload); err != nil {
		t.Fatalf("fenced content not unwrapped: %v (content %q)", err, resp.Content)
	}
	if resp.Grounding == nil {
		t.Fatal("expected grounding metadata")
	}
	if len(resp.Grounding.SearchQueries) != 1 || len(resp.Grounding.Sources) != 1 {
		t.Errorf("unexpected grounding metadata: %+v", resp.Grounding)
	}
}

func TestGemini_RateLimit429(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded"}}`)
	}))
	defer ts.Close()

	g := newTestGemini(t, ts.URL)
	_, err := g.GenerateStructured(context.Background(), Request{Prompt: "p"})

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rateErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rateErr.StatusCode)
	}
}

func TestGemini_QuotaInBody(t *testing.T) {
	// Some quota failures come back as HTTP 200 with an error object.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota"}}`)
	}))
	defer ts.Close()

	g := newTestGemini(t, ts.URL)
	_, err := g.GenerateStructured(context.Background(), Request{Prompt: "p"})

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
}

func TestGemini_GenericError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"bad schema"}}`)
	}))
	defer ts.Close()

	g := newTestGemini(t, ts.URL)
	_, err := g.GenerateStructured(context.Background(), Request{Prompt: "p"})
	if err == nil {
		t.Fatal("expected error")
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		t.Error("400 must not classify as rate limit")
	}
}

func TestGemini_MissingKey(t *testing.T) {
	if _, err := NewGemini(GeminiConfig{}); err == nil {
		t.Fatal("expected missing-key error")
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                      "{\"a\":1}",
		"```json\n{\"a\":1}\n```":        "{\"a\":1}",
		"```\n{\"a\":1}\n```":            "{\"a\":1}",
		"  ```json\n{\"a\":1}\n```\n  ":  "{\"a\":1}",
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
