// Package llm provides the structured-generate capability: prompt in,
// schema-constrained JSON out, with optional search grounding. Consumers
// (competitor research, the llm collector, translation) depend only on the
// Client interface; the Gemini implementation lives in gemini.go.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request describes one structured generation call.
type Request struct {
	Prompt string
	// ResponseSchema constrains the output shape (OpenAPI-style schema
	// object). Nil requests free-form JSON.
	ResponseSchema map[string]any
	// Grounding enables the provider's search-grounding tool.
	Grounding   bool
	Temperature float64
}

// GroundingMetadata carries search-grounding provenance when the provider
// returns it.
type GroundingMetadata struct {
	SearchQueries []string `json:"search_queries,omitempty"`
	Sources       []string `json:"sources,omitempty"`
}

// Response is the result of one structured generation call. Content is the
// raw JSON payload; callers decode it against their expected shape.
type Response struct {
	Content   json.RawMessage
	Cost      float64
	Grounding *GroundingMetadata
}

// Client is implemented by structured-generation providers.
type Client interface {
	GenerateStructured(ctx context.Context, req Request) (*Response, error)
}

// RateLimitError marks a quota/rate-limit failure so callers can trigger a
// paid fallback without string matching.
type RateLimitError struct {
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("llm: rate limited (status %d): %s", e.StatusCode, e.Message)
}
