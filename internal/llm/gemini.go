package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fhalamzie/topicminer/pkg/httpclient"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash"
)

// ensure Gemini implements Client
var _ Client = (*Gemini)(nil)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Gemini implements Client against the Gemini generateContent API. Free-tier
// calls carry zero cost; quota exhaustion surfaces as *RateLimitError.
type Gemini struct {
	apiKey  string
	baseURL string
	model   string
	client  *httpclient.Client
}

// NewGemini creates a Gemini client.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: gemini API key is missing")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	return &Gemini{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  client,
	}, nil
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64        `json:"temperature"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiTool struct {
	GoogleSearch map[string]any `json:"google_search,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools            []geminiTool            `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			WebSearchQueries []string `json:"webSearchQueries"`
			GroundingChunks  []struct {
				Web struct {
					URI string `json:"uri"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateStructured posts one generateContent request and returns the raw
// JSON payload of the first candidate.
func (g *Gemini) GenerateStructured(ctx context.Context, req Request) (*Response, error) {
	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature: req.Temperature,
		},
	}

	// Grounding and schema-constrained output are mutually exclusive on the
	// API; grounded calls get the schema described in the prompt instead.
	if req.Grounding {
		body.Tools = []geminiTool{{GoogleSearch: map[string]any{}}}
	} else {
		body.GenerationConfig.ResponseMimeType = "application/json"
		body.GenerationConfig.ResponseSchema = req.ResponseSchema
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)

	var resp geminiResponse
	if err := g.client.PostJSON(ctx, url, nil, body, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && isQuotaStatus(statusErr) {
			return nil, &RateLimitError{StatusCode: statusErr.StatusCode, Message: statusErr.Body}
		}
		return nil, fmt.Errorf("llm: gemini request: %w", err)
	}

	if resp.Error != nil {
		if resp.Error.Code == http.StatusTooManyRequests || resp.Error.Status == "RESOURCE_EXHAUSTED" {
			return nil, &RateLimitError{StatusCode: resp.Error.Code, Message: resp.Error.Message}
		}
		return nil, fmt.Errorf("llm: gemini error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("llm: gemini returned no candidates")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	text = stripCodeFence(text)

	out := &Response{
		Content: []byte(text),
		Cost:    0.0, // free tier
	}

	if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
		meta := &GroundingMetadata{SearchQueries: gm.WebSearchQueries}
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web.URI != "" {
				meta.Sources = append(meta.Sources, chunk.Web.URI)
			}
		}
		out.Grounding = meta
	}

	return out, nil
}

func isQuotaStatus(err *httpclient.StatusError) bool {
	if err.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(err.Body, "RESOURCE_EXHAUSTED")
}

// stripCodeFence removes a markdown ```json fence when the model wraps its
// output in one, which grounded calls without a response schema tend to do.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
