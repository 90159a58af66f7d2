package serp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fhalamzie/topicminer/pkg/httpclient"
)

// ErrRateLimited is returned when the provider keeps answering 429 after the
// bounded backoff is exhausted.
var ErrRateLimited = errors.New("serp: rate limited")

const tavilyEndpoint = "https://api.tavily.com/search"

// maxRetries bounds the 429 backoff loop; with doubling delays this waits at
// most 1+2+4 = 7 seconds before giving up.
const maxRetries = 3

// ensure Tavily implements Provider
var _ Provider = (*Tavily)(nil)

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey   string
	endpoint string
	client   *httpclient.Client
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey string, timeout time.Duration) (*Tavily, error) {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	client, err := httpclient.New(httpclient.Config{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("serp: %w", err)
	}
	return &Tavily{apiKey: apiKey, endpoint: tavilyEndpoint, client: client}, nil
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search posts a query to Tavily, backing off on 429 up to maxRetries.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int, depth string) ([]Result, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, errors.New("serp: tavily API key is missing")
	}
	if depth == "" {
		depth = "basic"
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	body := map[string]any{
		"query":        query,
		"api_key":      t.apiKey,
		"search_depth": depth,
		"max_results":  maxResults,
	}

	var response tavilyResponse
	delay := 1 * time.Second
	for attempt := 0; ; attempt++ {
		err := t.client.PostJSON(ctx, t.endpoint, nil, body, &response)
		if err == nil {
			break
		}

		var statusErr *httpclient.StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("serp: tavily search: %w", err)
		}
		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: tavily answered 429 %d times", ErrRateLimited, attempt+1)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Snippet: snippet(r.Content),
		})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

// snippet truncates content to a short display excerpt.
func snippet(content string) string {
	const maxLen = 200
	content = strings.TrimSpace(content)
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen]
}
