package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/fhalamzie/topicminer/pkg/httpclient"
)

const suggestEndpoint = "https://suggestqueries.google.com/complete/search"

// questionPrefixes drive the question-style expansions the autocomplete
// collector asks for.
var questionPrefixes = []string{"what", "how", "why"}

// ensure GoogleSuggest implements both capabilities
var (
	_ Suggester   = (*GoogleSuggest)(nil)
	_ TrendSource = (*GoogleSuggest)(nil)
)

// GoogleSuggest backs the autocomplete and trends collectors with the public
// Google suggestion endpoint. Related queries are open-ended completions of
// the keyword followed by a space.
type GoogleSuggest struct {
	client   *httpclient.Client
	endpoint string
}

// NewGoogleSuggest creates a suggestion client.
func NewGoogleSuggest(timeout time.Duration) *GoogleSuggest {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, _ := httpclient.New(httpclient.Config{Timeout: timeout, MaxRedirects: 3})
	return &GoogleSuggest{client: client, endpoint: suggestEndpoint}
}

// Questions returns question-style expansions of the seed keyword, one
// suggestion list per question prefix, positions 1-based within each list.
func (g *GoogleSuggest) Questions(ctx context.Context, seed, language string) ([]Suggestion, error) {
	var out []Suggestion
	var lastErr error
	for _, prefix := range questionPrefixes {
		query := prefix + " " + seed
		completions, err := g.complete(ctx, query, language)
		if err != nil {
			lastErr = err
			continue
		}
		for i, c := range completions {
			out = append(out, Suggestion{Text: c, Query: query, Position: i + 1})
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// RelatedQueries returns completions of the keyword as a related-search proxy.
func (g *GoogleSuggest) RelatedQueries(ctx context.Context, keyword string) ([]string, error) {
	completions, err := g.complete(ctx, keyword+" ", "")
	if err != nil {
		return nil, err
	}
	// The bare keyword itself is not a related query.
	var out []string
	for _, c := range completions {
		if c != keyword {
			out = append(out, c)
		}
	}
	return out, nil
}

// complete calls the suggestion endpoint. The response is a two-element JSON
// array: the echoed query and the list of completions.
func (g *GoogleSuggest) complete(ctx context.Context, query, language string) ([]string, error) {
	params := url.Values{}
	params.Set("client", "firefox")
	params.Set("q", query)
	if language != "" {
		params.Set("hl", language)
	}

	var payload []json.RawMessage
	if err := g.client.GetJSON(ctx, g.endpoint+"?"+params.Encode(), nil, &payload); err != nil {
		return nil, fmt.Errorf("discover: suggest query %q: %w", query, err)
	}
	if len(payload) < 2 {
		return nil, fmt.Errorf("discover: suggest query %q: unexpected response shape", query)
	}

	var completions []string
	if err := json.Unmarshal(payload[1], &completions); err != nil {
		return nil, fmt.Errorf("discover: suggest query %q: %w", query, err)
	}
	return completions, nil
}
