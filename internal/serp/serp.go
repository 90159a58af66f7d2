package serp

import "context"

// Result is a single item returned by a search provider.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Snippet string `json:"snippet"`
}

// Provider abstracts a paid search backend used as the fallback when the free
// grounded-LLM capability is rate-limited. Implementations may use official
// APIs or scraping. maxResults caps the number of results; depth selects the
// provider's search depth mode ("basic" or "advanced").
type Provider interface {
	Search(ctx context.Context, query string, maxResults int, depth string) ([]Result, error)
}
