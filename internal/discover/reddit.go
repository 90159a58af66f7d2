package discover

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fhalamzie/topicminer/pkg/httpclient"
)

const redditEndpoint = "https://www.reddit.com"

// ensure Reddit implements RedditSource
var _ RedditSource = (*Reddit)(nil)

// Reddit samples top post titles from a subreddit via the public JSON API.
type Reddit struct {
	client    *httpclient.Client
	endpoint  string
	userAgent string
}

// NewReddit creates a Reddit client. Reddit rejects default Go user agents,
// so a descriptive one is always sent.
func NewReddit(timeout time.Duration) *Reddit {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, _ := httpclient.New(httpclient.Config{Timeout: timeout, MaxRedirects: 3})
	return &Reddit{
		client:    client,
		endpoint:  redditEndpoint,
		userAgent: "topicminer/1.0 (topic research)",
	}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title string `json:"title"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// TopPosts returns the titles of the subreddit's top posts of the week.
func (r *Reddit) TopPosts(ctx context.Context, subreddit string, limit int) ([]string, error) {
	subreddit = strings.TrimPrefix(strings.TrimSpace(subreddit), "r/")
	if subreddit == "" {
		return nil, fmt.Errorf("discover: empty subreddit name")
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("t", "week")
	endpoint := fmt.Sprintf("%s/r/%s/top.json?%s", r.endpoint, url.PathEscape(subreddit), params.Encode())

	var listing redditListing
	headers := map[string]string{"User-Agent": r.userAgent}
	if err := r.client.GetJSON(ctx, endpoint, headers, &listing); err != nil {
		return nil, fmt.Errorf("discover: reddit r/%s: %w", subreddit, err)
	}

	var titles []string
	for _, child := range listing.Data.Children {
		if t := strings.TrimSpace(child.Data.Title); t != "" {
			titles = append(titles, t)
		}
	}
	return titles, nil
}
