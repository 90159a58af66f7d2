package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/fhalamzie/topicminer/internal/costtrack"
	"github.com/fhalamzie/topicminer/internal/feedstore"
	"github.com/fhalamzie/topicminer/internal/llm"
	"github.com/fhalamzie/topicminer/internal/translate"
)

const discoveryStage = "discovery"

// collectAutocomplete asks the suggestion capability for question-style
// expansions of the top seed keywords. Per-keyword failures are swallowed and
// logged; the collector fails only when no capability is wired.
func (d *Discoverer) collectAutocomplete(ctx context.Context, seedKeywords []string, loc Locale) ([]rawTopic, error) {
	if d.cfg.Suggest == nil {
		return nil, fmt.Errorf("discover: no suggestion capability configured")
	}

	var out []rawTopic
	for i, kw := range window(seedKeywords, autocompleteSeeds) {
		if i > 0 {
			if err := d.pause(ctx); err != nil {
				return out, err
			}
		}

		suggestions, err := d.cfg.Suggest.Questions(ctx, kw, loc.Language)
		if err != nil {
			d.logger.Warn("autocomplete lookup failed", "keyword", kw, "error", err)
			continue
		}
		for _, s := range suggestions {
			pos := s.Position
			out = append(out, rawTopic{
				text:     s.Text,
				position: &pos,
				queryLen: len(s.Query),
			})
		}
	}
	return out, nil
}

// collectTrends asks the trends capability for related queries.
func (d *Discoverer) collectTrends(ctx context.Context, seedKeywords []string) ([]rawTopic, error) {
	if d.cfg.Trends == nil {
		return nil, fmt.Errorf("discover: no trends capability configured")
	}

	var out []rawTopic
	for i, kw := range window(seedKeywords, trendSeeds) {
		if i > 0 {
			if err := d.pause(ctx); err != nil {
				return out, err
			}
		}

		related, err := d.cfg.Trends.RelatedQueries(ctx, kw)
		if err != nil {
			d.logger.Warn("trends lookup failed", "keyword", kw, "error", err)
			continue
		}
		out = append(out, plain(related)...)
	}
	return out, nil
}

// expansion is the structured output of the llm collector: topic angles plus
// suggested subreddits and feed names in one response.
type expansion struct {
	Topics     []string `json:"topics"`
	Subreddits []string `json:"subreddits"`
	Feeds      []string `json:"feeds"`
}

// collectLLM makes a single creative-expansion call. On failure all three
// output lists degrade to empty, which also disables the reddit collector.
func (d *Discoverer) collectLLM(ctx context.Context, seedKeywords []string, loc Locale) (expansion, error) {
	if d.cfg.LLM == nil {
		return expansion{}, fmt.Errorf("discover: no llm capability configured")
	}

	prompt := fmt.Sprintf(
		"You research content topics for a company in the %s vertical targeting the %s market (language: %s). "+
			"Given these seed keywords: %s. "+
			"Suggest creative article topic angles, relevant subreddits (names only, no r/ prefix), "+
			"and names of industry blogs or publications with RSS feeds.",
		loc.Vertical, loc.Market, loc.Language, strings.Join(seedKeywords, ", "),
	)

	resp, err := d.cfg.LLM.GenerateStructured(ctx, llm.Request{
		Prompt: prompt,
		ResponseSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topics":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"subreddits": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"feeds":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"topics", "subreddits", "feeds"},
		},
		Temperature: 0.8,
	})
	if err != nil {
		d.trackCall(costtrack.APIGeminiFree, false, 0.0, err.Error())
		return expansion{}, fmt.Errorf("discover: llm expansion: %w", err)
	}
	d.trackCall(costtrack.APIGeminiFree, true, resp.Cost, "")

	var exp expansion
	if err := json.Unmarshal(resp.Content, &exp); err != nil {
		// Wrong shape degrades to empty fields rather than failing the run.
		d.logger.Warn("llm expansion returned unexpected shape", "error", err)
		return expansion{}, nil
	}
	return exp, nil
}

// collectReddit samples top posts from the LLM-suggested subreddits. It is
// skipped entirely when the llm step produced none.
func (d *Discoverer) collectReddit(ctx context.Context, subreddits []string, loc Locale) ([]rawTopic, error) {
	if len(subreddits) == 0 {
		return nil, nil
	}
	if d.cfg.Reddit == nil {
		return nil, fmt.Errorf("discover: no reddit capability configured")
	}

	var titles []string
	for i, sub := range window(subreddits, maxSubreddits) {
		if i > 0 {
			if err := d.pause(ctx); err != nil {
				break
			}
		}

		posts, err := d.cfg.Reddit.TopPosts(ctx, sub, redditPostsPerSub)
		if err != nil {
			d.logger.Warn("reddit lookup failed", "subreddit", sub, "error", err)
			continue
		}
		titles = append(titles, posts...)
	}

	titles = translate.OrOriginals(ctx, d.cfg.Translator, titles, loc.Language, d.logger)
	return plain(titles), nil
}

// collectNews pulls news-search feeds for the top seed keywords.
func (d *Discoverer) collectNews(ctx context.Context, seedKeywords []string, loc Locale) ([]rawTopic, error) {
	if d.cfg.Puller == nil {
		return nil, fmt.Errorf("discover: no feed puller configured")
	}

	var titles []string
	for i, kw := range window(seedKeywords, newsSeeds) {
		if i > 0 {
			if err := d.pause(ctx); err != nil {
				break
			}
		}

		feedURL := googleNewsSearchURL(kw, loc.Language, loc.Market)
		articles, err := d.cfg.Puller.Pull(ctx, feedURL, d.cfg.MaxArticlesPerFeed)
		if err != nil {
			d.trackCall(costtrack.APINewsFree, false, 0.0, err.Error())
			d.logger.Warn("news lookup failed", "keyword", kw, "error", err)
			continue
		}
		d.trackCall(costtrack.APINewsFree, true, 0.0, "")
		for _, a := range articles {
			titles = append(titles, a.Title)
		}
	}

	titles = translate.OrOriginals(ctx, d.cfg.Translator, titles, loc.Language, d.logger)
	return plain(titles), nil
}

// collectRSS reads dynamic news-search feeds plus curated feeds from the
// store. For non-English targets the collector cap is split between English
// and local-language sources by the configured ratio, and English titles are
// translated (best effort) into the target language.
func (d *Discoverer) collectRSS(ctx context.Context, seedKeywords []string, loc Locale) ([]rawTopic, error) {
	if d.cfg.Puller == nil {
		return nil, fmt.Errorf("discover: no feed puller configured")
	}

	keywords := window(seedKeywords, rssSeeds)

	if isEnglishTarget(loc.Language) {
		urls := d.dynamicFeedURLs(keywords, "en", "US")
		urls = append(urls, d.curatedFeedURLs(ctx, loc)...)
		titles := d.pullTitles(ctx, urls, d.cfg.MaxTopicsPerCollector)
		return plain(titles), nil
	}

	englishCap := int(math.Round(float64(d.cfg.MaxTopicsPerCollector) * d.cfg.EnglishSourceRatio))
	localCap := d.cfg.MaxTopicsPerCollector - englishCap

	englishTitles := d.pullTitles(ctx, d.dynamicFeedURLs(keywords, "en", "US"), englishCap)

	localURLs := d.dynamicFeedURLs(keywords, loc.Language, loc.Market)
	localURLs = append(localURLs, d.curatedFeedURLs(ctx, loc)...)
	localTitles := d.pullTitles(ctx, localURLs, localCap)

	englishTitles = translate.OrOriginals(ctx, d.cfg.Translator, englishTitles, loc.Language, d.logger)
	return plain(append(englishTitles, localTitles...)), nil
}

// dynamicFeedURLs builds news-search feed URLs from two independent
// aggregators for each keyword.
func (d *Discoverer) dynamicFeedURLs(keywords []string, language, market string) []string {
	var urls []string
	for _, kw := range keywords {
		urls = append(urls,
			googleNewsSearchURL(kw, language, market),
			bingNewsSearchURL(kw, market),
		)
	}
	return urls
}

// curatedFeedURLs reads matching feeds from the persistent store.
func (d *Discoverer) curatedFeedURLs(ctx context.Context, loc Locale) []string {
	if d.cfg.FeedStore == nil {
		return nil
	}
	curated, err := d.cfg.FeedStore.GetFeeds(ctx, feedstore.Filter{
		Domain:          loc.Domain,
		Vertical:        loc.Vertical,
		MinQualityScore: d.cfg.FeedQualityThreshold,
		Limit:           d.cfg.MaxFeeds,
	})
	if err != nil {
		d.logger.Warn("curated feed lookup failed", "domain", loc.Domain, "error", err)
		return nil
	}
	var urls []string
	for _, f := range curated {
		urls = append(urls, f.URL)
	}
	return urls
}

// pullTitles reads the given feeds (capped at MaxFeeds) and returns up to
// maxTitles article titles. Per-feed failures are isolated and logged.
func (d *Discoverer) pullTitles(ctx context.Context, urls []string, maxTitles int) []string {
	if len(urls) > d.cfg.MaxFeeds {
		urls = urls[:d.cfg.MaxFeeds]
	}

	var titles []string
	for i, u := range urls {
		if maxTitles > 0 && len(titles) >= maxTitles {
			break
		}
		if i > 0 {
			if err := d.pause(ctx); err != nil {
				break
			}
		}

		articles, err := d.cfg.Puller.Pull(ctx, u, d.cfg.MaxArticlesPerFeed)
		if err != nil {
			d.logger.Warn("feed pull failed", "url", u, "error", err)
			continue
		}
		for _, a := range articles {
			if maxTitles > 0 && len(titles) >= maxTitles {
				break
			}
			titles = append(titles, a.Title)
		}
	}
	return titles
}

func (d *Discoverer) trackCall(apiType costtrack.APIType, success bool, cost float64, errMsg string) {
	if d.cfg.Tracker == nil {
		return
	}
	d.cfg.Tracker.Track(apiType, discoveryStage, success, cost, errMsg)
}

func isEnglishTarget(language string) bool {
	lang := strings.ToLower(strings.TrimSpace(language))
	return lang == "" || lang == "en" || strings.HasPrefix(lang, "en-")
}

// googleNewsSearchURL builds a Google News RSS search URL for a keyword in
// the given language and market.
func googleNewsSearchURL(keyword, language, market string) string {
	if language == "" {
		language = "en"
	}
	if market == "" {
		market = "US"
	}
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("hl", language)
	q.Set("gl", market)
	q.Set("ceid", fmt.Sprintf("%s:%s", market, language))
	return "https://news.google.com/rss/search?" + q.Encode()
}

// bingNewsSearchURL builds a Bing News RSS search URL for a keyword.
func bingNewsSearchURL(keyword, market string) string {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("format", "rss")
	if market != "" {
		q.Set("cc", market)
	}
	return "https://www.bing.com/news/search?" + q.Encode()
}
