package competitor

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"github.com/fhalamzie/topicminer/internal/serp"
)

// parsePrimary decodes the grounded LLM's JSON into a Research, tolerating
// two known shape quirks: an array instead of the expected object (treated as
// the competitors field) and competitors given as bare name strings. A
// payload that matches neither shape degrades to empty fields.
func parsePrimary(content json.RawMessage, maxCompetitors int) *Research {
	research := &Research{}

	var obj struct {
		Competitors        json.RawMessage `json:"competitors"`
		AdditionalKeywords []string        `json:"additional_keywords"`
		MarketTopics       []string        `json:"market_topics"`
	}
	if err := json.Unmarshal(content, &obj); err == nil {
		research.Competitors = parseCompetitorList(obj.Competitors)
		research.AdditionalKeywords = obj.AdditionalKeywords
		research.MarketTopics = obj.MarketTopics
	} else {
		// Known upstream quirk: a bare array is the competitors list.
		research.Competitors = parseCompetitorList(content)
	}

	applyCaps(research, maxCompetitors)
	return research
}

func parseCompetitorList(raw json.RawMessage) []Competitor {
	if len(raw) == 0 {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	var out []Competitor
	for _, item := range items {
		var comp Competitor
		if err := json.Unmarshal(item, &comp); err == nil && comp.Name != "" {
			out = append(out, comp)
			continue
		}
		var name string
		if err := json.Unmarshal(item, &name); err == nil && name != "" {
			out = append(out, Competitor{Name: name})
		}
	}
	return out
}

// parseSearchResults shapes paid search results into the primary's schema:
// title becomes the competitor name, snippet words become its topics, word
// frequency over content yields additional keywords, and title bigrams yield
// market topics.
func parseSearchResults(results []serp.Result, maxCompetitors int) *Research {
	research := &Research{}

	var contents, titles []string
	for _, r := range results {
		if r.Title == "" {
			continue
		}
		research.Competitors = append(research.Competitors, Competitor{
			Name:   r.Title,
			URL:    r.URL,
			Topics: snippetTopics(r.Snippet),
		})
		contents = append(contents, r.Content)
		titles = append(titles, r.Title)
	}

	research.AdditionalKeywords = frequentWords(contents, maxAdditionalKeywords)
	research.MarketTopics = titleBigrams(titles, maxMarketTopics)

	applyCaps(research, maxCompetitors)
	return research
}

func applyCaps(r *Research, maxCompetitors int) {
	if len(r.Competitors) > maxCompetitors {
		r.Competitors = r.Competitors[:maxCompetitors]
	}
	if len(r.AdditionalKeywords) > maxAdditionalKeywords {
		r.AdditionalKeywords = r.AdditionalKeywords[:maxAdditionalKeywords]
	}
	if len(r.MarketTopics) > maxMarketTopics {
		r.MarketTopics = r.MarketTopics[:maxMarketTopics]
	}
}

var fillerWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "that": {},
	"this": {}, "your": {}, "their": {}, "have": {}, "more": {}, "about": {},
	"into": {}, "will": {}, "can": {}, "are": {}, "was": {}, "our": {},
	"you": {}, "all": {}, "der": {}, "die": {}, "das": {}, "und": {},
	"für": {}, "mit": {}, "von": {}, "ist": {},
}

func tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, filler := fillerWords[f]; filler {
			continue
		}
		out = append(out, f)
	}
	return out
}

// snippetTopics extracts the first few meaningful words of a snippet.
func snippetTopics(snippet string) []string {
	words := tokens(snippet)
	if len(words) > 5 {
		words = words[:5]
	}
	return words
}

// frequentWords ranks words across all texts by count, ties broken
// alphabetically.
func frequentWords(texts []string, max int) []string {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, w := range tokens(text) {
			counts[w]++
		}
	}

	type wordCount struct {
		word  string
		count int
	}
	ranked := make([]wordCount, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, wordCount{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	out := make([]string, len(ranked))
	for i, wc := range ranked {
		out[i] = wc.word
	}
	return out
}

// titleBigrams extracts deduplicated adjacent word pairs from result titles
// in encounter order.
func titleBigrams(titles []string, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, title := range titles {
		words := tokens(title)
		for i := 0; i+1 < len(words); i++ {
			bigram := words[i] + " " + words[i+1]
			if _, dup := seen[bigram]; dup {
				continue
			}
			seen[bigram] = struct{}{}
			out = append(out, bigram)
			if max > 0 && len(out) >= max {
				return out
			}
		}
	}
	return out
}
