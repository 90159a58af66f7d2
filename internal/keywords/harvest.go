package keywords

import (
	"bytes"
	"sort"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Weights for where a term appears. Titles and headings say more about what a
// site is about than body prose does.
const (
	weightTitle   = 5
	weightMeta    = 4
	weightHeading = 3
	weightBody    = 1
)

var stopwords = map[string]struct{}{
	// English
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "this": {}, "that": {},
	"with": {}, "from": {}, "your": {}, "more": {}, "will": {}, "about": {},
	"what": {}, "which": {}, "when": {}, "their": {}, "there": {}, "other": {},
	"into": {}, "them": {}, "then": {}, "than": {}, "also": {}, "here": {},
	"how": {}, "why": {}, "get": {}, "its": {}, "new": {},
	// German, common on DACH-market customer sites
	"der": {}, "die": {}, "das": {}, "und": {}, "oder": {}, "mit": {},
	"von": {}, "für": {}, "auf": {}, "ist": {}, "sind": {}, "ein": {},
	"eine": {}, "einen": {}, "dem": {}, "den": {}, "des": {}, "sie": {},
	"wir": {}, "ihre": {}, "bei": {}, "als": {}, "auch": {}, "werden": {},
	"wird": {}, "nicht": {}, "über": {}, "nach": {}, "zum": {}, "zur": {},
	"sich": {}, "mehr": {}, "alle": {}, "kann": {}, "durch": {}, "unsere": {},
}

// harvest holds what one page contributed.
type harvest struct {
	terms map[string]int
	tags  []string
}

// harvestPage extracts weighted terms and explicit tags from one HTML page.
func harvestPage(body []byte) harvest {
	h := harvest{terms: make(map[string]int)}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return h
	}

	countTerms(h.terms, doc.Find("title").Text(), weightTitle)
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		countTerms(h.terms, desc, weightMeta)
	}
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		countTerms(h.terms, s.Text(), weightHeading)
	})
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		countTerms(h.terms, s.Text(), weightBody)
	})

	// Explicit tags: meta keywords, OpenGraph article tags, rel=tag links.
	if kw, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		for _, t := range strings.Split(kw, ",") {
			if t = normalizeTag(t); t != "" {
				h.tags = append(h.tags, t)
			}
		}
	}
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			if t := normalizeTag(content); t != "" {
				h.tags = append(h.tags, t)
			}
		}
	})
	doc.Find(`a[rel="tag"]`).Each(func(_ int, s *goquery.Selection) {
		if t := normalizeTag(s.Text()); t != "" {
			h.tags = append(h.tags, t)
		}
	})

	return h
}

func countTerms(counts map[string]int, text string, weight int) {
	for _, tok := range tokenize(text) {
		counts[tok] += weight
	}
}

// tokenize lower-cases and splits on non-letter/digit runes, dropping
// stopwords and terms shorter than 3 runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// rankTerms returns the top-n terms by weighted count, ties broken
// alphabetically for stable output.
func rankTerms(counts map[string]int, n int) []string {
	type termCount struct {
		term  string
		count int
	}
	ranked := make([]termCount, 0, len(counts))
	for t, c := range counts {
		ranked = append(ranked, termCount{t, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].term < ranked[j].term
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, tc := range ranked {
		out[i] = tc.term
	}
	return out
}
