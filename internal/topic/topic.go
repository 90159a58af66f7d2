package topic

import "time"

// Collector names. Every candidate topic is tagged with the collector that
// produced it; the validator's diversity metric counts how many of the five
// signal-bearing collectors (autocomplete, trends, reddit, rss, news)
// independently corroborated a topic.
const (
	CollectorKeywords     = "keywords"
	CollectorTags         = "tags"
	CollectorCompound     = "compound"
	CollectorAutocomplete = "autocomplete"
	CollectorTrends       = "trends"
	CollectorLLM          = "llm"
	CollectorReddit       = "reddit"
	CollectorNews         = "news"
	CollectorRSS          = "rss"
)

// SignalCollectors is the fixed universe of collector types that carry a real
// popularity/corroboration signal. Its size is the diversity denominator.
var SignalCollectors = []string{
	CollectorAutocomplete,
	CollectorTrends,
	CollectorReddit,
	CollectorRSS,
	CollectorNews,
}

// Candidate is one raw topic string as produced by a single collector call.
// Multiple collectors may independently produce the identical string; that is
// expected and feeds the diversity metric.
type Candidate struct {
	Text      string
	Collector string
}

// Metadata carries the per-topic signals the validator scores against.
type Metadata struct {
	// Source is the first collector that found the topic.
	Source string
	// Sources lists every collector that found the topic. It may contain
	// duplicates from repeated calls; diversity scoring deduplicates it.
	// Never empty once attached to an aggregated topic.
	Sources []string
	// Timestamp is the discovery time. Zero means "now" (topics are produced
	// synchronously during a single run, there is no persisted history).
	Timestamp time.Time
	// AutocompletePosition is the 1-based rank within the suggestion list.
	// Only set when Source is "autocomplete".
	AutocompletePosition *int
	// AutocompleteQueryLength is the character length of the query that
	// produced the suggestion. Only set when Source is "autocomplete".
	AutocompleteQueryLength int
}

// NewMetadata builds metadata for a topic found by a single collector.
func NewMetadata(source string) Metadata {
	return Metadata{
		Source:    source,
		Sources:   []string{source},
		Timestamp: time.Now().UTC(),
	}
}

// Scored is the immutable result of scoring one candidate topic.
type Scored struct {
	Topic        string             `json:"topic"`
	TotalScore   float64            `json:"total_score"`
	MetricScores map[string]float64 `json:"metric_scores"`
	Metadata     Metadata           `json:"-"`
}

// DistinctSources returns the number of distinct collector names in Sources.
func (m Metadata) DistinctSources() int {
	seen := make(map[string]struct{}, len(m.Sources))
	for _, s := range m.Sources {
		seen[s] = struct{}{}
	}
	return len(seen)
}
