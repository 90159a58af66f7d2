// Package validator assigns each candidate topic a single relevance score in
// [0,1] combining five independent signals, then filters and ranks a batch of
// candidates. Scoring is a pure function of its inputs so results are
// deterministic and testable.
package validator

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fhalamzie/topicminer/internal/topic"
)

// Metric names. Weights are keyed by these.
const (
	MetricRelevance = "relevance"
	MetricDiversity = "diversity"
	MetricFreshness = "freshness"
	MetricVolume    = "volume"
	MetricNovelty   = "novelty"
)

// weightTolerance is the allowed deviation of the weight sum from 1.0.
const weightTolerance = 0.001

// metricOrder fixes the summation order of the weighted metrics. Float
// addition is not associative, so iterating a map here would make the total
// depend on Go's randomized map order.
var metricOrder = []string{MetricRelevance, MetricDiversity, MetricFreshness, MetricVolume, MetricNovelty}

// Config parameterizes a Validator.
type Config struct {
	// Weights maps the five metric names to their share of the total score.
	// Nil selects DefaultWeights. Must sum to 1.0 within ±0.001.
	Weights map[string]float64
	// HalfLifeDays is the freshness half-life. 0 selects the default of 7.
	HalfLifeDays float64
}

// DefaultWeights returns the reference weight distribution.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		MetricRelevance: 0.30,
		MetricDiversity: 0.25,
		MetricFreshness: 0.20,
		MetricVolume:    0.15,
		MetricNovelty:   0.10,
	}
}

// Validator scores candidate topics. Safe for concurrent use; it holds no
// mutable state.
type Validator struct {
	weights  map[string]float64
	halfLife float64 // days
}

// New creates a Validator. It fails when the configured weights do not cover
// exactly the five known metrics or do not sum to 1.0 within tolerance;
// invalid weights are never silently clamped.
func New(cfg Config) (*Validator, error) {
	weights := cfg.Weights
	if weights == nil {
		weights = DefaultWeights()
	}

	if len(weights) != len(metricOrder) {
		return nil, fmt.Errorf("validator: expected weights for %d metrics, got %d", len(metricOrder), len(weights))
	}
	sum := 0.0
	for _, name := range metricOrder {
		w, ok := weights[name]
		if !ok {
			return nil, fmt.Errorf("validator: missing weight for metric %q", name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return nil, fmt.Errorf("validator: weights sum to %.4f, want 1.0 (±%.3f)", sum, weightTolerance)
	}

	halfLife := cfg.HalfLifeDays
	if halfLife <= 0 {
		halfLife = 7
	}

	// Copy to shield against caller mutation.
	copied := make(map[string]float64, len(weights))
	for k, v := range weights {
		copied[k] = v
	}

	return &Validator{weights: copied, halfLife: halfLife}, nil
}

// Relevance is the Jaccard similarity between the word set of the topic text
// and the word set of all seed keywords concatenated, both lower-cased.
// Bag-of-words overlap only; paraphrases score zero by design limitation.
func (v *Validator) Relevance(topicText string, keywords []string) float64 {
	topicWords := wordSet(topicText)
	keywordWords := wordSet(strings.Join(keywords, " "))
	if len(keywordWords) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range topicWords {
		if _, ok := keywordWords[w]; ok {
			intersection++
		}
	}
	union := len(topicWords) + len(keywordWords) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// Diversity is the number of distinct collector names in sources divided by
// the size of the signal-collector universe, capped at 1.0. Duplicate entries
// collapse: diversity reflects breadth of corroboration, not call count.
func (v *Validator) Diversity(sources []string) float64 {
	if len(sources) == 0 {
		return 0.0
	}
	distinct := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		distinct[s] = struct{}{}
	}
	score := float64(len(distinct)) / float64(len(topic.SignalCollectors))
	return math.Min(score, 1.0)
}

// Freshness decays exponentially with age: 0.5^(age/halfLife), capped at 1.0.
// A zero timestamp means "discovered now" and scores 1.0.
func (v *Validator) Freshness(ts time.Time) float64 {
	if ts.IsZero() {
		return 1.0
	}
	ageDays := time.Since(ts).Hours() / 24
	if ageDays <= 0 {
		return 1.0
	}
	return math.Min(math.Pow(0.5, ageDays/v.halfLife), 1.0)
}

// Volume proxies search interest. Only autocomplete topics carry a real
// signal: their suggestion rank (70%) and originating query length (30%).
// Everything else, including autocomplete entries missing a rank, gets a
// fixed neutral 0.5.
func (v *Validator) Volume(meta topic.Metadata) float64 {
	if meta.Source != topic.CollectorAutocomplete || meta.AutocompletePosition == nil {
		return 0.5
	}
	position := *meta.AutocompletePosition
	posScore := 1.0 - float64(position-1)/10.0
	posScore = math.Max(0.0, math.Min(posScore, 1.0))
	lenScore := math.Min(float64(meta.AutocompleteQueryLength)/50.0, 1.0)
	return 0.7*posScore + 0.3*lenScore
}

// Novelty is 1.0 minus the best MinHash-estimated similarity to any
// previously seen topic; 1.0 when there is nothing to compare against.
// Approximate by design: near-duplicate detection at scale is the goal,
// exact duplicate detection is a side effect.
func (v *Validator) Novelty(topicText string, existing []string) float64 {
	if len(existing) == 0 {
		return 1.0
	}
	sig := NewSignature(topicText)
	maxSim := 0.0
	for _, prev := range existing {
		if sim := sig.Jaccard(NewSignature(prev)); sim > maxSim {
			maxSim = sim
		}
	}
	return 1.0 - maxSim
}

// ScoreTopic computes all five metrics for one candidate and combines them by
// the configured weights into a single [0,1] score.
func (v *Validator) ScoreTopic(topicText string, keywords []string, meta topic.Metadata, existing []string) topic.Scored {
	metrics := map[string]float64{
		MetricRelevance: v.Relevance(topicText, keywords),
		MetricDiversity: v.Diversity(meta.Sources),
		MetricFreshness: v.Freshness(meta.Timestamp),
		MetricVolume:    v.Volume(meta),
		MetricNovelty:   v.Novelty(topicText, existing),
	}

	total := 0.0
	for _, name := range metricOrder {
		total += v.weights[name] * metrics[name]
	}

	return topic.Scored{
		Topic:        topicText,
		TotalScore:   total,
		MetricScores: metrics,
		Metadata:     meta,
	}
}

// Entry pairs a topic string with its aggregated metadata for batch filtering.
type Entry struct {
	Topic string
	Meta  topic.Metadata
}

// FilterTopics scores every entry against the same existing-topics context,
// keeps those at or above threshold, sorts descending by (score, distinct
// source count, topic text ascending), and truncates to topN when topN > 0.
func (v *Validator) FilterTopics(entries []Entry, keywords []string, existing []string, threshold float64, topN int) []topic.Scored {
	kept := make([]topic.Scored, 0, len(entries))
	for _, e := range entries {
		scored := v.ScoreTopic(e.Topic, keywords, e.Meta, existing)
		if scored.TotalScore >= threshold {
			kept = append(kept, scored)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].TotalScore != kept[j].TotalScore {
			return kept[i].TotalScore > kept[j].TotalScore
		}
		di, dj := kept[i].Metadata.DistinctSources(), kept[j].Metadata.DistinctSources()
		if di != dj {
			return di > dj
		}
		return kept[i].Topic < kept[j].Topic
	})

	if topN > 0 && len(kept) > topN {
		kept = kept[:topN]
	}
	return kept
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
