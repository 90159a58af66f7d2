package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/fhalamzie/topicminer/internal/competitor"
	"github.com/fhalamzie/topicminer/internal/costtrack"
	"github.com/fhalamzie/topicminer/internal/discover"
	"github.com/fhalamzie/topicminer/internal/keywords"
	"github.com/fhalamzie/topicminer/internal/topic"
	"github.com/fhalamzie/topicminer/internal/validator"
)

type fakeExtractor struct {
	extraction *keywords.Extraction
	err        error
}

func (f *fakeExtractor) Extract(context.Context, string) (*keywords.Extraction, error) {
	return f.extraction, f.err
}

type fakeCompetitor struct {
	research *competitor.Research
	err      error
	got      []string
}

func (f *fakeCompetitor) Research(_ context.Context, kws []string, _ discover.Locale) (*competitor.Research, error) {
	f.got = kws
	return f.research, f.err
}

type fakeDiscoverer struct {
	result *discover.Result
	got    []string
}

func (f *fakeDiscoverer) Discover(_ context.Context, kws, _ []string, _ discover.Locale) *discover.Result {
	f.got = kws
	return f.result
}

type fakeResearcher struct {
	failFor string
}

func (f *fakeResearcher) Research(_ context.Context, topicText string) (*Article, error) {
	if topicText == f.failFor {
		return nil, errors.New("research blew up")
	}
	return &Article{Topic: topicText, Title: "About " + topicText, Content: "..."}, nil
}

func discoveryResult(topics ...string) *discover.Result {
	r := &discover.Result{
		BySource: map[string][]string{topic.CollectorKeywords: topics},
		Metadata: make(map[string]topic.Metadata),
		Topics:   topics,
		Total:    len(topics),
	}
	for _, t := range topics {
		r.Metadata[t] = topic.NewMetadata(topic.CollectorKeywords)
	}
	return r
}

func newValidator(t *testing.T) *validator.Validator {
	t.Helper()
	v, err := validator.New(validator.Config{})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	return v
}

func TestRun_EndToEnd(t *testing.T) {
	tracker := costtrack.NewTracker()
	tracker.Track(costtrack.APIGeminiFree, "stage2", false, 0.0, "429")
	tracker.Track(costtrack.APITavily, "stage2", true, 0.02, "")

	comp := &fakeCompetitor{research: &competitor.Research{
		Competitors:        []competitor.Competitor{{Name: "Acme"}},
		AdditionalKeywords: []string{"nebenkosten", "proptech"},
		MarketTopics:       []string{"digital hausverwaltung"},
		UsedFallback:       true,
	}}
	disc := &fakeDiscoverer{result: discoveryResult("proptech trends", "proptech software")}

	p, err := New(Config{
		Extractor:  &fakeExtractor{extraction: &keywords.Extraction{Keywords: []string{"proptech", "hausverwaltung"}, Tags: []string{"innovation"}}},
		Competitor: comp,
		Discoverer: disc,
		Validator:  newValidator(t),
		Researcher: &fakeResearcher{},
		Tracker:    tracker,
	})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	result := p.Run(context.Background(), Request{SiteURL: "https://example.com", Locale: discover.Locale{Vertical: "proptech"}})

	if result.Error != "" {
		t.Fatalf("unexpected error %q", result.Error)
	}
	// Consolidation dedupes "proptech" and appends market topics.
	wantKeywords := []string{"proptech", "hausverwaltung", "nebenkosten", "digital hausverwaltung"}
	if !reflect.DeepEqual(result.Keywords, wantKeywords) {
		t.Errorf("keywords = %v, want %v", result.Keywords, wantKeywords)
	}
	if !reflect.DeepEqual(disc.got, wantKeywords) {
		t.Errorf("discoverer received %v", disc.got)
	}
	if len(result.Competitors) != 1 || !result.Fallback {
		t.Errorf("competitor stage not reflected: %+v", result)
	}
	// Both topics share words with the seed keywords, so both validate.
	if len(result.Validated) != 2 {
		t.Fatalf("validated = %+v", result.Validated)
	}
	if len(result.Articles) != 2 {
		t.Errorf("articles = %+v", result.Articles)
	}
	if result.TotalCost != 0.02 {
		t.Errorf("total cost = %f", result.TotalCost)
	}
	if result.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

func TestRun_ExtractionFailureEndsRun(t *testing.T) {
	disc := &fakeDiscoverer{result: discoveryResult()}
	p, _ := New(Config{
		Extractor:  &fakeExtractor{err: errors.New("site unreachable")},
		Discoverer: disc,
		Validator:  newValidator(t),
	})

	result := p.Run(context.Background(), Request{SiteURL: "https://down.example"})

	if result.Error == "" {
		t.Fatal("expected error in result")
	}
	if disc.got != nil {
		t.Error("discovery must not run after extraction failure")
	}
	if result.Validated != nil || result.Articles != nil {
		t.Errorf("expected empty downstream fields, got %+v", result)
	}
}

func TestRun_CompetitorDegradationIsNotFatal(t *testing.T) {
	comp := &fakeCompetitor{research: &competitor.Research{Error: "competitor: fallback search failed"}}
	p, _ := New(Config{
		Extractor:  &fakeExtractor{extraction: &keywords.Extraction{Keywords: []string{"proptech"}}},
		Competitor: comp,
		Discoverer: &fakeDiscoverer{result: discoveryResult("proptech news")},
		Validator:  newValidator(t),
	})

	result := p.Run(context.Background(), Request{SiteURL: "https://example.com"})

	if result.Error != "" {
		t.Errorf("degraded competitor stage must not fail the run: %q", result.Error)
	}
	if result.Discovery == nil || result.Discovery.Total != 1 {
		t.Error("discovery should still run")
	}
}

func TestRun_ResearchFailureIsolated(t *testing.T) {
	p, _ := New(Config{
		Extractor:  &fakeExtractor{extraction: &keywords.Extraction{Keywords: []string{"proptech"}}},
		Discoverer: &fakeDiscoverer{result: discoveryResult("proptech trends", "proptech software")},
		Validator:  newValidator(t),
		Researcher: &fakeResearcher{failFor: "proptech trends"},
	})

	result := p.Run(context.Background(), Request{SiteURL: "https://example.com"})

	if len(result.Articles) != 1 {
		t.Fatalf("articles = %+v", result.Articles)
	}
	if result.Articles[0].Topic != "proptech software" {
		t.Errorf("unexpected article %+v", result.Articles[0])
	}
	if result.Error != "" {
		t.Errorf("per-topic failure must not set the run error, got %q", result.Error)
	}
}

func TestNew_MissingStages(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing extractor")
	}
	if _, err := New(Config{Extractor: &fakeExtractor{}}); err == nil {
		t.Error("expected error for missing discoverer")
	}
}

func TestSummarize(t *testing.T) {
	req := Request{Locale: discover.Locale{Domain: "example.com", Vertical: "proptech", Market: "DE"}}
	result := &Result{
		Keywords:  []string{"a", "b"},
		Tags:      []string{"t"},
		Discovery: discoveryResult("x", "y", "z"),
		Validated: []topic.Scored{{Topic: "x"}},
		Articles:  []Article{{Topic: "x"}},
		TotalCost: 0.02,
		Fallback:  true,
	}

	s := Summarize(req, result)
	if s.Domain != "example.com" || s.DiscoveredTopics != 3 || s.ValidatedTopics != 1 || s.ResearchedTopics != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.TopicsBySource[topic.CollectorKeywords] != 3 {
		t.Errorf("topics by source = %v", s.TopicsBySource)
	}
	if !s.FallbackUsed || s.TotalCost != 0.02 {
		t.Errorf("cost fields = %+v", s)
	}
}
