package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv := Start(8889)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)

	defer srv.Stop(context.Background())

	RecordCall("tavily", "stage2", true, 0.02)
	RecordCollector("autocomplete", 5, false)
	RecordCollector("trends", 0, true)

	resp, err := http.Get("http://localhost:8889/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	output := string(body)

	if !strings.Contains(output, "topicminer_api_calls_total") {
		t.Errorf("expected topicminer_api_calls_total metric")
	}

	if !strings.Contains(output, `topicminer_api_cost_usd_total{api="tavily",stage="stage2"}`) {
		t.Errorf("expected topicminer_api_cost_usd_total metric for tavily/stage2")
	}

	if !strings.Contains(output, `topicminer_collector_topics_total{collector="autocomplete"}`) {
		t.Errorf("expected topicminer_collector_topics_total metric for autocomplete")
	}

	if !strings.Contains(output, `topicminer_collector_failures_total{collector="trends"}`) {
		t.Errorf("expected topicminer_collector_failures_total metric for trends")
	}
}
