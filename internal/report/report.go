// Package report renders a pipeline run as JSON or human-readable text, and
// exports the cost ledger as CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/template"
	"time"

	"github.com/fhalamzie/topicminer/internal/costtrack"
)

// Summary contains aggregated metrics about one pipeline run.
type Summary struct {
	Domain           string         `json:"domain"`
	Vertical         string         `json:"vertical"`
	Market           string         `json:"market"`
	Keywords         int            `json:"keywords"`
	Tags             int            `json:"tags"`
	Competitors      int            `json:"competitors"`
	DiscoveredTopics int            `json:"discovered_topics"`
	TopicsBySource   map[string]int `json:"topics_by_source"`
	ValidatedTopics  int            `json:"validated_topics"`
	ResearchedTopics int            `json:"researched_topics"`
	TotalCost        float64        `json:"total_cost_usd"`
	FallbackUsed     bool           `json:"fallback_used"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	Duration         time.Duration  `json:"duration"`
	Error            string         `json:"error,omitempty"`
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Topicminer Run Summary
----------------------
Site:          {{.Domain}} ({{.Vertical}}, {{.Market}})
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Keywords:      {{.Keywords}} ({{.Tags}} tags)
Competitors:   {{.Competitors}}
Topics:        {{.DiscoveredTopics}} discovered, {{.ValidatedTopics}} validated, {{.ResearchedTopics}} researched
Total Cost:    ${{printf "%.4f" .TotalCost}}
Fallback Used: {{.FallbackUsed}}
{{- if .Error}}
Error:         {{.Error}}
{{- end}}

Topics By Source:
{{- range $src, $count := .TopicsBySource}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// ledgerHeaders defines the CSV column order for the cost-ledger export.
var ledgerHeaders = []string{
	"id",
	"api_type",
	"stage",
	"success",
	"cost_usd",
	"timestamp",
	"error",
}

// WriteCostCSV exports the cost ledger in append order.
func WriteCostCSV(w io.Writer, calls []costtrack.Call) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(ledgerHeaders); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	for _, c := range calls {
		record := []string{
			c.ID,
			string(c.Type),
			c.Stage,
			strconv.FormatBool(c.Success),
			strconv.FormatFloat(c.Cost, 'f', 4, 64),
			c.Timestamp.Format(time.RFC3339),
			c.Error,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
