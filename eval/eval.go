// Package eval measures retrieval quality against a golden dataset of
// queries with known relevant APIs.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sweetpotato0/api-universe/pkg/logging"
	"github.com/sweetpotato0/api-universe/search"
)

// GoldenCase is one evaluation query. ExpectedAPI empty means the case is
// run for latency only and excluded from precision averages.
type GoldenCase struct {
	Query        string `json:"query"`
	ExpectedAPI  string `json:"expected_api,omitempty"`
	ExpectedKind string `json:"expected_type,omitempty"`
}

// CaseResult is the outcome of evaluating one golden case.
type CaseResult struct {
	Query        string   `json:"query"`
	ExpectedAPI  string   `json:"expected_api,omitempty"`
	TopResults   []string `json:"top_results"`
	HitAt3       bool     `json:"hit_at_3"`
	PrecisionAt5 float64  `json:"precision_at_5"`
	PrecisionAt3 float64  `json:"precision_at_3"`
	LatencyMS    int64    `json:"latency_ms"`
}

// Summary aggregates a full evaluation run.
type Summary struct {
	TotalQueries    int          `json:"total_queries"`
	AvgPrecisionAt5 float64      `json:"avg_precision_at_5"`
	AvgPrecisionAt3 float64      `json:"avg_precision_at_3"`
	HitRateAt3      float64      `json:"hit_rate_at_3"`
	AvgLatencyMS    int64        `json:"avg_latency_ms"`
	Results         []CaseResult `json:"results"`
}

// Runner evaluates a searcher against a golden dataset.
type Runner struct {
	searcher search.Searcher
	topK     int
	logger   *slog.Logger
}

// NewRunner creates a Runner. topK <= 0 defaults to 5.
func NewRunner(searcher search.Searcher, topK int) (*Runner, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if topK <= 0 {
		topK = 5
	}
	return &Runner{
		searcher: searcher,
		topK:     topK,
		logger:   logging.WithComponent("eval"),
	}, nil
}

// PrecisionAtK is the fraction of the top k results whose API name contains
// the expected API, case-insensitively. Returns 0 with ok=false when there
// is no expectation to score against.
func PrecisionAtK(results []search.Result, expectedAPI string, k int) (float64, bool) {
	if expectedAPI == "" || k <= 0 {
		return 0, false
	}
	top := results
	if len(top) > k {
		top = top[:k]
	}
	relevant := 0
	want := strings.ToLower(expectedAPI)
	for _, r := range top {
		if strings.Contains(strings.ToLower(r.Metadata.APIName), want) {
			relevant++
		}
	}
	return float64(relevant) / float64(k), true
}

// Run evaluates every case and aggregates precision, hit rate, and latency.
func (r *Runner) Run(ctx context.Context, dataset []GoldenCase) (*Summary, error) {
	if len(dataset) == 0 {
		return nil, fmt.Errorf("golden dataset is empty")
	}

	summary := &Summary{TotalQueries: len(dataset)}
	var totalP5, totalP3 float64
	var totalLatency time.Duration
	scored := 0
	hits := 0

	for _, c := range dataset {
		start := time.Now()
		results, err := r.searcher.Search(ctx, c.Query, r.topK)
		if err != nil {
			return nil, fmt.Errorf("search failed for %q: %w", c.Query, err)
		}
		latency := time.Since(start)
		totalLatency += latency

		p5, ok5 := PrecisionAtK(results, c.ExpectedAPI, 5)
		p3, _ := PrecisionAtK(results, c.ExpectedAPI, 3)

		top3 := results
		if len(top3) > 3 {
			top3 = top3[:3]
		}
		topAPIs := make([]string, 0, len(top3))
		hit := false
		want := strings.ToLower(c.ExpectedAPI)
		for _, res := range top3 {
			topAPIs = append(topAPIs, res.Metadata.APIName)
			if want != "" && strings.Contains(strings.ToLower(res.Metadata.APIName), want) {
				hit = true
			}
		}

		summary.Results = append(summary.Results, CaseResult{
			Query:        c.Query,
			ExpectedAPI:  c.ExpectedAPI,
			TopResults:   topAPIs,
			HitAt3:       hit,
			PrecisionAt5: p5,
			PrecisionAt3: p3,
			LatencyMS:    latency.Milliseconds(),
		})

		if ok5 {
			totalP5 += p5
			totalP3 += p3
			scored++
		}
		if hit {
			hits++
		}

		r.logger.Info("case evaluated",
			"query", c.Query,
			"expected", c.ExpectedAPI,
			"hit_at_3", hit,
			"precision_at_5", p5,
			"latency_ms", latency.Milliseconds(),
		)
	}

	if scored > 0 {
		summary.AvgPrecisionAt5 = totalP5 / float64(scored)
		summary.AvgPrecisionAt3 = totalP3 / float64(scored)
	}
	summary.HitRateAt3 = float64(hits) / float64(len(dataset))
	summary.AvgLatencyMS = (totalLatency / time.Duration(len(dataset))).Milliseconds()
	return summary, nil
}

// LoadDataset reads a golden dataset from a JSON file.
func LoadDataset(path string) ([]GoldenCase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden dataset: %w", err)
	}
	var dataset []GoldenCase
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return nil, fmt.Errorf("failed to decode golden dataset: %w", err)
	}
	return dataset, nil
}

// SampleDataset returns a starter golden dataset covering the indexed corpus.
func SampleDataset() []GoldenCase {
	return []GoldenCase{
		{Query: "API for strong authentication without passwords", ExpectedAPI: "Authentiq", ExpectedKind: "overview"},
		{Query: "push sign-in login endpoint", ExpectedAPI: "Authentiq", ExpectedKind: "endpoint"},
		{Query: "SMS transport configuration", ExpectedAPI: "Alerter System", ExpectedKind: "endpoint"},
		{Query: "1Password secrets management REST API", ExpectedAPI: "1Password", ExpectedKind: "overview"},
		{Query: "payment processing checkout", ExpectedAPI: "Adyen", ExpectedKind: "endpoint"},
		{Query: "IP address geolocation lookup", ExpectedAPI: "geolocation", ExpectedKind: "overview"},
		{Query: "create a webhook notification", ExpectedKind: "endpoint"},
		{Query: "balance platform transfer funds", ExpectedAPI: "Adyen", ExpectedKind: "endpoint"},
		{Query: "send email transactional messages", ExpectedKind: "endpoint"},
		{Query: "cloud object storage bucket", ExpectedAPI: "Amazon", ExpectedKind: "overview"},
		{Query: "machine learning model deployment", ExpectedAPI: "Amazon SageMaker", ExpectedKind: "overview"},
		{Query: "DNS domain name resolution", ExpectedAPI: "Route 53", ExpectedKind: "overview"},
		{Query: "video upload and streaming API", ExpectedAPI: "api.video", ExpectedKind: "overview"},
		{Query: "serverless function execution", ExpectedAPI: "Lambda", ExpectedKind: "overview"},
		{Query: "database backup and restore", ExpectedKind: "endpoint"},
		{Query: "container orchestration service", ExpectedAPI: "Amazon", ExpectedKind: "overview"},
		{Query: "fraud detection payment verification", ExpectedAPI: "Adyen", ExpectedKind: "endpoint"},
		{Query: "IoT device management telemetry", ExpectedKind: "overview"},
		{Query: "API key management and rotation", ExpectedKind: "endpoint"},
		{Query: "image recognition object detection", ExpectedAPI: "Amazon Rekognition", ExpectedKind: "overview"},
	}
}
