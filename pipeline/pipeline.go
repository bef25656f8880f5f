package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/api-universe/config"
	apierrors "github.com/sweetpotato0/api-universe/errors"
	"github.com/sweetpotato0/api-universe/grounding"
	"github.com/sweetpotato0/api-universe/llm"
	"github.com/sweetpotato0/api-universe/obs"
	"github.com/sweetpotato0/api-universe/pkg/logging"
	"github.com/sweetpotato0/api-universe/pkg/telemetry"
	"github.com/sweetpotato0/api-universe/search"
)

// Pipeline runs the full agentic answering flow for one query at a time.
// A single Pipeline is safe for concurrent runs; each run owns its own State.
type Pipeline struct {
	client     llm.Client
	fastClient llm.Client
	searcher   search.Searcher
	checker    grounding.Checker

	threshold       float64
	maxRetries      int
	topK            int
	maxEvidence     int
	maxAnswerTokens int64
	callTimeout     time.Duration

	cache  TransformCache
	tokens TokenCounter
	sink   obs.Sink

	logger *slog.Logger
	tracer trace.Tracer
}

// Result is what a completed run returns to the caller. The answer is always
// best-effort: a weakly grounded answer is returned with its report and
// trace, never hidden.
type Result struct {
	Query     string            `json:"query"`
	QueryType QueryType         `json:"query_type"`
	Answer    string            `json:"answer"`
	Grounding *grounding.Report `json:"grounding"`
	Trace     []TraceEntry      `json:"trace"`
	Retries   int               `json:"retries"`
	Sources   []Source          `json:"sources"`
}

// Source is a deduplicated evidence summary exposed to the caller.
type Source struct {
	APIName string  `json:"api_name"`
	Score   float32 `json:"score"`
	Kind    string  `json:"type"`
}

// New builds a pipeline over the given model client, searcher, and grounding
// checker. Defaults disable the refinement loop; enable it with
// WithGroundingThreshold and WithMaxRetries.
func New(client llm.Client, searcher search.Searcher, checker grounding.Checker, opts ...Option) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if checker == nil {
		return nil, fmt.Errorf("grounding checker is required")
	}

	p := &Pipeline{
		client:          client,
		searcher:        searcher,
		checker:         checker,
		topK:            defaultTopK,
		maxEvidence:     defaultMaxEvidence,
		maxAnswerTokens: defaultMaxTokens,
		logger:          logging.WithComponent("pipeline"),
		tracer:          telemetry.Tracer("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := config.ValidatePipelineConfig(p.threshold, p.maxRetries, p.topK, p.maxEvidence); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	return p, nil
}

// Run executes one full pipeline pass for the query, including any
// grounding-gated refinement loops, and returns the final answer with its
// grounding report, trace, and source summaries.
func (p *Pipeline) Run(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", apierrors.ErrInvalidInput)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	var runErr error
	defer func() { telemetry.End(span, runErr) }()

	start := time.Now()
	state := newState(query)
	rec := &obs.RunRecord{Timestamp: start.UTC(), Query: query}

	stage := StageClassify
	for stage != StageTerminate {
		if err := ctx.Err(); err != nil {
			runErr = err
			return nil, err
		}
		if runErr = p.runStage(ctx, stage, state, rec); runErr != nil {
			return nil, runErr
		}
		stage = NextStage(stage, p.guards(state))
	}

	rec.QueryType = string(state.QueryType)
	rec.LatencyMS = time.Since(start).Milliseconds()
	rec.Retries = state.RetryCount
	rec.RetrieveCount = len(state.Evidence)
	if state.Grounding != nil {
		rec.GroundingScore = state.Grounding.Score
	}
	if raw, err := json.Marshal(state.Trace); err == nil {
		rec.Trace = raw
	}
	p.record(ctx, rec)

	p.logger.Info("pipeline run complete",
		"query_type", state.QueryType,
		"retries", state.RetryCount,
		"evidence", len(state.Evidence),
		"grounding_score", rec.GroundingScore,
		"latency_ms", rec.LatencyMS,
	)

	return &Result{
		Query:     state.Query,
		QueryType: state.QueryType,
		Answer:    state.Answer,
		Grounding: state.Grounding,
		Trace:     state.Trace,
		Retries:   state.RetryCount,
		Sources:   p.sources(state),
	}, nil
}

// runStage executes one stage, appending exactly one trace entry on every
// path that does not abort the run.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, state *State, rec *obs.RunRecord) error {
	stageCtx, span := p.tracer.Start(ctx, "pipeline."+stage.String())
	stageStart := time.Now()
	var err error
	defer func() { telemetry.End(span, err) }()

	switch stage {
	case StageClassify:
		callCtx, cancel := p.callCtx(stageCtx)
		defer cancel()
		var queryType QueryType
		var cached bool
		queryType, cached, err = p.classify(callCtx, state.Query)
		if err != nil {
			return err
		}
		state.QueryType = queryType
		model := p.fast().Model()
		if cached {
			model = cacheModelMarker
		}
		elapsed := time.Since(stageStart).Milliseconds()
		state.appendTrace(TraceEntry{
			Step:      "classify",
			Result:    string(queryType),
			Model:     model,
			ElapsedMS: elapsed,
		})
		rec.ClassifyModel = model
		rec.ClassifyMS += elapsed

	case StageDecompose:
		callCtx, cancel := p.callCtx(stageCtx)
		defer cancel()
		var subQueries []string
		var cached bool
		subQueries, cached, err = p.decompose(callCtx, state.Query, state.QueryType)
		if err != nil {
			return err
		}
		state.SubQueries = subQueries
		elapsed := time.Since(stageStart).Milliseconds()
		entry := TraceEntry{Step: "decompose", ElapsedMS: elapsed}
		if state.QueryType == QueryTypeSimple {
			entry.Result = "single query (simple)"
		} else {
			model := p.fast().Model()
			if cached {
				model = cacheModelMarker
			}
			entry.Queries = subQueries
			entry.Model = model
			rec.DecomposeModel = model
		}
		state.appendTrace(entry)
		rec.DecomposeMS += elapsed

	case StageRetrieve:
		_, err = p.retrieve(stageCtx, state)
		if err != nil {
			return err
		}
		elapsed := time.Since(stageStart).Milliseconds()
		state.appendTrace(TraceEntry{
			Step:         "retrieve",
			SubQueries:   len(state.SubQueries),
			TotalResults: len(state.Evidence),
			ElapsedMS:    elapsed,
		})
		rec.RetrieveMS += elapsed

	case StageGenerate:
		callCtx, cancel := p.callCtx(stageCtx)
		defer cancel()
		var answer string
		var tokens int64
		answer, tokens, err = p.generate(callCtx, state)
		if err != nil {
			return err
		}
		state.Answer = answer
		elapsed := time.Since(stageStart).Milliseconds()
		state.appendTrace(TraceEntry{
			Step:      "generate",
			Model:     p.client.Model(),
			Tokens:    tokens,
			ElapsedMS: elapsed,
		})
		rec.GenerateModel = p.client.Model()
		rec.GenerateMS += elapsed
		rec.GenerateTokens += tokens
		rec.Tokens += tokens

	case StageVerify:
		callCtx, cancel := p.callCtx(stageCtx)
		defer cancel()
		var report *grounding.Report
		report, err = p.verify(callCtx, state)
		if err != nil {
			return err
		}
		state.Grounding = report
		elapsed := time.Since(stageStart).Milliseconds()
		score := report.Score
		state.appendTrace(TraceEntry{
			Step:           "verify",
			GroundingScore: &score,
			Model:          p.checkerModel(),
			ElapsedMS:      elapsed,
		})
		rec.VerifyModel = p.checkerModel()
		rec.VerifyMS += elapsed

	case StageRefine:
		callCtx, cancel := p.callCtx(stageCtx)
		defer cancel()
		state.RetryCount++
		var refined []string
		refined, err = p.refine(callCtx, state.Query, state.Grounding.Unsupported())
		if err != nil {
			return err
		}
		state.SubQueries = refined
		elapsed := time.Since(stageStart).Milliseconds()
		state.appendTrace(TraceEntry{
			Step:           "refine",
			Reason:         fmt.Sprintf("grounding score %.2f below threshold %.2f", state.Grounding.Score, p.threshold),
			RefinedQueries: refined,
			Retry:          state.RetryCount,
			Model:          p.client.Model(),
			ElapsedMS:      elapsed,
		})
	}
	return nil
}

func (p *Pipeline) guards(state *State) Guards {
	g := Guards{
		Threshold:  p.threshold,
		RetryCount: state.RetryCount,
		MaxRetries: p.maxRetries,
	}
	if state.Grounding != nil {
		g.GroundingScore = state.Grounding.Score
	}
	return g
}

// fast returns the client used for the cheap classify/decompose calls.
func (p *Pipeline) fast() llm.Client {
	if p.fastClient != nil {
		return p.fastClient
	}
	return p.client
}

func (p *Pipeline) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout > 0 {
		return context.WithTimeout(ctx, p.callTimeout)
	}
	return ctx, func() {}
}

func (p *Pipeline) checkerModel() string {
	if m, ok := p.checker.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

// record hands the run record to the sink. Sink implementations are
// non-blocking; a nil sink discards the record.
func (p *Pipeline) record(ctx context.Context, rec *obs.RunRecord) {
	if p.sink == nil {
		return
	}
	p.sink.Record(context.WithoutCancel(ctx), rec)
}

func (p *Pipeline) sources(state *State) []Source {
	evidence := state.topEvidence(p.maxEvidence)
	sources := make([]Source, 0, len(evidence))
	for _, r := range evidence {
		sources = append(sources, Source{
			APIName: r.Metadata.APIName,
			Score:   r.Score,
			Kind:    r.Metadata.Kind,
		})
	}
	return sources
}
