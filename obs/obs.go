// Package obs persists per-run observability records: latency, token usage,
// grounding scores, and per-stage timings, plus the full trace for auditing.
package obs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sweetpotato0/api-universe/pkg/logging"
)

// RunRecord is one pipeline run's worth of observability data.
type RunRecord struct {
	Timestamp      time.Time       `json:"timestamp"`
	Query          string          `json:"query"`
	QueryType      string          `json:"query_type"`
	LatencyMS      int64           `json:"latency_ms"`
	GroundingScore float64         `json:"grounding_score"`
	Tokens         int64           `json:"tokens"`
	Retries        int             `json:"retries"`
	ClassifyModel  string          `json:"classify_model"`
	ClassifyMS     int64           `json:"classify_ms"`
	DecomposeModel string          `json:"decompose_model"`
	DecomposeMS    int64           `json:"decompose_ms"`
	RetrieveMS     int64           `json:"retrieve_ms"`
	RetrieveCount  int             `json:"retrieve_count"`
	GenerateModel  string          `json:"generate_model"`
	GenerateMS     int64           `json:"generate_ms"`
	GenerateTokens int64           `json:"generate_tokens"`
	VerifyModel    string          `json:"verify_model"`
	VerifyMS       int64           `json:"verify_ms"`
	Trace          json.RawMessage `json:"trace,omitempty"`
}

// Sink accepts run records. Implementations must be safe for concurrent use
// and must not block the caller's critical path.
type Sink interface {
	Record(ctx context.Context, rec *RunRecord)
}

// AsyncSink decouples record producers from a blocking backend with a
// bounded queue drained by a single writer goroutine. A full queue drops the
// record with a warning rather than blocking a pipeline run.
type AsyncSink struct {
	backend BackendSink
	queue   chan *RunRecord
	logger  *slog.Logger
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

// BackendSink is a blocking store an AsyncSink writes to.
type BackendSink interface {
	Write(ctx context.Context, rec *RunRecord) error
}

var _ Sink = (*AsyncSink)(nil)

// NewAsyncSink starts the writer goroutine. Close flushes remaining records.
func NewAsyncSink(backend BackendSink, queueSize int) *AsyncSink {
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &AsyncSink{
		backend: backend,
		queue:   make(chan *RunRecord, queueSize),
		logger:  logging.WithComponent("obs"),
		done:    make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *AsyncSink) Record(ctx context.Context, rec *RunRecord) {
	if rec == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("run record dropped, sink closed")
		return
	}
	select {
	case s.queue <- rec:
	default:
		s.logger.Warn("run record dropped, queue full")
	}
}

func (s *AsyncSink) drain() {
	defer close(s.done)
	for rec := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.backend.Write(ctx, rec); err != nil {
			s.logger.Warn("run record write failed", "error", err)
		}
		cancel()
	}
}

// Close stops accepting records, flushes the queue, and waits for the writer
// to finish.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

// MultiBackend fans a record out to several backends. The first error is
// returned after all backends were attempted.
type MultiBackend []BackendSink

var _ BackendSink = (MultiBackend)(nil)

func (m MultiBackend) Write(ctx context.Context, rec *RunRecord) error {
	var first error
	for _, b := range m {
		if err := b.Write(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NopSink discards all records.
type NopSink struct{}

var _ Sink = (*NopSink)(nil)

func (NopSink) Record(ctx context.Context, rec *RunRecord) {}
