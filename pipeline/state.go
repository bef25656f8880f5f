// Package pipeline implements the agentic question-answering pipeline:
// classify, decompose, retrieve, generate, verify, and a grounding-gated
// refinement loop.
package pipeline

import (
	"github.com/sweetpotato0/api-universe/grounding"
	"github.com/sweetpotato0/api-universe/search"
)

// QueryType buckets an incoming query by complexity.
type QueryType string

const (
	QueryTypeSimple  QueryType = "SIMPLE"
	QueryTypeCompare QueryType = "COMPARE"
	QueryTypeExplore QueryType = "EXPLORE"
)

// Stage is a state of the pipeline state machine.
type Stage int

const (
	StageClassify Stage = iota
	StageDecompose
	StageRetrieve
	StageGenerate
	StageVerify
	StageRefine
	StageTerminate
)

func (s Stage) String() string {
	switch s {
	case StageClassify:
		return "classify"
	case StageDecompose:
		return "decompose"
	case StageRetrieve:
		return "retrieve"
	case StageGenerate:
		return "generate"
	case StageVerify:
		return "verify"
	case StageRefine:
		return "refine"
	case StageTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Guards carries the inputs of the verify transition decision.
type Guards struct {
	GroundingScore float64
	Threshold      float64
	RetryCount     int
	MaxRetries     int
}

// NextStage is the pure transition function of the state machine. The only
// branch point is after verify: refine when the grounding score is below the
// threshold and retries remain, terminate otherwise. A threshold of 0 with
// 0 max retries is a valid configuration that never refines.
func NextStage(current Stage, g Guards) Stage {
	switch current {
	case StageClassify:
		return StageDecompose
	case StageDecompose:
		return StageRetrieve
	case StageRetrieve:
		return StageGenerate
	case StageGenerate:
		return StageVerify
	case StageVerify:
		if g.GroundingScore < g.Threshold && g.RetryCount < g.MaxRetries {
			return StageRefine
		}
		return StageTerminate
	case StageRefine:
		return StageRetrieve
	default:
		return StageTerminate
	}
}

// TraceEntry records one stage execution. Step is always set; the remaining
// fields vary by stage.
type TraceEntry struct {
	Step           string   `json:"step"`
	Result         string   `json:"result,omitempty"`
	Queries        []string `json:"queries,omitempty"`
	SubQueries     int      `json:"sub_queries,omitempty"`
	TotalResults   int      `json:"total_results,omitempty"`
	Model          string   `json:"model,omitempty"`
	Tokens         int64    `json:"tokens,omitempty"`
	GroundingScore *float64 `json:"grounding_score,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	RefinedQueries []string `json:"refined_queries,omitempty"`
	Retry          int      `json:"retry,omitempty"`
	ElapsedMS      int64    `json:"elapsed_ms"`
}

// State is the mutable run state threaded through every stage. Each run owns
// its State exclusively; nothing here is shared across runs.
type State struct {
	Query      string
	QueryType  QueryType
	SubQueries []string
	Evidence   []search.Result
	Answer     string
	Grounding  *grounding.Report
	Trace      []TraceEntry
	RetryCount int

	seen map[string]struct{}
}

func newState(query string) *State {
	return &State{
		Query: query,
		seen:  make(map[string]struct{}),
	}
}

func (s *State) appendTrace(entry TraceEntry) {
	s.Trace = append(s.Trace, entry)
}

// addEvidence appends the item unless its dedup key was already seen in this
// run. Returns true when the item was added.
func (s *State) addEvidence(item search.Result) bool {
	key := dedupKey(item.Text)
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.Evidence = append(s.Evidence, item)
	return true
}

// dedupKey identifies an evidence item by the first 100 characters of its
// text. Items sharing a key are duplicates regardless of metadata.
func dedupKey(text string) string {
	runes := []rune(text)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return string(runes)
}

// topEvidence returns at most n items in their merged arrival order.
func (s *State) topEvidence(n int) []search.Result {
	if len(s.Evidence) <= n {
		return s.Evidence
	}
	return s.Evidence[:n]
}
