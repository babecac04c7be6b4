package report

import (
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
)

// JMESPathRanker ranks sub-results by a JMESPath expression evaluated against
// {model_ref, model_type, provider, score, execution_time, memory_usage, metrics}.
// Expressions that fail or yield a non-number rank the entry last.
type JMESPathRanker struct {
	expr string
}

// NewJMESPathRanker compiles expr. An empty expression returns ScoreRanker.
func NewJMESPathRanker(expr string) (Ranker, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ScoreRanker{}, nil
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid rank_by expression: %w", err)
	}
	return JMESPathRanker{expr: expr}, nil
}

// Key evaluates the expression for r.
func (j JMESPathRanker) Key(r model.SubResult) (float64, bool) {
	out, err := jmespath.Search(j.expr, searchDoc(r))
	if err != nil {
		return 0, false
	}
	switch v := out.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func searchDoc(r model.SubResult) map[string]any {
	metrics := make(map[string]any, len(r.Metrics))
	for k, v := range r.Metrics {
		metrics[k] = v
	}
	doc := map[string]any{
		"model_ref":      r.ModelRef,
		"model_type":     r.ModelType,
		"provider":       string(r.Provider),
		"execution_time": r.ExecutionTime,
		"memory_usage":   r.MemoryUsage,
		"metrics":        metrics,
		"score":          nil,
	}
	if r.Score != nil {
		doc["score"] = *r.Score
	}
	return doc
}
