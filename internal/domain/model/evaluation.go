package model

import "time"

// EvaluationRequest groups the inputs of one evaluation call.
type EvaluationRequest struct {
	JobID      string
	Model      ModelRef
	DatasetRef string
	Options    EvalOptions
}

// EvalResult is what the evaluation backend reports for one model.
// ExecutionTime is in seconds, MemoryUsage in megabytes.
type EvalResult struct {
	Success       bool               `json:"success"`
	Score         *float64           `json:"score,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	ExecutionTime float64            `json:"execution_time"`
	MemoryUsage   float64            `json:"memory_usage"`
	Error         string             `json:"error,omitempty"`
}

// ValidationResult is returned by dataset and model validators.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// SubResult is the outcome of evaluating one model within a batch.
type SubResult struct {
	ModelRef      string             `json:"model_ref"`
	ModelType     string             `json:"model_type"`
	Provider      APIProvider        `json:"provider,omitempty"`
	Success       bool               `json:"success"`
	Score         *float64           `json:"score,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	ExecutionTime float64            `json:"execution_time"`
	MemoryUsage   float64            `json:"memory_usage"`
	Error         string             `json:"error,omitempty"`
}

// NewSubResult folds an evaluation result into a SubResult for ref.
func NewSubResult(ref ModelRef, res *EvalResult) SubResult {
	sr := SubResult{
		ModelRef:  ref.Ref,
		ModelType: ref.ModelType(),
		Provider:  ref.Provider,
	}
	if res == nil {
		sr.Error = "evaluation returned no result"
		return sr
	}
	sr.Success = res.Success
	sr.Score = res.Score
	sr.Metrics = res.Metrics
	sr.ExecutionTime = res.ExecutionTime
	sr.MemoryUsage = res.MemoryUsage
	sr.Error = res.Error
	if !sr.Success && sr.Error == "" {
		sr.Error = "evaluation reported failure"
	}
	return sr
}

// EvaluationOutcome is the result of a single or api job.
type EvaluationOutcome struct {
	ModelRef      string             `json:"model_ref"`
	ModelType     string             `json:"model_type"`
	Provider      APIProvider        `json:"provider,omitempty"`
	DatasetRef    string             `json:"dataset_ref"`
	Score         *float64           `json:"score,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	ExecutionTime float64            `json:"execution_time"`
	MemoryUsage   float64            `json:"memory_usage"`
}

// InvalidModel names a model rejected during batch validation.
type InvalidModel struct {
	ModelRef string `json:"model_ref"`
	Reason   string `json:"reason"`
}

// EvaluationRecord is the durable record of one successful evaluation.
type EvaluationRecord struct {
	ID            string             `json:"id"                   db:"id"`
	JobID         string             `json:"job_id"               db:"job_id"`
	ModelRef      string             `json:"model_ref"            db:"model_ref"`
	ModelType     string             `json:"model_type"           db:"model_type"`
	DatasetRef    string             `json:"dataset_ref"          db:"dataset_ref"`
	Score         *float64           `json:"score,omitempty"      db:"score"`
	Metrics       map[string]float64 `json:"metrics,omitempty"    db:"metrics"`
	ExecutionTime float64            `json:"execution_time"       db:"execution_time"`
	MemoryUsage   float64            `json:"memory_usage"         db:"memory_usage"`
	CreatedAt     time.Time          `json:"created_at"           db:"created_at"`
}
