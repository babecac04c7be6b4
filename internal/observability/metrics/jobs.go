// Package metrics emits the standard job, batch and queue metrics.
package metrics

import (
	"time"

	obserrors "github.com/FlashBlank7/ModelsEvalSystem/internal/observability/errors"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobKind    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits job.transition and, when a duration is known, job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobKind,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// BatchItemMetric describes one finished evaluation inside a batch.
type BatchItemMetric struct {
	ModelType string
	Success   bool
	Duration  time.Duration
}

// EmitBatchItem emits batch.item tagged with the outcome and model type.
func EmitBatchItem(sink statsd.Sink, in BatchItemMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if !in.Success {
		result = ResultError
	}
	tags := map[string]string{"result": result, "model_type": in.ModelType}
	sink.Count("batch.item", 1, tags)
	if in.Duration > 0 {
		sink.Timing("batch.item.duration", in.Duration, CloneTags(tags))
	}
}

// EmitQueueDepth reports the number of queued jobs.
func EmitQueueDepth(sink statsd.Sink, depth int) {
	if sink == nil {
		return
	}
	sink.Gauge("queue.depth", float64(depth), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
