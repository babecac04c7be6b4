package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/FlashBlank7/ModelsEvalSystem/internal/errors"
	"github.com/FlashBlank7/ModelsEvalSystem/internal/observability/statsd"
)

func TestEmitJobLifecycle(t *testing.T) {
	t.Parallel()

	var rec statsd.Recorder
	EmitJobLifecycle(&rec, JobMetric{
		JobKind:    "batch",
		Transition: "failed",
		Result:     ResultError,
		Duration:   2 * time.Second,
		Err:        apperrors.NoValidInputs("none"),
	})

	counts := rec.Named("job.transition")
	require.Len(t, counts, 1)
	assert.Equal(t, map[string]string{
		"job_type":    "batch",
		"transition":  "failed",
		"result":      "error",
		"error_class": "no_valid_inputs",
	}, counts[0].Tags)

	timings := rec.Named("job.duration")
	require.Len(t, timings, 1)
	assert.InDelta(t, 2000.0, timings[0].Value, 1e-9)
}

func TestEmitJobLifecycle_NoDurationNoErrorClass(t *testing.T) {
	t.Parallel()

	var rec statsd.Recorder
	EmitJobLifecycle(&rec, JobMetric{JobKind: "single", Transition: "completed", Result: ResultSuccess})

	require.Len(t, rec.Samples(), 1)
	_, has := rec.Samples()[0].Tags["error_class"]
	assert.False(t, has)

	EmitJobLifecycle(nil, JobMetric{})
}

func TestEmitBatchItemAndQueueDepth(t *testing.T) {
	t.Parallel()

	var rec statsd.Recorder
	EmitBatchItem(&rec, BatchItemMetric{ModelType: "api", Success: false})
	EmitBatchItem(&rec, BatchItemMetric{ModelType: "local", Success: true, Duration: time.Millisecond})
	EmitQueueDepth(&rec, 4)

	items := rec.Named("batch.item")
	require.Len(t, items, 2)
	assert.Equal(t, "error", items[0].Tags["result"])
	assert.Equal(t, "api", items[0].Tags["model_type"])
	assert.Len(t, rec.Named("batch.item.duration"), 1)

	depth := rec.Named("queue.depth")
	require.Len(t, depth, 1)
	assert.InDelta(t, 4.0, depth[0].Value, 1e-9)
}

func TestCloneTags(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "1"}
	cp := CloneTags(src)
	cp["a"] = "2"
	assert.Equal(t, "1", src["a"])
}
