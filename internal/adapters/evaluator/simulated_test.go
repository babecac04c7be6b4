package evaluator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	require.Len(t, c.Datasets, 2)
	require.Len(t, c.Models, 2)

	ds, ok := c.Dataset("mmlu")
	require.True(t, ok)
	assert.Equal(t, "/data/mmlu", ds.Path)

	m, ok := c.Model("/models/llama-7b")
	require.True(t, ok, "lookup by path")
	assert.Equal(t, "llama-7b", m.Name)

	_, ok = c.Dataset("squad")
	assert.False(t, ok)
}

func TestLoadCatalog_Errors(t *testing.T) {
	empty, err := LoadCatalog("  ")
	require.NoError(t, err)
	_, ok := empty.Model("anything")
	assert.True(t, ok, "empty catalog accepts any name")
	_, ok = empty.Model("")
	assert.False(t, ok)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("datasets: [: oops"), 0o600))
	_, err = LoadCatalog(bad)
	require.Error(t, err)

	_, err = ParseCatalog([]byte("models:\n  - path: /models/x\n"))
	require.Error(t, err)
}

func TestSimulated_EvaluateIsDeterministic(t *testing.T) {
	s := NewSimulated(SimulatedOptions{})
	ctx := context.Background()

	tests := []struct {
		ref      string
		min, max float64
		api      bool
	}{
		{ref: "llama-7b", min: 0.75, max: 0.85},
		{ref: "https://generativelanguage.googleapis.com/v1/models/gemini-pro", min: 0.82, max: 0.87, api: true},
		{ref: "https://api.deepseek.com/chat/completions", min: 0.78, max: 0.86, api: true},
		{ref: "https://api.openai.com/v1/chat/completions", min: 0.80, max: 0.86, api: true},
		{ref: "https://llm.internal.example/v1", min: 0.70, max: 0.80, api: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			req := model.EvaluationRequest{Model: model.MustParseModelRef(tt.ref), DatasetRef: "mmlu"}
			first, err := s.Evaluate(ctx, req)
			require.NoError(t, err)
			second, err := s.Evaluate(ctx, req)
			require.NoError(t, err)

			require.True(t, first.Success)
			require.NotNil(t, first.Score)
			assert.InDelta(t, *first.Score, *second.Score, 0)
			assert.GreaterOrEqual(t, *first.Score, tt.min)
			assert.Less(t, *first.Score, tt.max)
			assert.Contains(t, first.Metrics, "accuracy")

			if tt.api {
				assert.Contains(t, first.Metrics, "api_latency")
				assert.Contains(t, first.Metrics, "api_cost")
				assert.Zero(t, first.MemoryUsage)
			} else {
				assert.NotContains(t, first.Metrics, "api_latency")
				assert.GreaterOrEqual(t, first.MemoryUsage, 2048.0)
				assert.Less(t, first.MemoryUsage, 3072.0)
			}
		})
	}
}

func TestSimulated_EvaluateMatchesHash(t *testing.T) {
	s := NewSimulated(SimulatedOptions{})
	h := refHash("llama-7b")

	res, err := s.Evaluate(context.Background(), model.EvaluationRequest{Model: model.MustParseModelRef("llama-7b")})
	require.NoError(t, err)
	assert.InDelta(t, 0.75+float64(h%100)/1000, *res.Score, 1e-12)
	assert.InDelta(t, 2048+float64(h%1024), res.MemoryUsage, 0)
}

func TestSimulated_EvaluateHonoursContext(t *testing.T) {
	s := NewSimulated(SimulatedOptions{Latency: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Evaluate(ctx, model.EvaluationRequest{Model: model.MustParseModelRef("m1")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulated_Validation(t *testing.T) {
	c, err := LoadCatalog(filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	s := NewSimulated(SimulatedOptions{Catalog: c})
	ctx := context.Background()

	res, err := s.ValidateDataset(ctx, "gsm8k")
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = s.ValidateDataset(ctx, "squad")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "squad")

	res, err = s.CheckModel(ctx, model.MustParseModelRef("qwen-1.8b"))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = s.CheckModel(ctx, model.MustParseModelRef("mistral-7b"))
	require.NoError(t, err)
	assert.False(t, res.Valid)

	res, err = s.CheckModel(ctx, model.MustParseModelRef("https://api.openai.com/v1"))
	require.NoError(t, err)
	assert.True(t, res.Valid, "api models are checked by connection test, not the catalog")
	assert.Equal(t, string(model.ProviderOpenAI), res.ID)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.CheckModel(cancelled, model.MustParseModelRef("qwen-1.8b"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestConnectionTime(t *testing.T) {
	d := ConnectionTime("https://api.deepseek.com/chat")
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 300*time.Millisecond)
	assert.Equal(t, d, ConnectionTime("https://api.deepseek.com/chat"))
}
