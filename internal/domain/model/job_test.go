package model

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobKind_UnmarshalText(t *testing.T) {
	var k JobKind
	require.NoError(t, k.UnmarshalText([]byte(" Batch ")))
	assert.Equal(t, JobKindBatch, k)

	require.Error(t, k.UnmarshalText([]byte("browser")))
	assert.Equal(t, JobKindBatch, k, "failed unmarshal leaves the value untouched")
}

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusCancelled, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusFailed, JobStatusPending, false},
		{JobStatusCancelled, JobStatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.False(t, JobStatus("paused").Valid())
}

func TestSubmitRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitRequest
		wantErr string
	}{
		{name: "defaults to single", req: SubmitRequest{DatasetRef: "squad", ModelRefs: []string{"bert"}}},
		{name: "batch with several models", req: SubmitRequest{Kind: JobKindBatch, DatasetRef: "squad", ModelRefs: []string{"a", "b"}}},
		{name: "unknown kind", req: SubmitRequest{Kind: "rules", DatasetRef: "squad", ModelRefs: []string{"a"}}, wantErr: "invalid job kind"},
		{name: "blank dataset", req: SubmitRequest{DatasetRef: "  ", ModelRefs: []string{"a"}}, wantErr: "dataset_ref"},
		{name: "no models", req: SubmitRequest{DatasetRef: "squad"}, wantErr: "model_refs"},
		{name: "single with two models", req: SubmitRequest{DatasetRef: "squad", ModelRefs: []string{"a", "b"}}, wantErr: "exactly one"},
		{name: "negative concurrency", req: SubmitRequest{Kind: JobKindBatch, DatasetRef: "squad", ModelRefs: []string{"a"}, Options: EvalOptions{MaxConcurrency: -1}}, wantErr: "max_concurrency"},
		{name: "empty entry", req: SubmitRequest{Kind: JobKindBatch, DatasetRef: "squad", ModelRefs: []string{"a", " "}}, wantErr: "empty"},
		{name: "duplicate entry", req: SubmitRequest{Kind: JobKindBatch, DatasetRef: "squad", ModelRefs: []string{"a", " a"}}, wantErr: "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := req.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.True(t, req.Kind.Valid())
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSubmitRequest_Payload(t *testing.T) {
	req := SubmitRequest{
		Kind:       JobKindBatch,
		Name:       " nightly ",
		ModelRefs:  []string{"models/bert", "https://api.deepseek.com/v1/chat"},
		DatasetRef: " squad ",
	}
	p, err := req.Payload()
	require.NoError(t, err)
	assert.Equal(t, "nightly", p.Name)
	assert.Equal(t, "squad", p.DatasetRef)
	require.Len(t, p.Models, 2)
	assert.Equal(t, ModelRefLocal, p.Models[0].Kind)
	assert.Equal(t, ModelRefAPI, p.Models[1].Kind)
	assert.Equal(t, ProviderDeepSeek, p.Models[1].Provider)

	api := SubmitRequest{Kind: JobKindAPI, ModelRefs: []string{"bert"}, DatasetRef: "squad"}
	_, err = api.Payload()
	require.Error(t, err)
}

func TestParseModelRef(t *testing.T) {
	ref, err := ParseModelRef("  ./weights/llama  ")
	require.NoError(t, err)
	assert.Equal(t, ModelRef{Kind: ModelRefLocal, Ref: "./weights/llama"}, ref)
	assert.Equal(t, "local", ref.ModelType())

	ref, err = ParseModelRef("HTTPS://generativelanguage.googleapis.com/v1beta")
	require.NoError(t, err)
	assert.True(t, ref.IsAPI())
	assert.Equal(t, ProviderGemini, ref.Provider)
	assert.Equal(t, "api", ref.ModelType())

	_, err = ParseModelRef("")
	require.Error(t, err)

	_, err = ParseModelRef("https:///no-host")
	require.Error(t, err)
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		raw  string
		want APIProvider
	}{
		{"https://api.openai.com/v1/chat/completions", ProviderOpenAI},
		{"https://my-resource.openai.azure.com/deployments/x", ProviderOpenAI},
		{"https://api.deepseek.com/chat", ProviderDeepSeek},
		{"https://generativelanguage.googleapis.com/v1", ProviderGemini},
		{"https://proxy.example.com/gemini-pro", ProviderGemini},
		{"https://proxy.example.com/gpt-4o", ProviderOpenAI},
		{"https://llm.internal.example.org/v1", ProviderCustom},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, DetectProvider(u))
		})
	}
}

func TestNewSubResult(t *testing.T) {
	score := 0.9
	ref := MustParseModelRef("https://api.openai.com/v1")

	sr := NewSubResult(ref, &EvalResult{Success: true, Score: &score, ExecutionTime: 1.5})
	assert.True(t, sr.Success)
	assert.Equal(t, "api", sr.ModelType)
	assert.Equal(t, ProviderOpenAI, sr.Provider)
	assert.InDelta(t, 0.9, *sr.Score, 1e-9)

	sr = NewSubResult(ref, &EvalResult{Success: false})
	assert.Equal(t, "evaluation reported failure", sr.Error)

	sr = NewSubResult(ref, nil)
	assert.False(t, sr.Success)
	assert.NotEmpty(t, sr.Error)
}

func TestJobRecord_Clone(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := "boom"
	orig := &JobRecord{
		ID:        "j1",
		Payload:   JobPayload{Models: []ModelRef{MustParseModelRef("bert")}},
		StartedAt: &started,
		LastError: &msg,
	}
	cp := orig.Clone()
	cp.Payload.Models[0].Ref = "changed"
	*cp.StartedAt = started.Add(time.Hour)
	*cp.LastError = "other"

	assert.Equal(t, "bert", orig.Payload.Models[0].Ref)
	assert.Equal(t, started, *orig.StartedAt)
	assert.Equal(t, "boom", *orig.LastError)
	assert.Nil(t, (*JobRecord)(nil).Clone())
}
