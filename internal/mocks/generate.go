// Package mocks provides gomock implementations of the internal/core ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobStore(ctrl)
//	store.EXPECT().SaveJob(gomock.Any(), gomock.Any()).Return(nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/FlashBlank7/ModelsEvalSystem/internal/core JobStore

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=evaluator_mock.go github.com/FlashBlank7/ModelsEvalSystem/internal/core Evaluator

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=dataset_validator_mock.go github.com/FlashBlank7/ModelsEvalSystem/internal/core DatasetValidator

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=model_validator_mock.go github.com/FlashBlank7/ModelsEvalSystem/internal/core ModelValidator

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=evaluation_recorder_mock.go github.com/FlashBlank7/ModelsEvalSystem/internal/core EvaluationRecorder

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/FlashBlank7/ModelsEvalSystem/internal/core CacheRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_queue_mock.go github.com/FlashBlank7/ModelsEvalSystem/internal/core JobQueue
