package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeQueueWorker runs the work queue consumer.
	ServiceModeQueueWorker ServiceMode = "queue-worker"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeQueueWorker,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeQueueWorker:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, queue-worker)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// QueueConfig contains work queue and batch execution configuration.
type QueueConfig struct {
	// MaxConcurrency is the default pool width of parallel batch jobs.
	MaxConcurrency int `env:"QUEUE_MAX_CONCURRENCY" envDefault:"4"`

	// StopTimeout bounds how long shutdown waits for the job in flight.
	StopTimeout time.Duration `env:"QUEUE_STOP_TIMEOUT" envDefault:"15s"`

	// HistoryDefaultLimit is the page size of batch history when the caller sets none.
	HistoryDefaultLimit int `env:"QUEUE_HISTORY_DEFAULT_LIMIT" envDefault:"20"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if q.MaxConcurrency < 1 {
		q.MaxConcurrency = 1
	}
	if q.StopTimeout <= 0 {
		q.StopTimeout = 15 * time.Second
	}
	if q.HistoryDefaultLimit < 1 {
		q.HistoryDefaultLimit = 20
	}
	if q.HistoryDefaultLimit > 1000 {
		q.HistoryDefaultLimit = 1000
	}
}

// ProgressConfig contains progress event configuration.
type ProgressConfig struct {
	// CacheTTL is how long the latest snapshot of a job is kept.
	CacheTTL time.Duration `env:"PROGRESS_CACHE_TTL" envDefault:"1h"`

	// SubscriberBuffer is the channel capacity of each progress subscription.
	SubscriberBuffer int `env:"PROGRESS_SUBSCRIBER_BUFFER" envDefault:"32"`
}

// Sanitize applies guardrails to progress configuration values.
func (p *ProgressConfig) Sanitize() {
	if p.CacheTTL < 0 {
		p.CacheTTL = 0
	}
	if p.SubscriberBuffer < 1 {
		p.SubscriberBuffer = 32
	}
}

// EvaluatorConfig contains evaluation backend configuration.
type EvaluatorConfig struct {
	// CatalogFile is an optional YAML file listing known datasets and local models.
	CatalogFile string `env:"EVAL_CATALOG_FILE"`

	// SimulatedLatency is how long each simulated evaluation takes.
	SimulatedLatency time.Duration `env:"EVAL_SIMULATED_LATENCY" envDefault:"2s"`

	// HistogramBins is the number of bins in report distributions.
	HistogramBins int `env:"EVAL_HISTOGRAM_BINS" envDefault:"10"`
}

// Sanitize applies guardrails to evaluator configuration values.
func (e *EvaluatorConfig) Sanitize() {
	e.CatalogFile = strings.TrimSpace(e.CatalogFile)
	if e.SimulatedLatency < 0 {
		e.SimulatedLatency = 0
	}
	if e.HistogramBins < 1 {
		e.HistogramBins = 10
	}
}
