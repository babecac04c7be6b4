package model

// Report is the aggregated statistical summary of a batch's sub-results.
// Every field is derived from the sub-result list alone.
type Report struct {
	Summary               ReportSummary              `json:"summary"`
	Statistics            ReportStatistics           `json:"statistics"`
	ModelTypeDistribution map[string]int             `json:"model_type_distribution"`
	Performance           map[string]TypePerformance `json:"performance_analysis"`
	Rankings              []RankingEntry             `json:"rankings"`
	Charts                ChartData                  `json:"chart_data"`
	Failed                []SubResult                `json:"failed"`
	InvalidModels         []InvalidModel             `json:"invalid_models,omitempty"`
}

// ReportSummary holds the headline counts.
type ReportSummary struct {
	DatasetRef   string  `json:"dataset_ref,omitempty"`
	TotalModels  int     `json:"total_models"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	InvalidCount int     `json:"invalid_count"`
	SuccessRate  float64 `json:"success_rate"`
}

// ReportStatistics groups the numeric distributions over successful results.
type ReportStatistics struct {
	Score         ScoreStats `json:"score"`
	ExecutionTime RangeStats `json:"execution_time"`
	MemoryUsage   RangeStats `json:"memory_usage"`
}

// ScoreStats adds the sample standard deviation to RangeStats.
type ScoreStats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Std  float64 `json:"std"`
}

// RangeStats summarises a series by mean, min and max.
type RangeStats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// TypePerformance is the per-model-type breakdown.
type TypePerformance struct {
	Count            int     `json:"count"`
	AvgScore         float64 `json:"avg_score"`
	AvgExecutionTime float64 `json:"avg_execution_time"`
	AvgMemory        float64 `json:"avg_memory"`
}

// RankingEntry is one row of the leaderboard.
type RankingEntry struct {
	Rank          int                `json:"rank"`
	ModelRef      string             `json:"model_ref"`
	ModelType     string             `json:"model_type"`
	Score         float64            `json:"score"`
	RankValue     *float64           `json:"rank_value,omitempty"`
	ExecutionTime float64            `json:"execution_time"`
	MemoryUsage   float64            `json:"memory_usage"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// Histogram holds bin centers and their counts.
type Histogram struct {
	Centers []float64 `json:"bins"`
	Counts  []int     `json:"counts"`
}

// LabeledSeries is a label/value pair list for pie-style charts.
type LabeledSeries struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// ChartData groups the chart-ready series of a report.
type ChartData struct {
	ScoreDistribution         Histogram     `json:"score_distribution"`
	ExecutionTimeDistribution Histogram     `json:"execution_time_distribution"`
	ModelTypePie              LabeledSeries `json:"model_type_pie"`
	SuccessVsFailure          LabeledSeries `json:"success_vs_failure"`
}
