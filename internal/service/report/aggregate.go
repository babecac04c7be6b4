// Package report turns a batch's sub-results into a statistical report.
// Everything here is pure: the same inputs always produce the same Report.
package report

import (
	"math"
	"sort"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/domain/model"
)

// DefaultBins is the histogram bin count used when Input.Bins is unset.
const DefaultBins = 10

// Ranker extracts the value a sub-result is ranked by. ok=false ranks the entry last.
type Ranker interface {
	Key(r model.SubResult) (value float64, ok bool)
}

// ScoreRanker ranks by score.
type ScoreRanker struct{}

// Key returns the score when present.
func (ScoreRanker) Key(r model.SubResult) (float64, bool) {
	if r.Score == nil {
		return 0, false
	}
	return *r.Score, true
}

// Input is the full argument set of AggregateWith.
type Input struct {
	Results    []model.SubResult
	Invalid    []model.InvalidModel
	DatasetRef string
	Bins       int
	Ranker     Ranker
}

// Aggregate summarises results with default options.
func Aggregate(results []model.SubResult) model.Report {
	return AggregateWith(Input{Results: results})
}

// AggregateWith summarises in.Results. The input slice is not modified.
func AggregateWith(in Input) model.Report {
	bins := in.Bins
	if bins <= 0 {
		bins = DefaultBins
	}
	ranker := in.Ranker
	if ranker == nil {
		ranker = ScoreRanker{}
	}

	// Fix the iteration order so arrival order of parallel results cannot leak into the output.
	results := append([]model.SubResult(nil), in.Results...)
	sort.SliceStable(results, func(i, j int) bool { return results[i].ModelRef < results[j].ModelRef })

	var ok, failed []model.SubResult
	for _, r := range results {
		if r.Success {
			ok = append(ok, r)
		} else {
			failed = append(failed, r)
		}
	}

	scores := make([]float64, 0, len(ok))
	times := make([]float64, 0, len(ok))
	mems := make([]float64, 0, len(ok))
	for _, r := range ok {
		if r.Score != nil {
			scores = append(scores, *r.Score)
		}
		times = append(times, r.ExecutionTime)
		mems = append(mems, r.MemoryUsage)
	}

	dist := typeDistribution(ok)

	rep := model.Report{
		Summary: model.ReportSummary{
			DatasetRef:   in.DatasetRef,
			TotalModels:  len(results),
			SuccessCount: len(ok),
			FailureCount: len(failed),
			InvalidCount: len(in.Invalid),
			SuccessRate:  successRate(len(ok), len(results)),
		},
		Statistics: model.ReportStatistics{
			Score:         scoreStats(scores),
			ExecutionTime: rangeStats(times, 2),
			MemoryUsage:   rangeStats(mems, 2),
		},
		ModelTypeDistribution: dist,
		Performance:           performance(ok),
		Rankings:              rank(ok, ranker),
		Charts: model.ChartData{
			ScoreDistribution:         histogram(scores, bins),
			ExecutionTimeDistribution: histogram(times, bins),
			ModelTypePie:              pie(dist),
			SuccessVsFailure: model.LabeledSeries{
				Labels: []string{"success", "failure"},
				Data:   []int{len(ok), len(failed)},
			},
		},
		Failed:        append([]model.SubResult{}, failed...),
		InvalidModels: append([]model.InvalidModel(nil), in.Invalid...),
	}
	return rep
}

func successRate(ok, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(ok)/float64(total)*100, 2)
}

func scoreStats(v []float64) model.ScoreStats {
	r := rangeStats(v, 4)
	return model.ScoreStats{Mean: r.Mean, Min: r.Min, Max: r.Max, Std: round(stdDev(v), 4)}
}

func rangeStats(v []float64, places int) model.RangeStats {
	if len(v) == 0 {
		return model.RangeStats{}
	}
	lo, hi := minMax(v)
	return model.RangeStats{
		Mean: round(mean(v), places),
		Min:  round(lo, places),
		Max:  round(hi, places),
	}
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// stdDev is the sample (n-1) standard deviation; 0 below two values.
func stdDev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	m := mean(v)
	var ss float64
	for _, x := range v {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(v)-1))
}

func minMax(v []float64) (float64, float64) {
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// histogram splits [min, max] into bins equal-width bins, the last one closed.
// A zero-width range places every value in the first bin.
func histogram(v []float64, bins int) model.Histogram {
	h := model.Histogram{Centers: []float64{}, Counts: []int{}}
	if len(v) == 0 {
		return h
	}
	lo, hi := minMax(v)
	width := (hi - lo) / float64(bins)

	h.Centers = make([]float64, bins)
	h.Counts = make([]int, bins)
	for i := range bins {
		h.Centers[i] = lo + (float64(i)+0.5)*width
	}
	for _, x := range v {
		idx := 0
		if width > 0 {
			idx = min(int((x-lo)/width), bins-1)
		}
		h.Counts[idx]++
	}
	return h
}

func typeDistribution(ok []model.SubResult) map[string]int {
	dist := make(map[string]int)
	for _, r := range ok {
		dist[r.ModelType]++
	}
	return dist
}

func pie(dist map[string]int) model.LabeledSeries {
	labels := make([]string, 0, len(dist))
	for k := range dist {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	data := make([]int, len(labels))
	for i, l := range labels {
		data[i] = dist[l]
	}
	return model.LabeledSeries{Labels: labels, Data: data}
}

func performance(ok []model.SubResult) map[string]model.TypePerformance {
	type acc struct {
		count            int
		scores, times, m []float64
	}
	groups := make(map[string]*acc)
	for _, r := range ok {
		g := groups[r.ModelType]
		if g == nil {
			g = &acc{}
			groups[r.ModelType] = g
		}
		g.count++
		if r.Score != nil {
			g.scores = append(g.scores, *r.Score)
		}
		g.times = append(g.times, r.ExecutionTime)
		g.m = append(g.m, r.MemoryUsage)
	}

	out := make(map[string]model.TypePerformance, len(groups))
	for t, g := range groups {
		out[t] = model.TypePerformance{
			Count:            g.count,
			AvgScore:         round(mean(g.scores), 4),
			AvgExecutionTime: round(mean(g.times), 2),
			AvgMemory:        round(mean(g.m), 2),
		}
	}
	return out
}

type keyed struct {
	r     model.SubResult
	value float64
	ok    bool
}

// rank orders by ranker key descending; entries without a key go last; ties by model ref.
func rank(ok []model.SubResult, ranker Ranker) []model.RankingEntry {
	items := make([]keyed, len(ok))
	for i, r := range ok {
		v, has := ranker.Key(r)
		items[i] = keyed{r: r, value: v, ok: has}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ok != b.ok {
			return a.ok
		}
		if a.ok && a.value != b.value {
			return a.value > b.value
		}
		return a.r.ModelRef < b.r.ModelRef
	})

	_, byScore := ranker.(ScoreRanker)
	out := make([]model.RankingEntry, len(items))
	for i, it := range items {
		e := model.RankingEntry{
			Rank:          i + 1,
			ModelRef:      it.r.ModelRef,
			ModelType:     it.r.ModelType,
			ExecutionTime: it.r.ExecutionTime,
			MemoryUsage:   it.r.MemoryUsage,
			Metrics:       it.r.Metrics,
		}
		if it.r.Score != nil {
			e.Score = *it.r.Score
		}
		if !byScore && it.ok {
			v := it.value
			e.RankValue = &v
		}
		out[i] = e
	}
	return out
}
