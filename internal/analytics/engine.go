package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/skywatch-ops/fieldlog/internal/ops"
	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

// Engine computes read-only derived metrics from a record corpus. All
// methods are pure functions of the corpus plus an optional window:
// deterministic for the same input set, safe to run concurrently with
// each other and with the session state machine. Open records are
// tolerated and excluded from duration-based metrics; structurally
// inconsistent records are excluded with a flag, never fatal.
type Engine struct {
	loc    *time.Location
	logger *logger.Logger
}

// NewEngine creates an aggregation engine. loc is the station zone used
// for weekday/hour and calendar bucketing.
func NewEngine(loc *time.Location, logger *logger.Logger) *Engine {
	return &Engine{
		loc:    loc,
		logger: logger.Named("analytics"),
	}
}

// corpusView is the windowed, integrity-checked slice of a corpus that
// every metric starts from.
type corpusView struct {
	flights        []*ops.FlightRecord
	rounds         []*ops.RoundRecord // valid flight reference, in window
	closed         []*ops.RoundRecord // subset of rounds with status closed
	justifications []*ops.JustificationRecord
	skipped        []SkippedRecord
}

func (e *Engine) view(corpus *ops.Corpus, w Window) *corpusView {
	v := &corpusView{}
	if corpus == nil {
		return v
	}

	flightIDs := make(map[int64]struct{}, len(corpus.Flights))
	for _, f := range corpus.Flights {
		flightIDs[f.ID] = struct{}{}
		if w.Contains(f.StartTime) {
			v.flights = append(v.flights, f)
		}
	}

	for _, r := range corpus.Rounds {
		if _, ok := flightIDs[r.FlightID]; !ok {
			v.skipped = append(v.skipped, SkippedRecord{
				RoundID: r.ID,
				Reason:  fmt.Sprintf("round references nonexistent flight %d", r.FlightID),
			})
			continue
		}
		if !w.Contains(r.StartTime) {
			continue
		}
		v.rounds = append(v.rounds, r)
		if r.Status == ops.RoundClosed {
			v.closed = append(v.closed, r)
		}
	}

	for _, j := range corpus.Justifications {
		if w.Contains(j.Timestamp) {
			v.justifications = append(v.justifications, j)
		}
	}

	if len(v.skipped) > 0 {
		e.logger.Warn("Records excluded from analytics",
			logger.Int("skipped", len(v.skipped)))
	}
	return v
}

// KPISummary computes the headline metrics. An empty corpus yields all
// zero fields, not an error. The average round duration covers closed,
// non-anomalous rounds with positive duration only.
func (e *Engine) KPISummary(corpus *ops.Corpus, w Window) *KPISummary {
	v := e.view(corpus, w)

	out := &KPISummary{
		TotalFlights:       len(v.flights),
		RoundCount:         len(v.rounds),
		JustificationCount: len(v.justifications),
		Skipped:            v.skipped,
	}

	var total time.Duration
	var sum time.Duration
	var n int
	for _, r := range v.closed {
		total += r.Active
		if !r.Anomalous && r.Active > 0 {
			sum += r.Active
			n++
		}
	}
	out.TotalOperationHours = total.Hours()
	if n > 0 {
		out.AvgRoundDurationMin = (sum / time.Duration(n)).Minutes()
	}
	return out
}

// TemporalRollup buckets flight and round counts by calendar day or
// month, ascending. Missing periods are not synthesized unless zeroFill
// is set, in which case gaps between the first and last observed period
// are emitted with zero counts.
func (e *Engine) TemporalRollup(corpus *ops.Corpus, w Window, g Granularity, zeroFill bool) *Rollup {
	v := e.view(corpus, w)

	flights := make(map[string]int)
	rounds := make(map[string]int)
	for _, f := range v.flights {
		flights[e.period(f.StartTime, g)]++
	}
	for _, r := range v.rounds {
		rounds[e.period(r.StartTime, g)]++
	}

	keys := make(map[string]struct{}, len(flights)+len(rounds))
	for k := range flights {
		keys[k] = struct{}{}
	}
	for k := range rounds {
		keys[k] = struct{}{}
	}

	periods := make([]string, 0, len(keys))
	for k := range keys {
		periods = append(periods, k)
	}
	sort.Strings(periods)

	if zeroFill && len(periods) > 1 {
		periods = fillPeriods(periods[0], periods[len(periods)-1], g)
	}

	out := &Rollup{Granularity: g, Skipped: v.skipped}
	for _, p := range periods {
		out.Periods = append(out.Periods, PeriodCount{
			Period:      p,
			FlightCount: flights[p],
			RoundCount:  rounds[p],
		})
	}
	return out
}

func (e *Engine) period(t time.Time, g Granularity) string {
	local := t.In(e.loc)
	if g == GranularityMonth {
		return local.Format("2006-01")
	}
	return local.Format("2006-01-02")
}

// fillPeriods enumerates every period from first to last inclusive
func fillPeriods(first, last string, g Granularity) []string {
	layout := "2006-01-02"
	step := func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	if g == GranularityMonth {
		layout = "2006-01"
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	}

	start, err1 := time.Parse(layout, first)
	end, err2 := time.Parse(layout, last)
	if err1 != nil || err2 != nil {
		return []string{first, last}
	}

	var out []string
	for t := start; !t.After(end); t = step(t) {
		out = append(out, t.Format(layout))
	}
	return out
}

// Heatmap counts activity starts (rounds and justifications) per
// weekday and hour of day in the station zone. The matrix is always
// fully shaped; zero observations produce a zero-filled matrix, not an
// empty structure.
func (e *Engine) Heatmap(corpus *ops.Corpus, w Window) *Heatmap {
	v := e.view(corpus, w)

	out := &Heatmap{Skipped: v.skipped}
	for _, r := range v.rounds {
		local := r.StartTime.In(e.loc)
		out.Counts[int(local.Weekday())][local.Hour()]++
	}
	for _, j := range v.justifications {
		local := j.Timestamp.In(e.loc)
		out.Counts[int(local.Weekday())][local.Hour()]++
	}
	return out
}

// OperatorEfficiency pairs each operator's round volume with the median
// duration of their non-anomalous closed rounds and their total active
// time. Operators with zero non-anomalous rounds are excluded. Rows are
// sorted by operator id.
func (e *Engine) OperatorEfficiency(corpus *ops.Corpus, w Window) *EfficiencyMatrix {
	v := e.view(corpus, w)

	durations := make(map[string][]float64)
	counts := make(map[string]int)
	totals := make(map[string]float64)
	for _, r := range v.closed {
		counts[r.OperatorID]++
		totals[r.OperatorID] += r.Active.Minutes()
		if !r.Anomalous {
			durations[r.OperatorID] = append(durations[r.OperatorID], r.Active.Minutes())
		}
	}

	operators := make([]string, 0, len(durations))
	for op := range durations {
		operators = append(operators, op)
	}
	sort.Strings(operators)

	out := &EfficiencyMatrix{Skipped: v.skipped}
	for _, op := range operators {
		sample := durations[op]
		sort.Float64s(sample)
		out.Operators = append(out.Operators, OperatorEfficiency{
			OperatorID:     op,
			RoundCount:     counts[op],
			MedianRoundMin: median(sample),
			TotalActiveMin: totals[op],
		})
	}
	return out
}

// VariabilityStats computes the quartile spread of closed round
// durations (minutes) per group, with Tukey IQR outlier fences. Groups
// with fewer than 4 observations get quartiles by the same
// interpolation rule and an empty outlier set. Groups are sorted by
// key.
func (e *Engine) VariabilityStats(corpus *ops.Corpus, w Window, groupBy GroupBy) *VariabilityReport {
	v := e.view(corpus, w)

	key := func(r *ops.RoundRecord) string { return r.OperatorID }
	if groupBy == GroupByArea {
		key = func(r *ops.RoundRecord) string { return r.Area }
	}

	samples := make(map[string][]float64)
	for _, r := range v.closed {
		if r.Anomalous {
			continue
		}
		samples[key(r)] = append(samples[key(r)], r.Active.Minutes())
	}

	keys := make([]string, 0, len(samples))
	for k := range samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &VariabilityReport{GroupBy: groupBy, Skipped: v.skipped}
	for _, k := range keys {
		sample := samples[k]
		sort.Float64s(sample)

		q1 := quantile(sample, 0.25)
		q3 := quantile(sample, 0.75)
		low, high := iqrFences(q1, q3)

		spread := GroupSpread{
			Key:         k,
			Count:       len(sample),
			Q1:          q1,
			Median:      median(sample),
			Q3:          q3,
			OutlierLow:  low,
			OutlierHigh: high,
			Outliers:    []float64{},
		}
		if len(sample) >= 4 {
			for _, d := range sample {
				if d < low || d > high {
					spread.Outliers = append(spread.Outliers, d)
				}
			}
		}
		out.Groups = append(out.Groups, spread)
	}
	return out
}

// StatusBreakdown counts round and justification outcomes
func (e *Engine) StatusBreakdown(corpus *ops.Corpus, w Window) *StatusBreakdown {
	v := e.view(corpus, w)

	out := &StatusBreakdown{
		Justified: len(v.justifications),
		Skipped:   v.skipped,
	}
	for _, r := range v.rounds {
		switch {
		case r.Status == ops.RoundOpen:
			out.Open++
		case r.AutoClosed:
			out.AutoClosed++
		default:
			out.Closed++
		}
	}
	return out
}

// AreaFrequency counts rounds and justifications per patrol area,
// sorted by descending round count, then area name.
func (e *Engine) AreaFrequency(corpus *ops.Corpus, w Window) *AreaFrequency {
	v := e.view(corpus, w)

	rounds := make(map[string]int)
	justs := make(map[string]int)
	for _, r := range v.rounds {
		rounds[r.Area]++
	}
	for _, j := range v.justifications {
		justs[j.Area]++
	}

	areas := make(map[string]struct{}, len(rounds)+len(justs))
	for a := range rounds {
		areas[a] = struct{}{}
	}
	for a := range justs {
		areas[a] = struct{}{}
	}

	out := &AreaFrequency{Skipped: v.skipped}
	for a := range areas {
		out.Areas = append(out.Areas, AreaCount{
			Area:               a,
			RoundCount:         rounds[a],
			JustificationCount: justs[a],
		})
	}
	sort.Slice(out.Areas, func(i, j int) bool {
		if out.Areas[i].RoundCount != out.Areas[j].RoundCount {
			return out.Areas[i].RoundCount > out.Areas[j].RoundCount
		}
		return out.Areas[i].Area < out.Areas[j].Area
	})
	return out
}
