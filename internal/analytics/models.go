package analytics

import "time"

// Window is an optional time filter over record start times. Nil bounds
// are unbounded.
type Window struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// SkippedRecord identifies a record excluded from a computation, with
// the reason it was excluded. One corrupt record never aborts a report.
type SkippedRecord struct {
	RoundID int64  `json:"round_id"`
	Reason  string `json:"reason"`
}

// KPISummary is the headline dashboard metrics block
type KPISummary struct {
	TotalFlights        int             `json:"total_flights"`
	RoundCount          int             `json:"round_count"`
	JustificationCount  int             `json:"justification_count"`
	TotalOperationHours float64         `json:"total_operation_hours"`
	AvgRoundDurationMin float64         `json:"avg_round_duration_min"`
	Skipped             []SkippedRecord `json:"skipped,omitempty"`
}

// Granularity selects the temporal rollup bucket size
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// PeriodCount is one bucket of the temporal rollup
type PeriodCount struct {
	Period      string `json:"period"` // "2006-01-02" for day, "2006-01" for month
	FlightCount int    `json:"flight_count"`
	RoundCount  int    `json:"round_count"`
}

// Rollup is the temporal rollup result, periods ascending
type Rollup struct {
	Granularity Granularity     `json:"granularity"`
	Periods     []PeriodCount   `json:"periods"`
	Skipped     []SkippedRecord `json:"skipped,omitempty"`
}

// Heatmap counts activity starts per (weekday, hour-of-day) in the
// station's local zone. Weekday 0 is Sunday. Always fully shaped;
// buckets with no observations are 0.
type Heatmap struct {
	Counts  [7][24]int      `json:"counts"`
	Skipped []SkippedRecord `json:"skipped,omitempty"`
}

// OperatorEfficiency is one operator's volume/speed pairing
type OperatorEfficiency struct {
	OperatorID     string  `json:"operator_id"`
	RoundCount     int     `json:"round_count"`
	MedianRoundMin float64 `json:"median_round_min"`
	TotalActiveMin float64 `json:"total_active_min"`
}

// EfficiencyMatrix ranks operators by volume and speed. Operators with
// no non-anomalous closed rounds are excluded, not zero-filled.
type EfficiencyMatrix struct {
	Operators []OperatorEfficiency `json:"operators"`
	Skipped   []SkippedRecord      `json:"skipped,omitempty"`
}

// GroupBy selects the variability grouping key
type GroupBy string

const (
	GroupByOperator GroupBy = "operator"
	GroupByArea     GroupBy = "area"
)

// GroupSpread is the five-number spread of round durations (minutes)
// for one group, with IQR outlier fences. Groups with fewer than 4
// observations get quartiles by the same interpolation rule and an
// empty outlier set.
type GroupSpread struct {
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	Q1          float64   `json:"q1"`
	Median      float64   `json:"median"`
	Q3          float64   `json:"q3"`
	OutlierLow  float64   `json:"outlier_threshold_low"`
	OutlierHigh float64   `json:"outlier_threshold_high"`
	Outliers    []float64 `json:"outliers"`
}

// VariabilityReport is the grouped spread analysis
type VariabilityReport struct {
	GroupBy GroupBy         `json:"group_by"`
	Groups  []GroupSpread   `json:"groups"`
	Skipped []SkippedRecord `json:"skipped,omitempty"`
}

// StatusBreakdown counts record outcomes: completion rate vs
// justifications, with auto-closed rounds broken out
type StatusBreakdown struct {
	Closed     int             `json:"closed"`
	AutoClosed int             `json:"auto_closed"`
	Open       int             `json:"open"`
	Justified  int             `json:"justified"`
	Skipped    []SkippedRecord `json:"skipped,omitempty"`
}

// AreaCount is activity volume for one patrol area
type AreaCount struct {
	Area               string `json:"area"`
	RoundCount         int    `json:"round_count"`
	JustificationCount int    `json:"justification_count"`
}

// AreaFrequency lists areas by descending round volume
type AreaFrequency struct {
	Areas   []AreaCount     `json:"areas"`
	Skipped []SkippedRecord `json:"skipped,omitempty"`
}
