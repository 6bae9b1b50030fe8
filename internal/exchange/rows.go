package exchange

import (
	"sort"
	"time"

	"github.com/skywatch-ops/fieldlog/internal/ops"
)

// Row statuses in the flat projection. Round rows carry the round's own
// status; justification rows use StatusJustified.
const (
	StatusOpen      = "open"
	StatusClosed    = "closed"
	StatusJustified = "justified"
)

// Header is the column order of the flat tabular projection
var Header = []string{
	"flight_number",
	"operator",
	"area",
	"date",
	"start_time",
	"end_time",
	"duration_seconds",
	"pause_seconds",
	"status",
	"anomalous",
	"auto_closed",
	"reason",
}

// Row is a single line of the flat export: one row per RoundRecord or
// JustificationRecord, with flight fields repeated for every row of the
// flight. Justification rows have empty times and zero durations.
type Row struct {
	FlightNumber    int
	OperatorID      string
	Area            string
	Date            string // "2006-01-02" in the station zone
	StartTime       string // fixed-width UTC RFC3339, empty for justifications
	EndTime         string // empty while open and for justifications
	DurationSeconds float64
	PauseSeconds    float64
	Status          string
	Anomalous       bool
	AutoClosed      bool
	Reason          string
}

// timeLayout is RFC3339 with a fixed fraction so row times sort
// lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FromCorpus flattens a corpus into export rows, ordered by date,
// flight number, then start time (justifications after timed rounds of
// the same flight).
func FromCorpus(corpus *ops.Corpus, loc *time.Location) []Row {
	if corpus == nil {
		return nil
	}

	rows := make([]Row, 0, len(corpus.Rounds)+len(corpus.Justifications))
	for _, r := range corpus.Rounds {
		row := Row{
			FlightNumber:    r.FlightNumber,
			OperatorID:      r.OperatorID,
			Area:            r.Area,
			Date:            r.StartTime.In(loc).Format("2006-01-02"),
			StartTime:       r.StartTime.UTC().Format(timeLayout),
			DurationSeconds: r.Active.Seconds(),
			PauseSeconds:    r.PauseTotal.Seconds(),
			Status:          string(r.Status),
			Anomalous:       r.Anomalous,
			AutoClosed:      r.AutoClosed,
		}
		if r.EndTime != nil {
			row.EndTime = r.EndTime.UTC().Format(timeLayout)
		}
		rows = append(rows, row)
	}

	for _, j := range corpus.Justifications {
		rows = append(rows, Row{
			FlightNumber: j.FlightNumber,
			OperatorID:   j.OperatorID,
			Area:         j.Area,
			Date:         j.Day,
			Status:       StatusJustified,
			Reason:       j.Reason,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.FlightNumber != b.FlightNumber {
			return a.FlightNumber < b.FlightNumber
		}
		// Empty start times (justifications) sort after timed rounds
		if (a.StartTime == "") != (b.StartTime == "") {
			return a.StartTime != ""
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.Area < b.Area
	})
	return rows
}
