package exchange

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skywatch-ops/fieldlog/internal/ops"
	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

// RowError reports one rejected import row
type RowError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// Result summarizes an import run
type Result struct {
	BatchID  string     `json:"batch_id"`
	Imported int        `json:"imported"`
	Rejected []RowError `json:"rejected"`
}

// Importer replays flat export rows through the session state machine,
// so every imported row passes the same validation as live operator
// actions. Row failures are collected and reported; import continues
// with subsequent rows.
type Importer struct {
	tracker *ops.Tracker
	loc     *time.Location
	logger  *logger.Logger
}

// NewImporter creates an importer bound to the live tracker
func NewImporter(tracker *ops.Tracker, loc *time.Location, logger *logger.Logger) *Importer {
	return &Importer{
		tracker: tracker,
		loc:     loc,
		logger:  logger.Named("import"),
	}
}

type parsedRow struct {
	Row
	line  int
	start time.Time
	end   time.Time // zero when open or justified
}

// flightKey identifies one source flight in the import stream. Flight
// numbers are reallocated on replay; the source number only groups rows.
type flightKey struct {
	date     string
	number   int
	operator string
}

// ImportCSV reads the flat tabular shape and replays it. Each source
// flight becomes a FlightStart, its rows in start-time order, then a
// FlightEnd; rows producing illegal state are rejected individually.
func (im *Importer) ImportCSV(r io.Reader) (*Result, error) {
	result := &Result{
		BatchID:  uuid.NewString(),
		Rejected: []RowError{},
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read import header: %w", err)
	}
	if !headerMatches(header) {
		return nil, fmt.Errorf("import header mismatch: got %v", header)
	}

	var rows []parsedRow
	line := 1
	for {
		line++
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: line, Error: err.Error()})
			continue
		}
		row, err := parseRow(fields, line)
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: line, Error: err.Error()})
			continue
		}
		rows = append(rows, row)
	}

	// Replay source flights in chronological order so per-day numbering
	// and per-operator monotonicity reproduce naturally. The cursor map
	// carries each operator's last replayed event time across flights.
	groups, order := groupRows(rows)
	cursors := make(map[string]time.Time)
	for _, key := range order {
		im.replayFlight(key, groups[key], cursors, result)
	}

	im.logger.Info("Import finished",
		logger.String("batch_id", result.BatchID),
		logger.Int("imported", result.Imported),
		logger.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

func headerMatches(header []string) bool {
	if len(header) != len(Header) {
		return false
	}
	for i, h := range Header {
		if strings.TrimSpace(header[i]) != h {
			return false
		}
	}
	return true
}

func parseRow(fields []string, line int) (parsedRow, error) {
	var row parsedRow
	row.line = line

	num, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return row, fmt.Errorf("invalid flight_number %q", fields[0])
	}
	row.FlightNumber = num
	row.OperatorID = strings.TrimSpace(fields[1])
	row.Area = strings.TrimSpace(fields[2])
	row.Date = strings.TrimSpace(fields[3])
	row.StartTime = strings.TrimSpace(fields[4])
	row.EndTime = strings.TrimSpace(fields[5])
	row.Status = strings.TrimSpace(fields[8])
	row.Reason = strings.TrimSpace(fields[11])

	if row.OperatorID == "" {
		return row, fmt.Errorf("missing operator")
	}
	if _, err := time.Parse("2006-01-02", row.Date); err != nil {
		return row, fmt.Errorf("invalid date %q", row.Date)
	}

	if row.DurationSeconds, err = strconv.ParseFloat(fields[6], 64); err != nil {
		return row, fmt.Errorf("invalid duration_seconds %q", fields[6])
	}
	if row.PauseSeconds, err = strconv.ParseFloat(fields[7], 64); err != nil {
		return row, fmt.Errorf("invalid pause_seconds %q", fields[7])
	}
	if row.Anomalous, err = strconv.ParseBool(fields[9]); err != nil {
		return row, fmt.Errorf("invalid anomalous flag %q", fields[9])
	}
	if row.AutoClosed, err = strconv.ParseBool(fields[10]); err != nil {
		return row, fmt.Errorf("invalid auto_closed flag %q", fields[10])
	}

	switch row.Status {
	case StatusJustified:
		if row.Reason == "" {
			return row, fmt.Errorf("justified row missing reason")
		}
	case StatusOpen, StatusClosed:
		if row.start, err = time.Parse(time.RFC3339Nano, row.StartTime); err != nil {
			return row, fmt.Errorf("invalid start_time %q", row.StartTime)
		}
		if row.Status == StatusClosed {
			if row.end, err = time.Parse(time.RFC3339Nano, row.EndTime); err != nil {
				return row, fmt.Errorf("invalid end_time %q", row.EndTime)
			}
		}
	default:
		return row, fmt.Errorf("unknown status %q", row.Status)
	}

	return row, nil
}

// groupRows buckets rows by source flight, rows and groups ordered
// chronologically
func groupRows(rows []parsedRow) (map[flightKey][]parsedRow, []flightKey) {
	groups := make(map[flightKey][]parsedRow)
	var order []flightKey
	seen := make(map[flightKey]bool)

	// Rows within a group stay sorted by start time; justification rows
	// (zero start) replay after the timed rounds of their flight.
	sortRows(rows)
	for _, row := range rows {
		key := flightKey{date: row.Date, number: row.FlightNumber, operator: row.OperatorID}
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}
	return groups, order
}

func sortRows(rows []parsedRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.FlightNumber != b.FlightNumber {
			return a.FlightNumber < b.FlightNumber
		}
		if a.start.IsZero() != b.start.IsZero() {
			return !a.start.IsZero()
		}
		return a.start.Before(b.start)
	})
}

// replayFlight replays one source flight. A failed flight start rejects
// every row in the group; a failed row is rejected alone and the replay
// moves on. An open round row leaves the flight open, matching its
// source state.
func (im *Importer) replayFlight(key flightKey, rows []parsedRow, cursors map[string]time.Time, result *Result) {
	startAt := flightStartTime(key, rows, im.loc)
	// A justification-only flight replays at the source day's midnight,
	// which may predate the operator's earlier flights that day; the
	// per-operator cursor keeps the event stream monotonic.
	if last, ok := cursors[key.operator]; ok && startAt.Before(last) {
		startAt = last
	}

	if _, err := im.tracker.Apply(ops.ActionEvent{
		OperatorID: key.operator,
		Kind:       ops.FlightStart,
		Timestamp:  startAt,
	}); err != nil {
		for _, row := range rows {
			result.Rejected = append(result.Rejected, RowError{Line: row.line, Error: err.Error()})
		}
		return
	}

	// The auto-closed round, if any, carries the flight's implicit end.
	// It replays last, as RoundStart plus FlightEnd, so the state machine
	// re-derives the marker instead of trusting the column.
	var autoRow *parsedRow
	rest := rows
	for i := range rows {
		if rows[i].Status == StatusClosed && rows[i].AutoClosed {
			autoRow = &rows[i]
			rest = append(append([]parsedRow{}, rows[:i]...), rows[i+1:]...)
			break
		}
	}

	cursor := startAt
	leaveOpen := false
	for _, row := range rest {
		rowEnd, err := im.replayRow(key.operator, row, cursor)
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: row.line, Error: err.Error()})
			continue
		}
		result.Imported++
		if rowEnd.IsZero() {
			leaveOpen = true
		} else if rowEnd.After(cursor) {
			cursor = rowEnd
		}
	}

	if autoRow != nil {
		if err := im.replayAutoClosedRow(key.operator, *autoRow); err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: autoRow.line, Error: err.Error()})
		} else {
			result.Imported++
			cursors[key.operator] = autoRow.end
			return
		}
	}

	cursors[key.operator] = cursor
	if leaveOpen {
		return
	}
	if _, err := im.tracker.Apply(ops.ActionEvent{
		OperatorID: key.operator,
		Kind:       ops.FlightEnd,
		Timestamp:  cursor,
	}); err != nil {
		im.logger.Warn("Failed to close replayed flight",
			logger.String("operator", key.operator),
			logger.String("day", key.date),
			logger.Error(err),
		)
	}
}

// replayAutoClosedRow opens the round and ends the flight at the row's
// end time; the auto-close policy closes the round and restores the
// marker.
func (im *Importer) replayAutoClosedRow(operator string, row parsedRow) error {
	if _, err := im.tracker.Apply(ops.ActionEvent{
		OperatorID: operator,
		Kind:       ops.RoundStart,
		Area:       row.Area,
		Timestamp:  row.start,
	}); err != nil {
		return err
	}
	im.replayPause(operator, row)

	_, err := im.tracker.Apply(ops.ActionEvent{
		OperatorID: operator,
		Kind:       ops.FlightEnd,
		Timestamp:  row.end,
	})
	return err
}

// replayRow emits the event sequence one row stands for. The returned
// time is the row's last event timestamp; zero means the row left a
// round open.
func (im *Importer) replayRow(operator string, row parsedRow, cursor time.Time) (time.Time, error) {
	if row.Status == StatusJustified {
		_, err := im.tracker.Apply(ops.ActionEvent{
			OperatorID: operator,
			Kind:       ops.Justify,
			Area:       row.Area,
			Reason:     row.Reason,
			Timestamp:  cursor,
		})
		return cursor, err
	}

	if _, err := im.tracker.Apply(ops.ActionEvent{
		OperatorID: operator,
		Kind:       ops.RoundStart,
		Area:       row.Area,
		Timestamp:  row.start,
	}); err != nil {
		return time.Time{}, err
	}

	im.replayPause(operator, row)

	if row.Status == StatusOpen {
		return time.Time{}, nil
	}

	if _, err := im.tracker.Apply(ops.ActionEvent{
		OperatorID: operator,
		Kind:       ops.RoundEnd,
		Timestamp:  row.end,
	}); err != nil {
		return time.Time{}, err
	}
	return row.end, nil
}

// replayPause replays the row's aggregate pause as a single interval at
// the round start. Individual pause intervals are not preserved by the
// flat shape, and a pause recorded longer than the round cannot be
// re-expressed through the state machine; it is clamped to the round
// span.
func (im *Importer) replayPause(operator string, row parsedRow) {
	if row.PauseSeconds <= 0 {
		return
	}
	pauseEnd := row.start.Add(time.Duration(row.PauseSeconds * float64(time.Second)))
	if row.Status != StatusOpen && pauseEnd.After(row.end) {
		pauseEnd = row.end
	}

	if _, err := im.tracker.Apply(ops.ActionEvent{
		OperatorID: operator,
		Kind:       ops.PauseStart,
		Reason:     string(ops.PauseOther),
		Timestamp:  row.start,
	}); err != nil {
		return
	}
	if _, err := im.tracker.Apply(ops.ActionEvent{
		OperatorID: operator,
		Kind:       ops.PauseEnd,
		Timestamp:  pauseEnd,
	}); err != nil {
		im.logger.Debug("Replayed pause left open", logger.Error(err))
	}
}

// flightStartTime picks the replayed FlightStart timestamp: the
// earliest round start, or local midnight of the source day for
// justification-only flights.
func flightStartTime(key flightKey, rows []parsedRow, loc *time.Location) time.Time {
	for _, row := range rows {
		if !row.start.IsZero() {
			return row.start
		}
	}
	day, err := time.ParseInLocation("2006-01-02", key.date, loc)
	if err != nil {
		return time.Now()
	}
	return day
}
