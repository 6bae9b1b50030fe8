package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skywatch-ops/fieldlog/internal/ops"
)

// initRounds creates the rounds table
func (s *Store) initRounds() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rounds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flight_id INTEGER NOT NULL,
			flight_number INTEGER NOT NULL,
			operator TEXT NOT NULL,
			area TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			active_secs REAL NOT NULL DEFAULT 0,
			pause_secs REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'open',
			anomalous INTEGER NOT NULL DEFAULT 0,
			auto_closed INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (flight_id) REFERENCES flights(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create rounds table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_rounds_operator ON rounds(operator)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_flight_id ON rounds(flight_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_area ON rounds(area)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_status ON rounds(status)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create round index: %w", err)
		}
	}

	return nil
}

// InsertRound stores a new round record
func (s *Store) InsertRound(r *ops.RoundRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO rounds (flight_id, flight_number, operator, area, start_time, end_time, active_secs, pause_secs, status, anomalous, auto_closed)
		VALUES (?, ?, ?, ?, ?, NULL, 0, 0, ?, 0, 0)`,
		r.FlightID,
		r.FlightNumber,
		r.OperatorID,
		r.Area,
		formatTime(r.StartTime),
		string(r.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert round: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// CloseRound sets the round's end time, derived durations and flags
func (s *Store) CloseRound(id int64, end time.Time, active, pauseTotal time.Duration, anomalous, autoClosed bool) error {
	_, err := s.db.Exec(
		`UPDATE rounds
		SET end_time = ?, active_secs = ?, pause_secs = ?, status = 'closed', anomalous = ?, auto_closed = ?
		WHERE id = ?`,
		formatTime(end),
		active.Seconds(),
		pauseTotal.Seconds(),
		boolToInt(anomalous),
		boolToInt(autoClosed),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to close round: %w", err)
	}
	return nil
}

func (s *Store) queryRounds(filter ops.Filter) ([]*ops.RoundRecord, error) {
	where, args := filterClause(filter, "start_time")
	rows, err := s.db.Query(
		`SELECT id, flight_id, flight_number, operator, area, start_time, end_time, active_secs, pause_secs, status, anomalous, auto_closed
		FROM rounds`+where+` ORDER BY start_time ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	return scanRoundRows(rows)
}

// openRoundFor returns the operator's open round, if any. The pause
// total for an open round is reconstructed from its closed pauses.
func (s *Store) openRoundFor(operatorID string) (*ops.RoundRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, flight_id, flight_number, operator, area, start_time, end_time, active_secs, pause_secs, status, anomalous, auto_closed
		FROM rounds
		WHERE operator = ? AND status = 'open'
		ORDER BY id DESC LIMIT 1`,
		operatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query open round: %w", err)
	}
	defer rows.Close()

	rounds, err := scanRoundRows(rows)
	if err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return nil, nil
	}
	round := rounds[0]

	pauseTotal, err := s.closedPauseTotal(round.ID)
	if err != nil {
		return nil, err
	}
	round.PauseTotal = pauseTotal
	return round, nil
}

// scanRoundRows scans database rows into RoundRecord structs
func scanRoundRows(rows *sql.Rows) ([]*ops.RoundRecord, error) {
	var records []*ops.RoundRecord
	for rows.Next() {
		var record ops.RoundRecord
		var startTime string
		var endTime sql.NullString
		var activeSecs, pauseSecs float64
		var status string
		var anomalous, autoClosed int

		if err := rows.Scan(
			&record.ID,
			&record.FlightID,
			&record.FlightNumber,
			&record.OperatorID,
			&record.Area,
			&startTime,
			&endTime,
			&activeSecs,
			&pauseSecs,
			&status,
			&anomalous,
			&autoClosed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}

		var err error
		record.StartTime, err = parseTime(startTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse round start_time: %w", err)
		}
		if endTime.Valid {
			end, err := parseTime(endTime.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse round end_time: %w", err)
			}
			record.EndTime = &end
		}
		record.Active = time.Duration(activeSecs * float64(time.Second))
		record.PauseTotal = time.Duration(pauseSecs * float64(time.Second))
		record.Status = ops.RoundStatus(status)
		record.Anomalous = anomalous != 0
		record.AutoClosed = autoClosed != 0

		records = append(records, &record)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
