package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skywatch-ops/fieldlog/internal/ops"
)

// initPauses creates the pauses table
func (s *Store) initPauses() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pauses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			round_id INTEGER NOT NULL,
			operator TEXT NOT NULL,
			reason TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			FOREIGN KEY (round_id) REFERENCES rounds(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create pauses table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_pauses_round_id ON pauses(round_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pauses_operator ON pauses(operator)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create pause index: %w", err)
		}
	}

	return nil
}

// InsertPause stores a new pause record
func (s *Store) InsertPause(p *ops.PauseRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO pauses (round_id, operator, reason, start_time, end_time)
		VALUES (?, ?, ?, ?, NULL)`,
		p.RoundID,
		p.OperatorID,
		string(p.Reason),
		formatTime(p.StartTime),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pause: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// ClosePause sets the pause's end time
func (s *Store) ClosePause(id int64, end time.Time) error {
	_, err := s.db.Exec(
		`UPDATE pauses SET end_time = ? WHERE id = ?`,
		formatTime(end),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to close pause: %w", err)
	}
	return nil
}

// openPauseFor returns the open pause on the given round, if any
func (s *Store) openPauseFor(roundID int64) (*ops.PauseRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, round_id, operator, reason, start_time, end_time
		FROM pauses
		WHERE round_id = ? AND end_time IS NULL
		ORDER BY id DESC LIMIT 1`,
		roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query open pause: %w", err)
	}
	defer rows.Close()

	pauses, err := scanPauseRows(rows)
	if err != nil {
		return nil, err
	}
	if len(pauses) == 0 {
		return nil, nil
	}
	return pauses[0], nil
}

// closedPauseTotal sums the closed pause intervals on a round
func (s *Store) closedPauseTotal(roundID int64) (time.Duration, error) {
	rows, err := s.db.Query(
		`SELECT id, round_id, operator, reason, start_time, end_time
		FROM pauses
		WHERE round_id = ? AND end_time IS NOT NULL`,
		roundID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to query closed pauses: %w", err)
	}
	defer rows.Close()

	pauses, err := scanPauseRows(rows)
	if err != nil {
		return 0, err
	}

	var total time.Duration
	for _, p := range pauses {
		total += p.EndTime.Sub(p.StartTime)
	}
	return total, nil
}

// scanPauseRows scans database rows into PauseRecord structs
func scanPauseRows(rows *sql.Rows) ([]*ops.PauseRecord, error) {
	var records []*ops.PauseRecord
	for rows.Next() {
		var record ops.PauseRecord
		var reason, startTime string
		var endTime sql.NullString

		if err := rows.Scan(
			&record.ID,
			&record.RoundID,
			&record.OperatorID,
			&reason,
			&startTime,
			&endTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pause: %w", err)
		}

		var err error
		record.StartTime, err = parseTime(startTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse pause start_time: %w", err)
		}
		if endTime.Valid {
			end, err := parseTime(endTime.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse pause end_time: %w", err)
			}
			record.EndTime = &end
		}
		record.Reason = ops.PauseReason(reason)

		records = append(records, &record)
	}
	return records, rows.Err()
}
