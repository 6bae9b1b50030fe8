package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/skywatch-ops/fieldlog/internal/ops"
)

// initJustifications creates the justifications table
func (s *Store) initJustifications() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS justifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flight_id INTEGER NOT NULL,
			flight_number INTEGER NOT NULL,
			operator TEXT NOT NULL,
			area TEXT NOT NULL,
			day TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			reason TEXT NOT NULL,
			FOREIGN KEY (flight_id) REFERENCES flights(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create justifications table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_justifications_operator ON justifications(operator)`,
		`CREATE INDEX IF NOT EXISTS idx_justifications_day ON justifications(day)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create justification index: %w", err)
		}
	}

	return nil
}

// InsertJustification stores a justification record
func (s *Store) InsertJustification(j *ops.JustificationRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO justifications (flight_id, flight_number, operator, area, day, timestamp, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.FlightID,
		j.FlightNumber,
		j.OperatorID,
		j.Area,
		j.Day,
		formatTime(j.Timestamp),
		j.Reason,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert justification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *Store) queryJustifications(filter ops.Filter) ([]*ops.JustificationRecord, error) {
	where, args := filterClause(filter, "timestamp")
	rows, err := s.db.Query(
		`SELECT id, flight_id, flight_number, operator, area, day, timestamp, reason
		FROM justifications`+where+` ORDER BY timestamp ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query justifications: %w", err)
	}
	defer rows.Close()

	return scanJustificationRows(rows)
}

// scanJustificationRows scans database rows into JustificationRecord structs
func scanJustificationRows(rows *sql.Rows) ([]*ops.JustificationRecord, error) {
	var records []*ops.JustificationRecord
	for rows.Next() {
		var record ops.JustificationRecord
		var timestamp string

		if err := rows.Scan(
			&record.ID,
			&record.FlightID,
			&record.FlightNumber,
			&record.OperatorID,
			&record.Area,
			&record.Day,
			&timestamp,
			&record.Reason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan justification: %w", err)
		}

		var err error
		record.Timestamp, err = parseTime(timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse justification timestamp: %w", err)
		}

		records = append(records, &record)
	}
	return records, rows.Err()
}
