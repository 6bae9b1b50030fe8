package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skywatch-ops/fieldlog/internal/ops"
)

// initFlights creates the flights table
func (s *Store) initFlights() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flight_number INTEGER NOT NULL,
			day TEXT NOT NULL,
			operator TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'open'
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flights table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_flights_operator ON flights(operator)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_day ON flights(day)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_status ON flights(status)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create flight index: %w", err)
		}
	}

	return nil
}

// InsertFlight stores a new flight record
func (s *Store) InsertFlight(f *ops.FlightRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO flights (flight_number, day, operator, start_time, end_time, status)
		VALUES (?, ?, ?, ?, NULL, ?)`,
		f.FlightNumber,
		f.Day,
		f.OperatorID,
		formatTime(f.StartTime),
		string(f.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert flight: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// CloseFlight sets the flight's end time and closes it
func (s *Store) CloseFlight(id int64, end time.Time) error {
	_, err := s.db.Exec(
		`UPDATE flights SET end_time = ?, status = 'closed' WHERE id = ?`,
		formatTime(end),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to close flight: %w", err)
	}
	return nil
}

func (s *Store) queryFlights(filter ops.Filter) ([]*ops.FlightRecord, error) {
	where, args := filterClause(filter, "start_time")
	rows, err := s.db.Query(
		`SELECT id, flight_number, day, operator, start_time, end_time, status
		FROM flights`+where+` ORDER BY start_time ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	return scanFlightRows(rows)
}

// openFlightFor returns the operator's open flight, if any
func (s *Store) openFlightFor(operatorID string) (*ops.FlightRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, flight_number, day, operator, start_time, end_time, status
		FROM flights
		WHERE operator = ? AND status = 'open'
		ORDER BY id DESC LIMIT 1`,
		operatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query open flight: %w", err)
	}
	defer rows.Close()

	flights, err := scanFlightRows(rows)
	if err != nil {
		return nil, err
	}
	if len(flights) == 0 {
		return nil, nil
	}
	return flights[0], nil
}

// scanFlightRows scans database rows into FlightRecord structs
func scanFlightRows(rows *sql.Rows) ([]*ops.FlightRecord, error) {
	var records []*ops.FlightRecord
	for rows.Next() {
		var record ops.FlightRecord
		var startTime string
		var endTime sql.NullString
		var status string

		if err := rows.Scan(
			&record.ID,
			&record.FlightNumber,
			&record.Day,
			&record.OperatorID,
			&startTime,
			&endTime,
			&status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}

		var err error
		record.StartTime, err = parseTime(startTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse flight start_time: %w", err)
		}
		if endTime.Valid {
			end, err := parseTime(endTime.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse flight end_time: %w", err)
			}
			record.EndTime = &end
		}
		record.Status = ops.FlightStatus(status)

		records = append(records, &record)
	}
	return records, rows.Err()
}
