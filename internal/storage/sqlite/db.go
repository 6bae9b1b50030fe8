package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skywatch-ops/fieldlog/internal/ops"
	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

// timeLayout is RFC3339 with a fixed nine-digit fraction so stored UTC
// timestamps sort lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Store implements the ops.Store persistence gateway on SQLite.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

var _ ops.Store = (*Store)(nil)

// Open opens (or creates) the SQLite database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time keeps the per-day counter allocation simple
	// and is plenty for a single-site field log.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// New creates a new SQLite store and initializes the schema.
func New(db *sql.DB, logger *logger.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		logger: logger.Named("sqlite-store"),
	}
	if err := s.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return s, nil
}

// initDB initializes the database tables
func (s *Store) initDB() error {
	for _, init := range []func() error{
		s.initFlights,
		s.initRounds,
		s.initPauses,
		s.initJustifications,
		s.initFlightNumbers,
	} {
		if err := init(); err != nil {
			return err
		}
	}
	return nil
}

// initFlightNumbers creates the per-day flight counter table
func (s *Store) initFlightNumbers() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flight_numbers (
			day TEXT PRIMARY KEY,
			counter INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flight_numbers table: %w", err)
	}
	return nil
}

// NextFlightNumber atomically allocates the next flight number for the
// given calendar day. The upsert executes as a single statement, so
// concurrent callers never observe the same number.
func (s *Store) NextFlightNumber(day string) (int, error) {
	var counter int
	err := s.db.QueryRow(
		`INSERT INTO flight_numbers (day, counter) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET counter = counter + 1
		RETURNING counter`,
		day,
	).Scan(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate flight number: %w", err)
	}
	return counter, nil
}

// QueryRecords reads the full record corpus matching the filter, each
// record class ordered by start time ascending.
func (s *Store) QueryRecords(filter ops.Filter) (*ops.Corpus, error) {
	flights, err := s.queryFlights(filter)
	if err != nil {
		return nil, err
	}
	rounds, err := s.queryRounds(filter)
	if err != nil {
		return nil, err
	}
	justifications, err := s.queryJustifications(filter)
	if err != nil {
		return nil, err
	}
	return &ops.Corpus{
		Flights:        flights,
		Rounds:         rounds,
		Justifications: justifications,
	}, nil
}

// filterClause builds the shared WHERE clause for a corpus query.
// column is the record's time column to window on.
func filterClause(filter ops.Filter, column string) (string, []any) {
	var conds []string
	var args []any

	if filter.OperatorID != "" {
		conds = append(conds, "operator = ?")
		args = append(args, filter.OperatorID)
	}
	if filter.From != nil {
		conds = append(conds, column+" >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, column+" <= ?")
		args = append(args, formatTime(*filter.To))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ClearAll removes every record and resets the flight counters. This is
// the administrative bulk clear; there are no partial-clear semantics.
func (s *Store) ClearAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin clear transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"pauses", "rounds", "justifications", "flights", "flight_numbers"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}

	s.logger.Warn("All records cleared")
	return nil
}
