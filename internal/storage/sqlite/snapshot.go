package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/skywatch-ops/fieldlog/internal/ops"
)

// SnapshotFor reconstructs the operator's session state from durable
// records: the still-open flight/round/pause plus the latest persisted
// event timestamp for monotonicity enforcement across restarts.
func (s *Store) SnapshotFor(operatorID string) (*ops.Snapshot, error) {
	snap := &ops.Snapshot{OperatorID: operatorID}

	flight, err := s.openFlightFor(operatorID)
	if err != nil {
		return nil, err
	}
	snap.OpenFlight = flight

	if flight != nil {
		round, err := s.openRoundFor(operatorID)
		if err != nil {
			return nil, err
		}
		snap.OpenRound = round

		if round != nil {
			pause, err := s.openPauseFor(round.ID)
			if err != nil {
				return nil, err
			}
			snap.OpenPause = pause
		}
	}

	last, err := s.lastEventTime(operatorID)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		snap.LastEventAt, err = parseTime(last.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last event time: %w", err)
		}
	}

	return snap, nil
}

// lastEventTime returns the max timestamp across all record tables for
// an operator. Stored timestamps use a fixed-width UTC layout, so MAX
// over the text column is chronological.
func (s *Store) lastEventTime(operatorID string) (sql.NullString, error) {
	var last sql.NullString
	err := s.db.QueryRow(
		`SELECT MAX(ts) FROM (
			SELECT start_time AS ts FROM flights WHERE operator = ?1
			UNION ALL SELECT end_time FROM flights WHERE operator = ?1 AND end_time IS NOT NULL
			UNION ALL SELECT start_time FROM rounds WHERE operator = ?1
			UNION ALL SELECT end_time FROM rounds WHERE operator = ?1 AND end_time IS NOT NULL
			UNION ALL SELECT start_time FROM pauses WHERE operator = ?1
			UNION ALL SELECT end_time FROM pauses WHERE operator = ?1 AND end_time IS NOT NULL
			UNION ALL SELECT timestamp FROM justifications WHERE operator = ?1
		)`,
		operatorID,
	).Scan(&last)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to query last event time: %w", err)
	}
	return last, nil
}
