package ops

import "time"

// Store is the persistence gateway the session state machine and the
// analytics readers depend on. Implementations must make each single
// insert/update atomic and provide read-your-writes consistency within
// one process; the core never retries a failed call.
type Store interface {
	// InsertFlight persists a new open flight and returns its id.
	InsertFlight(f *FlightRecord) (int64, error)
	// CloseFlight sets the flight's end time and closes it.
	CloseFlight(id int64, end time.Time) error

	// InsertRound persists a new open round and returns its id.
	InsertRound(r *RoundRecord) (int64, error)
	// CloseRound sets the round's end time, derived durations and flags.
	CloseRound(id int64, end time.Time, active, pauseTotal time.Duration, anomalous, autoClosed bool) error

	// InsertPause persists a new open pause and returns its id.
	InsertPause(p *PauseRecord) (int64, error)
	// ClosePause sets the pause's end time.
	ClosePause(id int64, end time.Time) error

	// InsertJustification persists a justification and returns its id.
	InsertJustification(j *JustificationRecord) (int64, error)

	// NextFlightNumber atomically allocates the next flight number for
	// the given calendar day ("2006-01-02"), starting at 1. The counter
	// must survive restarts and concurrent callers.
	NextFlightNumber(day string) (int, error)

	// SnapshotFor returns the operator's current session state: any
	// still-open flight/round/pause and the latest persisted event time.
	SnapshotFor(operatorID string) (*Snapshot, error)

	// QueryRecords reads the record corpus matching the filter, ordered
	// by start time ascending.
	QueryRecords(filter Filter) (*Corpus, error)

	// ClearAll removes every record. No partial-clear semantics.
	ClearAll() error
}
