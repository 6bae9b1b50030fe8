// Package memory provides an in-memory ops.Store. It backs tests and
// ephemeral deployments where the log does not need to survive the
// process.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/skywatch-ops/fieldlog/internal/ops"
)

// Store is an in-memory persistence gateway. Safe for concurrent use.
type Store struct {
	mu             sync.Mutex
	nextID         int64
	flights        []*ops.FlightRecord
	rounds         []*ops.RoundRecord
	pauses         []*ops.PauseRecord
	justifications []*ops.JustificationRecord
	counters       map[string]int
}

var _ ops.Store = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	return &Store{counters: make(map[string]int)}
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

// InsertFlight stores a copy of the flight and returns its id
func (s *Store) InsertFlight(f *ops.FlightRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *f
	cp.ID = s.allocID()
	s.flights = append(s.flights, &cp)
	return cp.ID, nil
}

// CloseFlight sets the flight's end time and closes it
func (s *Store) CloseFlight(id int64, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.flights {
		if f.ID == id {
			e := end
			f.EndTime = &e
			f.Status = ops.FlightClosed
			return nil
		}
	}
	return fmt.Errorf("flight %d not found", id)
}

// InsertRound stores a copy of the round and returns its id
func (s *Store) InsertRound(r *ops.RoundRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.ID = s.allocID()
	s.rounds = append(s.rounds, &cp)
	return cp.ID, nil
}

// CloseRound sets the round's end time, derived durations and flags
func (s *Store) CloseRound(id int64, end time.Time, active, pauseTotal time.Duration, anomalous, autoClosed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rounds {
		if r.ID == id {
			e := end
			r.EndTime = &e
			r.Active = active
			r.PauseTotal = pauseTotal
			r.Status = ops.RoundClosed
			r.Anomalous = anomalous
			r.AutoClosed = autoClosed
			return nil
		}
	}
	return fmt.Errorf("round %d not found", id)
}

// InsertPause stores a copy of the pause and returns its id
func (s *Store) InsertPause(p *ops.PauseRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	cp.ID = s.allocID()
	s.pauses = append(s.pauses, &cp)
	return cp.ID, nil
}

// ClosePause sets the pause's end time
func (s *Store) ClosePause(id int64, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pauses {
		if p.ID == id {
			e := end
			p.EndTime = &e
			return nil
		}
	}
	return fmt.Errorf("pause %d not found", id)
}

// InsertJustification stores a copy of the justification and returns its id
func (s *Store) InsertJustification(j *ops.JustificationRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *j
	cp.ID = s.allocID()
	s.justifications = append(s.justifications, &cp)
	return cp.ID, nil
}

// NextFlightNumber atomically allocates the next flight number for a day
func (s *Store) NextFlightNumber(day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[day]++
	return s.counters[day], nil
}

// SnapshotFor reconstructs the operator's open records and latest
// persisted event time
func (s *Store) SnapshotFor(operatorID string) (*ops.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &ops.Snapshot{OperatorID: operatorID}

	for i := len(s.flights) - 1; i >= 0; i-- {
		f := s.flights[i]
		if f.OperatorID == operatorID && f.Status == ops.FlightOpen {
			cp := *f
			snap.OpenFlight = &cp
			break
		}
	}

	if snap.OpenFlight != nil {
		for i := len(s.rounds) - 1; i >= 0; i-- {
			r := s.rounds[i]
			if r.OperatorID == operatorID && r.Status == ops.RoundOpen {
				cp := *r
				cp.PauseTotal = 0
				for _, p := range s.pauses {
					if p.RoundID == r.ID && p.EndTime != nil {
						cp.PauseTotal += p.EndTime.Sub(p.StartTime)
					}
				}
				snap.OpenRound = &cp
				break
			}
		}
		if snap.OpenRound != nil {
			for i := len(s.pauses) - 1; i >= 0; i-- {
				p := s.pauses[i]
				if p.RoundID == snap.OpenRound.ID && p.EndTime == nil {
					cp := *p
					snap.OpenPause = &cp
					break
				}
			}
		}
	}

	touch := func(t time.Time) {
		if t.After(snap.LastEventAt) {
			snap.LastEventAt = t
		}
	}
	for _, f := range s.flights {
		if f.OperatorID != operatorID {
			continue
		}
		touch(f.StartTime)
		if f.EndTime != nil {
			touch(*f.EndTime)
		}
	}
	for _, r := range s.rounds {
		if r.OperatorID != operatorID {
			continue
		}
		touch(r.StartTime)
		if r.EndTime != nil {
			touch(*r.EndTime)
		}
	}
	for _, p := range s.pauses {
		if p.OperatorID != operatorID {
			continue
		}
		touch(p.StartTime)
		if p.EndTime != nil {
			touch(*p.EndTime)
		}
	}
	for _, j := range s.justifications {
		if j.OperatorID == operatorID {
			touch(j.Timestamp)
		}
	}

	return snap, nil
}

// QueryRecords returns copies of the records matching the filter,
// ordered by start time ascending
func (s *Store) QueryRecords(filter ops.Filter) (*ops.Corpus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := func(operator string, t time.Time) bool {
		if filter.OperatorID != "" && operator != filter.OperatorID {
			return false
		}
		if filter.From != nil && t.Before(*filter.From) {
			return false
		}
		if filter.To != nil && t.After(*filter.To) {
			return false
		}
		return true
	}

	corpus := &ops.Corpus{}
	for _, f := range s.flights {
		if matches(f.OperatorID, f.StartTime) {
			cp := *f
			corpus.Flights = append(corpus.Flights, &cp)
		}
	}
	for _, r := range s.rounds {
		if matches(r.OperatorID, r.StartTime) {
			cp := *r
			corpus.Rounds = append(corpus.Rounds, &cp)
		}
	}
	for _, j := range s.justifications {
		if matches(j.OperatorID, j.Timestamp) {
			cp := *j
			corpus.Justifications = append(corpus.Justifications, &cp)
		}
	}
	return corpus, nil
}

// ClearAll removes every record and resets the flight counters
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flights = nil
	s.rounds = nil
	s.pauses = nil
	s.justifications = nil
	s.counters = make(map[string]int)
	return nil
}
