package ops

import "time"

// FlightStatus is the lifecycle state of a FlightRecord
type FlightStatus string

const (
	FlightOpen   FlightStatus = "open"
	FlightClosed FlightStatus = "closed"
)

// RoundStatus is the lifecycle state of a RoundRecord
type RoundStatus string

const (
	RoundOpen   RoundStatus = "open"
	RoundClosed RoundStatus = "closed"
)

// FlightRecord is one continuous drone-operation session by an operator.
// FlightNumber restarts at 1 each calendar day and is allocated atomically
// by the persistence layer.
type FlightRecord struct {
	ID           int64        `json:"id"`
	FlightNumber int          `json:"flight_number"`
	Day          string       `json:"day"` // local calendar day owning the number, "2006-01-02"
	OperatorID   string       `json:"operator_id"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      *time.Time   `json:"end_time,omitempty"`
	Status       FlightStatus `json:"status"`
}

// RoundRecord is one timed patrol pass over a named area, nested inside
// an open flight. Active is the duration with contained pause intervals
// subtracted; it is only meaningful once the round is closed.
type RoundRecord struct {
	ID           int64         `json:"id"`
	FlightID     int64         `json:"flight_id"`
	FlightNumber int           `json:"flight_number"`
	OperatorID   string        `json:"operator_id"`
	Area         string        `json:"area"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      *time.Time    `json:"end_time,omitempty"`
	Active       time.Duration `json:"active"`
	PauseTotal   time.Duration `json:"pause_total"`
	Status       RoundStatus   `json:"status"`
	Anomalous    bool          `json:"anomalous"`   // computed active duration was zero or negative
	AutoClosed   bool          `json:"auto_closed"` // closed implicitly when the owning flight ended
}

// PauseRecord is a sub-interval of a round excluded from its active
// duration (battery swap, meal, other).
type PauseRecord struct {
	ID         int64       `json:"id"`
	RoundID    int64       `json:"round_id"`
	OperatorID string      `json:"operator_id"`
	Reason     PauseReason `json:"reason"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    *time.Time  `json:"end_time,omitempty"`
}

// JustificationRecord substitutes for a scheduled round that did not
// occur. It never has a duration.
type JustificationRecord struct {
	ID           int64     `json:"id"`
	FlightID     int64     `json:"flight_id"`
	FlightNumber int       `json:"flight_number"`
	OperatorID   string    `json:"operator_id"`
	Area         string    `json:"area"`
	Day          string    `json:"day"`
	Timestamp    time.Time `json:"timestamp"`
	Reason       string    `json:"reason"`
}

// Snapshot is the per-operator session state the state machine operates
// on: the still-open records, if any, plus the timestamp of the last
// applied event for monotonicity checks.
type Snapshot struct {
	OperatorID  string        `json:"operator_id"`
	OpenFlight  *FlightRecord `json:"open_flight,omitempty"`
	OpenRound   *RoundRecord  `json:"open_round,omitempty"`
	OpenPause   *PauseRecord  `json:"open_pause,omitempty"`
	LastEventAt time.Time     `json:"last_event_at"`
}

func (f *FlightRecord) clone() *FlightRecord {
	if f == nil {
		return nil
	}
	cp := *f
	if f.EndTime != nil {
		end := *f.EndTime
		cp.EndTime = &end
	}
	return &cp
}

func (r *RoundRecord) clone() *RoundRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.EndTime != nil {
		end := *r.EndTime
		cp.EndTime = &end
	}
	return &cp
}

func (p *PauseRecord) clone() *PauseRecord {
	if p == nil {
		return nil
	}
	cp := *p
	if p.EndTime != nil {
		end := *p.EndTime
		cp.EndTime = &end
	}
	return &cp
}

// clone returns a deep copy detached from the live session records, so
// callers can hold it while later events mutate the originals.
func (s *Snapshot) clone() *Snapshot {
	cp := *s
	cp.OpenFlight = s.OpenFlight.clone()
	cp.OpenRound = s.OpenRound.clone()
	cp.OpenPause = s.OpenPause.clone()
	return &cp
}

// RecordDelta describes the records created or updated by one applied
// event. Warnings carry non-fatal markers such as the auto-close of a
// dangling round.
type RecordDelta struct {
	Flight        *FlightRecord        `json:"flight,omitempty"`
	Round         *RoundRecord         `json:"round,omitempty"`
	Pause         *PauseRecord         `json:"pause,omitempty"`
	Justification *JustificationRecord `json:"justification,omitempty"`
	Warnings      []string             `json:"warnings,omitempty"`
}

// Corpus is the full record set read back from the store for analytics
// and export.
type Corpus struct {
	Flights        []*FlightRecord        `json:"flights"`
	Rounds         []*RoundRecord         `json:"rounds"`
	Justifications []*JustificationRecord `json:"justifications"`
}

// Filter narrows a corpus read. Nil bounds mean unbounded; the window
// applies to record start times.
type Filter struct {
	From       *time.Time
	To         *time.Time
	OperatorID string
}
