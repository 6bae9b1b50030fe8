package ops

import (
	"sort"
	"sync"
	"time"

	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

// Tracker is the session state machine. It turns a stream of
// ActionEvents into validated record transitions, holding one snapshot
// per operator. Different operators may apply events concurrently; a
// single operator's events are serialized by a per-operator lock held
// for the duration of one Apply call.
type Tracker struct {
	store  Store
	areas  map[string]struct{}
	loc    *time.Location
	logger *logger.Logger

	mu    sync.Mutex
	slots map[string]*operatorSlot
}

// operatorSlot serializes access to one operator's session state. snap
// is nil until loaded from the store, and invalidated after a
// persistence failure so the next Apply re-reads durable state.
type operatorSlot struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewTracker creates a session tracker over the given store. areas is
// the fixed patrol-area vocabulary; loc is the zone used for calendar
// day bucketing.
func NewTracker(store Store, areas []string, loc *time.Location, logger *logger.Logger) *Tracker {
	set := make(map[string]struct{}, len(areas))
	for _, a := range areas {
		set[a] = struct{}{}
	}
	return &Tracker{
		store:  store,
		areas:  set,
		loc:    loc,
		logger: logger.Named("session"),
		slots:  make(map[string]*operatorSlot),
	}
}

// Areas returns the patrol-area vocabulary, sorted.
func (t *Tracker) Areas() []string {
	out := make([]string, 0, len(t.areas))
	for a := range t.areas {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ValidArea reports whether area belongs to the configured vocabulary.
func (t *Tracker) ValidArea(area string) bool {
	_, ok := t.areas[area]
	return ok
}

// Reset drops all cached operator snapshots, forcing reloads from the
// store. Called after the administrative clear or a bulk replace.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = make(map[string]*operatorSlot)
}

func (t *Tracker) slot(operatorID string) *operatorSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[operatorID]
	if !ok {
		s = &operatorSlot{}
		t.slots[operatorID] = s
	}
	return s
}

// State returns a copy of the operator's current session snapshot.
func (t *Tracker) State(operatorID string) (*Snapshot, error) {
	s := t.slot(operatorID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.ensureLoaded(s, operatorID); err != nil {
		return nil, err
	}
	return s.snap.clone(), nil
}

// Apply validates one event against the operator's current state,
// persists the resulting record transitions, and returns the delta.
// A failed Apply leaves prior state unchanged.
func (t *Tracker) Apply(ev ActionEvent) (*RecordDelta, error) {
	if ev.OperatorID == "" {
		return nil, newError(KindIllegalTransition, "event has no operator id")
	}
	if !ev.Kind.valid() {
		return nil, newError(KindIllegalTransition, "unknown event kind %q", ev.Kind)
	}
	if ev.Timestamp.IsZero() {
		return nil, newError(KindIllegalTransition, "event has no timestamp")
	}

	s := t.slot(ev.OperatorID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.ensureLoaded(s, ev.OperatorID); err != nil {
		return nil, err
	}
	snap := s.snap

	if !snap.LastEventAt.IsZero() && ev.Timestamp.Before(snap.LastEventAt) {
		return nil, newError(KindNonMonotonicTime,
			"event at %s predates last event at %s",
			ev.Timestamp.Format(time.RFC3339), snap.LastEventAt.Format(time.RFC3339))
	}

	var (
		delta *RecordDelta
		err   error
	)
	switch ev.Kind {
	case FlightStart:
		delta, err = t.applyFlightStart(snap, ev)
	case FlightEnd:
		delta, err = t.applyFlightEnd(snap, ev)
	case RoundStart:
		delta, err = t.applyRoundStart(snap, ev)
	case RoundEnd:
		delta, err = t.applyRoundEnd(snap, ev)
	case PauseStart:
		delta, err = t.applyPauseStart(snap, ev)
	case PauseEnd:
		delta, err = t.applyPauseEnd(snap, ev)
	case Justify:
		delta, err = t.applyJustify(snap, ev)
	}
	if err != nil {
		// After a persistence failure the in-memory snapshot may be
		// ahead of or behind durable state; force a reload next time.
		if KindOf(err) == KindPersistenceFailure {
			s.snap = nil
		}
		return nil, err
	}

	snap.LastEventAt = ev.Timestamp
	t.logger.Debug("Event applied",
		logger.String("operator", ev.OperatorID),
		logger.String("kind", string(ev.Kind)),
		logger.Time("timestamp", ev.Timestamp),
	)
	return delta, nil
}

func (t *Tracker) ensureLoaded(s *operatorSlot, operatorID string) error {
	if s.snap != nil {
		return nil
	}
	snap, err := t.store.SnapshotFor(operatorID)
	if err != nil {
		return persistenceError("load session snapshot", err)
	}
	if snap == nil {
		snap = &Snapshot{OperatorID: operatorID}
	}
	s.snap = snap
	return nil
}

func (t *Tracker) applyFlightStart(snap *Snapshot, ev ActionEvent) (*RecordDelta, error) {
	if snap.OpenFlight != nil {
		return nil, newError(KindIllegalTransition,
			"flight %d already open for operator %s", snap.OpenFlight.FlightNumber, ev.OperatorID)
	}

	day := ev.Timestamp.In(t.loc).Format("2006-01-02")
	num, err := t.store.NextFlightNumber(day)
	if err != nil {
		return nil, persistenceError("allocate flight number", err)
	}

	flight := &FlightRecord{
		FlightNumber: num,
		Day:          day,
		OperatorID:   ev.OperatorID,
		StartTime:    ev.Timestamp,
		Status:       FlightOpen,
	}
	id, err := t.store.InsertFlight(flight)
	if err != nil {
		return nil, persistenceError("insert flight", err)
	}
	flight.ID = id

	snap.OpenFlight = flight
	return &RecordDelta{Flight: flight}, nil
}

func (t *Tracker) applyFlightEnd(snap *Snapshot, ev ActionEvent) (*RecordDelta, error) {
	if snap.OpenFlight == nil {
		return nil, newError(KindIllegalTransition, "no open flight for operator %s", ev.OperatorID)
	}

	delta := &RecordDelta{}

	// Auto-close policy: a still-open round is closed at the flight end
	// time and marked, never silently dropped.
	if snap.OpenRound != nil {
		round, warn, err := t.closeRound(snap, ev.Timestamp, true)
		if err != nil {
			return nil, err
		}
		delta.Round = round
		delta.Warnings = append(delta.Warnings, warn...)
		delta.Warnings = append(delta.Warnings,
			"round auto-closed at flight end: "+round.Area)
		t.logger.Warn("Dangling round auto-closed at flight end",
			logger.String("operator", ev.OperatorID),
			logger.String("area", round.Area),
			logger.Int64("round_id", round.ID),
		)
	}

	flight := snap.OpenFlight
	if err := t.store.CloseFlight(flight.ID, ev.Timestamp); err != nil {
		return nil, persistenceError("close flight", err)
	}
	end := ev.Timestamp
	flight.EndTime = &end
	flight.Status = FlightClosed
	delta.Flight = flight

	snap.OpenFlight = nil
	return delta, nil
}

func (t *Tracker) applyRoundStart(snap *Snapshot, ev ActionEvent) (*RecordDelta, error) {
	if snap.OpenFlight == nil {
		return nil, newError(KindIllegalTransition, "round_start requires an open flight")
	}
	if snap.OpenRound != nil {
		return nil, newError(KindIllegalTransition,
			"round already open in area %s", snap.OpenRound.Area)
	}
	if !t.ValidArea(ev.Area) {
		return nil, newError(KindInvalidArea, "unknown patrol area %q", ev.Area)
	}

	round := &RoundRecord{
		FlightID:     snap.OpenFlight.ID,
		FlightNumber: snap.OpenFlight.FlightNumber,
		OperatorID:   ev.OperatorID,
		Area:         ev.Area,
		StartTime:    ev.Timestamp,
		Status:       RoundOpen,
	}
	id, err := t.store.InsertRound(round)
	if err != nil {
		return nil, persistenceError("insert round", err)
	}
	round.ID = id

	snap.OpenRound = round
	return &RecordDelta{Round: round}, nil
}

func (t *Tracker) applyRoundEnd(snap *Snapshot, ev ActionEvent) (*RecordDelta, error) {
	if snap.OpenRound == nil {
		return nil, newError(KindIllegalTransition, "no open round for operator %s", ev.OperatorID)
	}

	round, warnings, err := t.closeRound(snap, ev.Timestamp, false)
	if err != nil {
		return nil, err
	}
	return &RecordDelta{Round: round, Warnings: warnings}, nil
}

// closeRound ends the open round at the given time, implicitly ending
// any open pause first, and computes the active duration:
// (end - start) - sum of pause intervals. Zero or negative results are
// retained but flagged as anomalous, with negatives clamped to zero.
func (t *Tracker) closeRound(snap *Snapshot, end time.Time, auto bool) (*RoundRecord, []string, error) {
	round := snap.OpenRound

	var warnings []string
	if snap.OpenPause != nil {
		pause := snap.OpenPause
		if err := t.store.ClosePause(pause.ID, end); err != nil {
			return nil, nil, persistenceError("close pause", err)
		}
		pend := end
		pause.EndTime = &pend
		round.PauseTotal += end.Sub(pause.StartTime)
		snap.OpenPause = nil
		warnings = append(warnings, "open pause ended at round end")
	}

	active := end.Sub(round.StartTime) - round.PauseTotal
	anomalous := active <= 0
	if active < 0 {
		active = 0
	}

	if err := t.store.CloseRound(round.ID, end, active, round.PauseTotal, anomalous, auto); err != nil {
		return nil, nil, persistenceError("close round", err)
	}
	rend := end
	round.EndTime = &rend
	round.Active = active
	round.Anomalous = anomalous
	round.AutoClosed = auto
	round.Status = RoundClosed

	snap.OpenRound = nil
	return round, warnings, nil
}

func (t *Tracker) applyPauseStart(snap *Snapshot, ev ActionEvent) (*RecordDelta, error) {
	if snap.OpenRound == nil {
		return nil, newError(KindIllegalTransition, "pause_start requires an open round")
	}
	if snap.OpenPause != nil {
		return nil, newError(KindIllegalTransition, "pause already open")
	}
	if ev.Reason == "" {
		return nil, newError(KindIllegalTransition, "pause_start requires a reason")
	}

	pause := &PauseRecord{
		RoundID:    snap.OpenRound.ID,
		OperatorID: ev.OperatorID,
		Reason:     ParsePauseReason(ev.Reason),
		StartTime:  ev.Timestamp,
	}
	id, err := t.store.InsertPause(pause)
	if err != nil {
		return nil, persistenceError("insert pause", err)
	}
	pause.ID = id

	snap.OpenPause = pause
	return &RecordDelta{Pause: pause}, nil
}

func (t *Tracker) applyPauseEnd(snap *Snapshot, ev ActionEvent) (*RecordDelta, error) {
	if snap.OpenPause == nil {
		return nil, newError(KindIllegalTransition, "no open pause for operator %s", ev.OperatorID)
	}

	pause := snap.OpenPause
	if err := t.store.ClosePause(pause.ID, ev.Timestamp); err != nil {
		return nil, persistenceError("close pause", err)
	}
	end := ev.Timestamp
	pause.EndTime = &end
	snap.OpenRound.PauseTotal += ev.Timestamp.Sub(pause.StartTime)

	snap.OpenPause = nil
	return &RecordDelta{Pause: pause}, nil
}

func (t *Tracker) applyJustify(snap *Snapshot, ev ActionEvent) (*RecordDelta, error) {
	if snap.OpenFlight == nil {
		return nil, newError(KindIllegalTransition, "justify requires an open flight")
	}
	if snap.OpenRound != nil {
		return nil, newError(KindIllegalTransition, "cannot justify while a round is open")
	}
	if !t.ValidArea(ev.Area) {
		return nil, newError(KindInvalidArea, "unknown patrol area %q", ev.Area)
	}
	if ev.Reason == "" {
		return nil, newError(KindIllegalTransition, "justify requires a reason")
	}

	just := &JustificationRecord{
		FlightID:     snap.OpenFlight.ID,
		FlightNumber: snap.OpenFlight.FlightNumber,
		OperatorID:   ev.OperatorID,
		Area:         ev.Area,
		Day:          ev.Timestamp.In(t.loc).Format("2006-01-02"),
		Timestamp:    ev.Timestamp,
		Reason:       ev.Reason,
	}
	id, err := t.store.InsertJustification(just)
	if err != nil {
		return nil, persistenceError("insert justification", err)
	}
	just.ID = id

	return &RecordDelta{Justification: just}, nil
}
