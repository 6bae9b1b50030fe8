package ops

import "time"

// EventKind identifies the operator action carried by an ActionEvent
type EventKind string

const (
	FlightStart EventKind = "flight_start"
	FlightEnd   EventKind = "flight_end"
	RoundStart  EventKind = "round_start"
	RoundEnd    EventKind = "round_end"
	PauseStart  EventKind = "pause_start"
	PauseEnd    EventKind = "pause_end"
	Justify     EventKind = "justify"
)

// PauseReason categorizes an operational interruption
type PauseReason string

const (
	PauseBatterySwap PauseReason = "battery_swap"
	PauseMeal        PauseReason = "meal"
	PauseOther       PauseReason = "other"
)

// ActionEvent is a single operator action. Events are immutable once
// created; the session state machine consumes them in timestamp order
// per operator.
type ActionEvent struct {
	OperatorID string    `json:"operator_id"`
	Kind       EventKind `json:"kind"`
	Area       string    `json:"area,omitempty"`   // required for round_start and justify
	Reason     string    `json:"reason,omitempty"` // required for pause_start and justify
	Timestamp  time.Time `json:"timestamp"`
}

// ParsePauseReason normalizes a free-form reason string to a PauseReason.
// Unrecognized values fall back to PauseOther so operator typos never
// block a pause from being recorded.
func ParsePauseReason(s string) PauseReason {
	switch PauseReason(s) {
	case PauseBatterySwap, PauseMeal:
		return PauseReason(s)
	default:
		return PauseOther
	}
}

func (k EventKind) valid() bool {
	switch k {
	case FlightStart, FlightEnd, RoundStart, RoundEnd, PauseStart, PauseEnd, Justify:
		return true
	}
	return false
}
