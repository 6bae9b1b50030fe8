package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-ops/fieldlog/internal/ops"
	"github.com/skywatch-ops/fieldlog/internal/storage/sqlite"
	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "fieldlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := sqlite.New(db, logger.Nop())
	require.NoError(t, err)
	return store
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 14, hour, min, 0, 0, time.UTC)
}

func TestNextFlightNumber(t *testing.T) {
	store := newStore(t)

	for want := 1; want <= 3; want++ {
		num, err := store.NextFlightNumber("2026-03-14")
		require.NoError(t, err)
		assert.Equal(t, want, num)
	}

	// A different day has its own counter.
	num, err := store.NextFlightNumber("2026-03-15")
	require.NoError(t, err)
	assert.Equal(t, 1, num)
}

func TestFlightRoundTrip(t *testing.T) {
	store := newStore(t)

	flight := &ops.FlightRecord{
		FlightNumber: 1,
		Day:          "2026-03-14",
		OperatorID:   "op-1",
		StartTime:    at(9, 0),
		Status:       ops.FlightOpen,
	}
	id, err := store.InsertFlight(flight)
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, store.CloseFlight(id, at(10, 0)))

	corpus, err := store.QueryRecords(ops.Filter{})
	require.NoError(t, err)
	require.Len(t, corpus.Flights, 1)

	got := corpus.Flights[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 1, got.FlightNumber)
	assert.Equal(t, "2026-03-14", got.Day)
	assert.True(t, got.StartTime.Equal(at(9, 0)))
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(at(10, 0)))
	assert.Equal(t, ops.FlightClosed, got.Status)
}

func TestRoundDurationsSurviveStorage(t *testing.T) {
	store := newStore(t)

	flightID, err := store.InsertFlight(&ops.FlightRecord{
		FlightNumber: 1, Day: "2026-03-14", OperatorID: "op-1",
		StartTime: at(9, 0), Status: ops.FlightOpen,
	})
	require.NoError(t, err)

	roundID, err := store.InsertRound(&ops.RoundRecord{
		FlightID: flightID, FlightNumber: 1, OperatorID: "op-1",
		Area: "Perimeter", StartTime: at(9, 0), Status: ops.RoundOpen,
	})
	require.NoError(t, err)

	require.NoError(t, store.CloseRound(roundID, at(9, 30), 24*time.Minute, 6*time.Minute, false, true))

	corpus, err := store.QueryRecords(ops.Filter{})
	require.NoError(t, err)
	require.Len(t, corpus.Rounds, 1)

	got := corpus.Rounds[0]
	assert.Equal(t, 24*time.Minute, got.Active)
	assert.Equal(t, 6*time.Minute, got.PauseTotal)
	assert.False(t, got.Anomalous)
	assert.True(t, got.AutoClosed)
	assert.Equal(t, ops.RoundClosed, got.Status)
}

func TestSnapshotForReconstructsOpenChain(t *testing.T) {
	store := newStore(t)

	flightID, err := store.InsertFlight(&ops.FlightRecord{
		FlightNumber: 1, Day: "2026-03-14", OperatorID: "op-1",
		StartTime: at(9, 0), Status: ops.FlightOpen,
	})
	require.NoError(t, err)

	roundID, err := store.InsertRound(&ops.RoundRecord{
		FlightID: flightID, FlightNumber: 1, OperatorID: "op-1",
		Area: "Perimeter", StartTime: at(9, 5), Status: ops.RoundOpen,
	})
	require.NoError(t, err)

	// One closed pause, one still open.
	pauseID, err := store.InsertPause(&ops.PauseRecord{
		RoundID: roundID, OperatorID: "op-1", Reason: ops.PauseMeal, StartTime: at(9, 10),
	})
	require.NoError(t, err)
	require.NoError(t, store.ClosePause(pauseID, at(9, 13)))

	_, err = store.InsertPause(&ops.PauseRecord{
		RoundID: roundID, OperatorID: "op-1", Reason: ops.PauseBatterySwap, StartTime: at(9, 20),
	})
	require.NoError(t, err)

	snap, err := store.SnapshotFor("op-1")
	require.NoError(t, err)
	require.NotNil(t, snap.OpenFlight)
	assert.Equal(t, flightID, snap.OpenFlight.ID)
	require.NotNil(t, snap.OpenRound)
	assert.Equal(t, roundID, snap.OpenRound.ID)
	assert.Equal(t, 3*time.Minute, snap.OpenRound.PauseTotal, "closed pauses re-accumulate")
	require.NotNil(t, snap.OpenPause)
	assert.Equal(t, ops.PauseBatterySwap, snap.OpenPause.Reason)
	assert.True(t, snap.LastEventAt.Equal(at(9, 20)), "latest persisted timestamp wins")

	// An operator with no records gets an empty snapshot, not an error.
	empty, err := store.SnapshotFor("op-2")
	require.NoError(t, err)
	assert.Nil(t, empty.OpenFlight)
	assert.True(t, empty.LastEventAt.IsZero())
}

func TestQueryRecordsFilter(t *testing.T) {
	store := newStore(t)

	for i, operator := range []string{"op-1", "op-2"} {
		start := at(9+i, 0)
		flightID, err := store.InsertFlight(&ops.FlightRecord{
			FlightNumber: i + 1, Day: "2026-03-14", OperatorID: operator,
			StartTime: start, Status: ops.FlightOpen,
		})
		require.NoError(t, err)

		_, err = store.InsertJustification(&ops.JustificationRecord{
			FlightID: flightID, FlightNumber: i + 1, OperatorID: operator,
			Area: "Perimeter", Day: "2026-03-14", Timestamp: start.Add(5 * time.Minute),
			Reason: "fog",
		})
		require.NoError(t, err)
	}

	corpus, err := store.QueryRecords(ops.Filter{OperatorID: "op-2"})
	require.NoError(t, err)
	require.Len(t, corpus.Flights, 1)
	assert.Equal(t, "op-2", corpus.Flights[0].OperatorID)
	require.Len(t, corpus.Justifications, 1)

	from := at(9, 30)
	corpus, err = store.QueryRecords(ops.Filter{From: &from})
	require.NoError(t, err)
	require.Len(t, corpus.Flights, 1)
	assert.Equal(t, "op-2", corpus.Flights[0].OperatorID)

	to := at(9, 30)
	corpus, err = store.QueryRecords(ops.Filter{To: &to})
	require.NoError(t, err)
	require.Len(t, corpus.Flights, 1)
	assert.Equal(t, "op-1", corpus.Flights[0].OperatorID)
}

func TestClearAllResetsEverything(t *testing.T) {
	store := newStore(t)

	_, err := store.NextFlightNumber("2026-03-14")
	require.NoError(t, err)
	_, err = store.InsertFlight(&ops.FlightRecord{
		FlightNumber: 1, Day: "2026-03-14", OperatorID: "op-1",
		StartTime: at(9, 0), Status: ops.FlightOpen,
	})
	require.NoError(t, err)

	require.NoError(t, store.ClearAll())

	corpus, err := store.QueryRecords(ops.Filter{})
	require.NoError(t, err)
	assert.Empty(t, corpus.Flights)

	num, err := store.NextFlightNumber("2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 1, num, "numbering restarts after a clear")
}

// The SQLite store drives the same state machine as the in-memory one;
// a session applied through it survives a tracker restart.
func TestTrackerOverSQLite(t *testing.T) {
	store := newStore(t)
	areas := []string{"Perimeter", "Parking"}
	tr := ops.NewTracker(store, areas, time.UTC, logger.Nop())

	for _, ev := range []ops.ActionEvent{
		{OperatorID: "op-1", Kind: ops.FlightStart, Timestamp: at(9, 0)},
		{OperatorID: "op-1", Kind: ops.RoundStart, Area: "Perimeter", Timestamp: at(9, 1)},
		{OperatorID: "op-1", Kind: ops.PauseStart, Reason: "meal", Timestamp: at(9, 10)},
	} {
		_, err := tr.Apply(ev)
		require.NoError(t, err)
	}

	tr2 := ops.NewTracker(store, areas, time.UTC, logger.Nop())
	snap, err := tr2.State("op-1")
	require.NoError(t, err)
	require.NotNil(t, snap.OpenFlight)
	require.NotNil(t, snap.OpenRound)
	require.NotNil(t, snap.OpenPause)
	assert.True(t, snap.LastEventAt.Equal(at(9, 10)))

	delta, err := tr2.Apply(ops.ActionEvent{OperatorID: "op-1", Kind: ops.FlightEnd, Timestamp: at(9, 30)})
	require.NoError(t, err)
	require.NotNil(t, delta.Round)
	assert.True(t, delta.Round.AutoClosed)
	assert.Equal(t, 9*time.Minute, delta.Round.Active)
	assert.Equal(t, 20*time.Minute, delta.Round.PauseTotal)
}
