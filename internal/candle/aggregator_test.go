package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tushaar82/VELOX-N8N-sub000/pkg/timeframe"
)

func tickAt(t *testing.T, clock string, price float64, volume int64) Tick {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, "2024-03-15T"+clock+"Z")
	require.NoError(t, err)
	return Tick{Symbol: "NIFTY", Price: price, Volume: volume, Timestamp: ts}
}

func TestAggregator_SingleBucketOHLCV(t *testing.T) {
	agg := NewAggregator("NIFTY", timeframe.TF5m, 16)

	ticks := []Tick{
		tickAt(t, "09:15:01", 100, 10),
		tickAt(t, "09:16:30", 104, 7),
		tickAt(t, "09:17:00", 105, 5),
		tickAt(t, "09:18:45", 99, 3),
		tickAt(t, "09:19:59", 98, 20),
	}

	var snap Snapshot
	for _, tick := range ticks {
		var err error
		snap, err = agg.AddTick(tick)
		require.NoError(t, err)
		assert.False(t, snap.IsComplete)
	}

	assert.Equal(t, float64(100), snap.Open)
	assert.Equal(t, float64(105), snap.High)
	assert.Equal(t, float64(98), snap.Low)
	assert.Equal(t, float64(98), snap.Close)
	assert.Equal(t, int64(45), snap.Volume)
	assert.Equal(t, int64(5), snap.TickCount)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 15, 0, 0, time.UTC), snap.BucketStart)

	// Candle invariants
	assert.GreaterOrEqual(t, snap.High, snap.Open)
	assert.GreaterOrEqual(t, snap.High, snap.Close)
	assert.LessOrEqual(t, snap.Low, snap.Open)
	assert.LessOrEqual(t, snap.Low, snap.Close)
}

func TestAggregator_VWAP(t *testing.T) {
	agg := NewAggregator("NIFTY", timeframe.TF5m, 16)

	ticks := []Tick{
		tickAt(t, "09:15:01", 100, 10),
		tickAt(t, "09:16:00", 110, 5),
		tickAt(t, "09:17:00", 95, 20),
	}

	var snap Snapshot
	for _, tick := range ticks {
		var err error
		snap, err = agg.AddTick(tick)
		require.NoError(t, err)
	}

	// Independent recomputation from the replayed tick list.
	var num float64
	var vol int64
	for _, tick := range ticks {
		num += tick.Price * float64(tick.Volume)
		vol += tick.Volume
	}
	assert.InDelta(t, num/float64(vol), snap.VWAP, 1e-9)
}

func TestAggregator_ZeroVolumeVWAP(t *testing.T) {
	agg := NewAggregator("NIFTY", timeframe.TF1m, 16)

	snap, err := agg.AddTick(tickAt(t, "09:15:01", 100, 0))
	require.NoError(t, err)
	assert.Equal(t, float64(0), snap.VWAP)
	assert.Equal(t, int64(0), snap.Volume)
}

func TestAggregator_Rollover(t *testing.T) {
	agg := NewAggregator("NIFTY", timeframe.TF5m, 16)

	for _, tick := range []Tick{
		tickAt(t, "09:15:01", 100, 10),
		tickAt(t, "09:17:00", 105, 5),
		tickAt(t, "09:19:59", 98, 20),
	} {
		_, err := agg.AddTick(tick)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(0), agg.CompletedCandles())

	// First tick of the next bucket finalizes the prior candle and opens a new one.
	snap, err := agg.AddTick(tickAt(t, "09:20:00", 110, 1))
	require.NoError(t, err)

	assert.Equal(t, float64(110), snap.Open)
	assert.Equal(t, float64(110), snap.Close)
	assert.Equal(t, int64(1), snap.Volume)
	assert.Equal(t, int64(1), snap.TickCount)
	assert.False(t, snap.IsComplete)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 20, 0, 0, time.UTC), snap.BucketStart)

	assert.Equal(t, int64(1), agg.CompletedCandles())
	completed, ok := agg.LastCompleted()
	require.True(t, ok)
	assert.True(t, completed.IsComplete)
	assert.Equal(t, float64(100), completed.Open)
	assert.Equal(t, float64(105), completed.High)
	assert.Equal(t, float64(98), completed.Low)
	assert.Equal(t, float64(98), completed.Close)
	assert.Equal(t, int64(35), completed.Volume)
}

func TestAggregator_StaleTickDropped(t *testing.T) {
	agg := NewAggregator("NIFTY", timeframe.TF5m, 16)

	_, err := agg.AddTick(tickAt(t, "09:20:00", 110, 1))
	require.NoError(t, err)

	// A tick from the already-finalized bucket is dropped, not re-aggregated.
	_, err = agg.AddTick(tickAt(t, "09:19:59", 98, 20))
	assert.ErrorIs(t, err, ErrStaleTick)
	assert.Equal(t, int64(1), agg.DroppedTicks())

	// The forming candle is untouched.
	snap, ok := agg.Current()
	require.True(t, ok)
	assert.Equal(t, float64(110), snap.Open)
	assert.Equal(t, int64(1), snap.TickCount)
}

func TestAggregator_InvalidTickDropped(t *testing.T) {
	agg := NewAggregator("NIFTY", timeframe.TF1m, 16)

	testCases := []struct {
		name string
		tick Tick
	}{
		{name: "zero price", tick: Tick{Symbol: "NIFTY", Price: 0, Volume: 1, Timestamp: time.Now()}},
		{name: "negative price", tick: Tick{Symbol: "NIFTY", Price: -5, Volume: 1, Timestamp: time.Now()}},
		{name: "negative volume", tick: Tick{Symbol: "NIFTY", Price: 100, Volume: -1, Timestamp: time.Now()}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := agg.AddTick(testCase.tick)
			assert.ErrorIs(t, err, ErrInvalidTick)
		})
	}

	_, ok := agg.Current()
	assert.False(t, ok, "invalid ticks must not open a candle")
	assert.Equal(t, int64(3), agg.DroppedTicks())
}

func TestAggregator_Current_Empty(t *testing.T) {
	agg := NewAggregator("NIFTY", timeframe.TF1m, 16)

	_, ok := agg.Current()
	assert.False(t, ok)
	_, ok = agg.LastCompleted()
	assert.False(t, ok)
}

func TestAggregator_RecentTicks(t *testing.T) {
	agg := NewAggregator("NIFTY", timeframe.TF1m, 4)

	for i := 0; i < 10; i++ {
		_, err := agg.AddTick(Tick{
			Symbol:    "NIFTY",
			Price:     100 + float64(i),
			Volume:    1,
			Timestamp: time.Date(2024, 3, 15, 9, 15, i, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	recent := agg.RecentTicks(10)
	require.Len(t, recent, 4, "ring capacity bounds retained ticks")
	assert.Equal(t, float64(106), recent[0].Price)
	assert.Equal(t, float64(109), recent[3].Price)

	assert.Len(t, agg.RecentTicks(2), 2)
	assert.Empty(t, agg.RecentTicks(0))
}
