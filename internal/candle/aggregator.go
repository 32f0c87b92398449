package candle

import (
	"time"

	"github.com/pkg/errors"

	"github.com/tushaar82/VELOX-N8N-sub000/pkg/timeframe"
)

// ErrStaleTick is returned when a tick's bucket precedes the forming candle.
// The prior candle already finalized on rollover, so the tick is dropped; no
// reorder buffer is maintained.
var ErrStaleTick = errors.New("tick precedes current bucket")

// Aggregator turns the tick stream for one (symbol, timeframe) into a forming
// OHLCV candle. It is not safe for concurrent use; the stream registry owns
// it and serializes access.
type Aggregator struct {
	symbol string
	tf     timeframe.Timeframe

	current       *state
	completed     int64
	dropped       int64
	lastCompleted *Snapshot
	recent        *tickRing
}

// state is the mutable accumulation for the forming candle.
type state struct {
	bucketStart time.Time
	open        float64
	high        float64
	low         float64
	close       float64
	volume      int64
	vwapNum     float64
	tickCount   int64
}

// Snapshot is an immutable view of a candle, reported after every absorbed
// tick. IsComplete is true only on snapshots of finalized candles.
type Snapshot struct {
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	BucketStart time.Time `json:"bucketStart"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      int64     `json:"volume"`
	VWAP        float64   `json:"vwap"`
	TickCount   int64     `json:"tickCount"`
	IsComplete  bool      `json:"isComplete"`
}

// NewAggregator creates an aggregator for one (symbol, timeframe) pair.
// ringCapacity bounds the diagnostics tick buffer.
func NewAggregator(symbol string, tf timeframe.Timeframe, ringCapacity int) *Aggregator {
	return &Aggregator{
		symbol: symbol,
		tf:     tf,
		recent: newTickRing(ringCapacity),
	}
}

// Symbol returns the symbol this aggregator accumulates.
func (a *Aggregator) Symbol() string { return a.symbol }

// Timeframe returns the timeframe this aggregator accumulates.
func (a *Aggregator) Timeframe() timeframe.Timeframe { return a.tf }

// AddTick absorbs one tick and returns the snapshot of the forming candle.
//
// A tick that opens a new bucket finalizes the current candle and atomically
// starts the next one. A tick whose bucket precedes the forming candle is
// dropped with ErrStaleTick. Invalid ticks are dropped with ErrInvalidTick.
// The returned snapshot always reports the forming candle; completion is an
// internal counter side effect observable via CompletedCandles and
// LastCompleted.
func (a *Aggregator) AddTick(t Tick) (Snapshot, error) {
	if err := t.Validate(); err != nil {
		a.dropped++
		return Snapshot{}, err
	}

	bucket := a.tf.BucketStart(t.Timestamp)

	if a.current == nil {
		a.open(bucket, t)
	} else if bucket.Before(a.current.bucketStart) {
		a.dropped++
		return Snapshot{}, errors.Wrapf(ErrStaleTick, "%s %s: tick bucket %s behind %s",
			a.symbol, a.tf.Code, bucket.Format(time.RFC3339), a.current.bucketStart.Format(time.RFC3339))
	} else if !bucket.Equal(a.current.bucketStart) {
		a.finalize()
		a.open(bucket, t)
	} else {
		a.accumulate(t)
	}

	a.recent.Append(t)
	return a.snapshot(), nil
}

func (a *Aggregator) open(bucket time.Time, t Tick) {
	a.current = &state{
		bucketStart: bucket,
		open:        t.Price,
		high:        t.Price,
		low:         t.Price,
		close:       t.Price,
		volume:      t.Volume,
		vwapNum:     t.Price * float64(t.Volume),
		tickCount:   1,
	}
}

func (a *Aggregator) accumulate(t Tick) {
	s := a.current
	if t.Price > s.high {
		s.high = t.Price
	}
	if t.Price < s.low {
		s.low = t.Price
	}
	s.close = t.Price
	s.volume += t.Volume
	s.vwapNum += t.Price * float64(t.Volume)
	s.tickCount++
}

func (a *Aggregator) finalize() {
	snap := a.snapshot()
	snap.IsComplete = true
	a.lastCompleted = &snap
	a.completed++
}

// snapshot builds a Snapshot of the forming candle.
func (a *Aggregator) snapshot() Snapshot {
	s := a.current
	snap := Snapshot{
		Symbol:      a.symbol,
		Timeframe:   a.tf.Code,
		BucketStart: s.bucketStart,
		Open:        s.open,
		High:        s.high,
		Low:         s.low,
		Close:       s.close,
		Volume:      s.volume,
		TickCount:   s.tickCount,
	}
	if s.volume > 0 {
		snap.VWAP = s.vwapNum / float64(s.volume)
	}
	return snap
}

// Current returns the forming candle, if any tick has been absorbed yet.
func (a *Aggregator) Current() (Snapshot, bool) {
	if a.current == nil {
		return Snapshot{}, false
	}
	return a.snapshot(), true
}

// LastCompleted returns the most recently finalized candle, if any.
func (a *Aggregator) LastCompleted() (Snapshot, bool) {
	if a.lastCompleted == nil {
		return Snapshot{}, false
	}
	return *a.lastCompleted, true
}

// CompletedCandles returns how many candles this aggregator has finalized.
func (a *Aggregator) CompletedCandles() int64 { return a.completed }

// DroppedTicks returns how many ticks were rejected as stale or invalid.
func (a *Aggregator) DroppedTicks() int64 { return a.dropped }

// RecentTicks returns up to n most recent absorbed ticks, oldest first.
func (a *Aggregator) RecentTicks(n int) []Tick {
	return a.recent.Latest(n)
}
