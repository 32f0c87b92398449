package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/tushaar82/VELOX-N8N-sub000/internal/candle"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/logger"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/timeframe"
)

// keyState bundles everything the registry tracks for one (symbol, timeframe)
// key: the aggregator and its subscribers. refs is the explicit reference
// count driving teardown; it always equals len(order).
type keyState struct {
	agg     *candle.Aggregator
	order   []string            // subscriber ids in registration order
	members map[string]struct{} // set view of order
	refs    int
}

// Stats is the registry's monitoring counters.
type Stats struct {
	TicksProcessed    int64 `json:"ticksProcessed"`
	TicksDropped      int64 `json:"ticksDropped"`
	CandlesCompleted  int64 `json:"candlesCompleted"`
	ActiveSymbols     int   `json:"activeSymbols"`
	ActiveAggregators int   `json:"activeAggregators"`
	ActiveSubscribers int   `json:"activeSubscribers"`
}

// Registry owns every aggregator and subscription. It is the single mutator
// of that state: one mutex serializes ProcessTick against Subscribe and
// Unsubscribe, so a tick never observes a key mid-update.
//
// Aggregators are demand-driven: created on first subscription to a key and
// destroyed the moment the key's last subscriber leaves. Resubscribing starts
// a fresh candle with no history.
type Registry struct {
	mu sync.Mutex

	logger         logger.Interface
	tickBufferSize int

	streams    map[string]map[string]*keyState // symbol -> timeframe code -> state
	callbacks  map[string]Subscriber
	keyCounts  map[string]int // subscriber id -> number of keys held

	ticksProcessed int64
	ticksDropped   int64
}

// NewRegistry creates an empty registry. tickBufferSize bounds each
// aggregator's diagnostics ring.
func NewRegistry(log logger.Interface, tickBufferSize int) *Registry {
	return &Registry{
		logger:         log,
		tickBufferSize: tickBufferSize,
		streams:        make(map[string]map[string]*keyState),
		callbacks:      make(map[string]Subscriber),
		keyCounts:      make(map[string]int),
	}
}

// Subscribe registers sub under id for every (symbol, timeframe) pair.
// Timeframes are normalized first; an invalid timeframe rejects the whole
// call before any state is mutated. Repeat subscriptions are idempotent.
func (r *Registry) Subscribe(symbol string, timeframes []string, id string, sub Subscriber) error {
	tfs, err := normalizeAll(timeframes)
	if err != nil {
		return err
	}
	if len(tfs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbacks[id] = sub

	for _, tf := range tfs {
		byTF, ok := r.streams[symbol]
		if !ok {
			byTF = make(map[string]*keyState)
			r.streams[symbol] = byTF
		}

		ks, ok := byTF[tf.Code]
		if !ok {
			ks = &keyState{
				agg:     candle.NewAggregator(symbol, tf, r.tickBufferSize),
				members: make(map[string]struct{}),
			}
			byTF[tf.Code] = ks
			r.logger.Debug("aggregator created",
				logger.Field{Key: "symbol", Value: symbol},
				logger.Field{Key: "timeframe", Value: tf.Code},
			)
		}

		if _, exists := ks.members[id]; exists {
			continue
		}
		ks.members[id] = struct{}{}
		ks.order = append(ks.order, id)
		ks.refs++
		r.keyCounts[id]++
	}

	return nil
}

// Unsubscribe removes id from every given (symbol, timeframe) key. A key
// whose last subscriber leaves is reclaimed immediately, aggregator included.
func (r *Registry) Unsubscribe(symbol string, timeframes []string, id string) error {
	tfs, err := normalizeAll(timeframes)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tf := range tfs {
		r.removeFromKey(symbol, tf.Code, id)
	}
	return nil
}

// UnsubscribeAll removes id from every key it holds and forgets its callback.
// Used on connection teardown.
func (r *Registry) UnsubscribeAll(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for symbol, byTF := range r.streams {
		for code := range byTF {
			r.removeFromKey(symbol, code, id)
		}
	}
	delete(r.callbacks, id)
	delete(r.keyCounts, id)
}

// removeFromKey must be called with r.mu held.
func (r *Registry) removeFromKey(symbol, code, id string) {
	byTF, ok := r.streams[symbol]
	if !ok {
		return
	}
	ks, ok := byTF[code]
	if !ok {
		return
	}
	if _, exists := ks.members[id]; !exists {
		return
	}

	delete(ks.members, id)
	for i, other := range ks.order {
		if other == id {
			ks.order = append(ks.order[:i], ks.order[i+1:]...)
			break
		}
	}
	ks.refs--

	r.keyCounts[id]--
	if r.keyCounts[id] <= 0 {
		delete(r.keyCounts, id)
		delete(r.callbacks, id)
	}

	if ks.refs == 0 {
		delete(byTF, code)
		r.logger.Debug("aggregator destroyed",
			logger.Field{Key: "symbol", Value: symbol},
			logger.Field{Key: "timeframe", Value: code},
		)
		if len(byTF) == 0 {
			delete(r.streams, symbol)
		}
	}
}

// ProcessTick is the fan-out entry point for the market-data feed. A tick for
// a symbol nobody subscribed to is a no-op. Otherwise every (symbol,
// timeframe) aggregator absorbs the tick and the resulting snapshot is
// delivered sequentially, in subscriber-registration order. Each delivery is
// fault-isolated: a failing subscriber is logged and skipped, never blocking
// the remaining subscribers or the next tick.
func (r *Registry) ProcessTick(symbol string, price float64, volume int64, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byTF, ok := r.streams[symbol]
	if !ok {
		return
	}

	r.ticksProcessed++
	tick := candle.Tick{Symbol: symbol, Price: price, Volume: volume, Timestamp: ts}

	for _, ks := range byTF {
		snap, err := ks.agg.AddTick(tick)
		if err != nil {
			r.ticksDropped++
			r.logger.Warn("tick dropped",
				logger.Field{Key: "symbol", Value: symbol},
				logger.Field{Key: "timeframe", Value: ks.agg.Timeframe().Code},
				logger.Field{Key: "reason", Value: err.Error()},
			)
			continue
		}

		for _, id := range ks.order {
			sub, ok := r.callbacks[id]
			if !ok {
				continue
			}
			r.deliver(sub, id, ks.agg.Timeframe(), snap)
		}
	}
}

// deliver invokes one subscriber callback, containing both errors and panics
// so a broken subscriber cannot poison the fan-out loop.
func (r *Registry) deliver(sub Subscriber, id string, tf timeframe.Timeframe, snap candle.Snapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(fmt.Errorf("subscriber panicked: %v", rec),
				logger.Field{Key: "subscriber_id", Value: id},
			)
		}
	}()

	if err := sub.Deliver(snap.Symbol, tf, snap); err != nil {
		r.logger.Error(err,
			logger.Field{Key: "subscriber_id", Value: id},
		)
	}
}

// GetCurrentCandle returns the forming candle for a key, if it exists.
func (r *Registry) GetCurrentCandle(symbol, tfInput string) (candle.Snapshot, bool) {
	tf, err := timeframe.Normalize(tfInput)
	if err != nil {
		return candle.Snapshot{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byTF, ok := r.streams[symbol]
	if !ok {
		return candle.Snapshot{}, false
	}
	ks, ok := byTF[tf.Code]
	if !ok {
		return candle.Snapshot{}, false
	}
	return ks.agg.Current()
}

// GetStats returns the registry's monitoring counters.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		TicksProcessed:    r.ticksProcessed,
		TicksDropped:      r.ticksDropped,
		ActiveSymbols:     len(r.streams),
		ActiveSubscribers: len(r.callbacks),
	}
	for _, byTF := range r.streams {
		stats.ActiveAggregators += len(byTF)
		for _, ks := range byTF {
			stats.CandlesCompleted += ks.agg.CompletedCandles()
		}
	}
	return stats
}

// normalizeAll resolves every timeframe input up front so a bad entry rejects
// the call before any state changes.
func normalizeAll(inputs []string) ([]timeframe.Timeframe, error) {
	tfs := make([]timeframe.Timeframe, 0, len(inputs))
	for _, input := range inputs {
		tf, err := timeframe.Normalize(input)
		if err != nil {
			return nil, err
		}
		tfs = append(tfs, tf)
	}
	return tfs, nil
}
