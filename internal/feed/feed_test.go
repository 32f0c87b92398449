package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tushaar82/VELOX-N8N-sub000/pkg/config"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/logger"
)

func kafkaMessage(payload string) kafka.Message {
	return kafka.Message{Value: []byte(payload)}
}

type collectingSink struct {
	mu    sync.Mutex
	ticks []TickEvent
}

func (s *collectingSink) ProcessTick(symbol string, price float64, volume int64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, TickEvent{
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		Timestamp: ts.UnixMilli(),
	})
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

func (s *collectingSink) snapshot() []TickEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TickEvent, len(s.ticks))
	copy(out, s.ticks)
	return out
}

func TestParseTickEvent(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "valid event",
			payload: `{"symbol":"NIFTY","price":22150.5,"volume":75,"timestamp":1710494701000}`,
		},
		{
			name:    "not json",
			payload: `{broken`,
			wantErr: true,
		},
		{
			name:    "missing symbol",
			payload: `{"price":100,"volume":1,"timestamp":1710494701000}`,
			wantErr: true,
		},
		{
			name:    "missing timestamp",
			payload: `{"symbol":"NIFTY","price":100,"volume":1}`,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := parseTickEvent([]byte(tc.payload))
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "NIFTY", event.Symbol)
			assert.Equal(t, 22150.5, event.Price)
			assert.Equal(t, int64(75), event.Volume)
			assert.Equal(t, int64(1710494701000), event.Time().UnixMilli())
		})
	}
}

func TestGeneratorSource_EmitsTicks(t *testing.T) {
	sink := &collectingSink{}
	src := NewGeneratorSource(config.FeedConfig{
		GeneratorSymbols:    []string{"NIFTY", "BANKNIFTY"},
		GeneratorIntervalMs: 5,
	}, logger.NewNop(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- src.Start(ctx) }()

	require.Eventually(t, func() bool { return sink.count() >= 4 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, src.Stop())
	require.NoError(t, <-done)

	seen := map[string]bool{}
	for _, tick := range sink.snapshot() {
		seen[tick.Symbol] = true
		assert.Greater(t, tick.Price, float64(0))
		assert.GreaterOrEqual(t, tick.Volume, int64(1))
	}
	assert.True(t, seen["NIFTY"])
	assert.True(t, seen["BANKNIFTY"])
}

func TestGeneratorSource_StopsOnContextCancel(t *testing.T) {
	sink := &collectingSink{}
	src := NewGeneratorSource(config.FeedConfig{
		GeneratorSymbols:    []string{"NIFTY"},
		GeneratorIntervalMs: 5,
	}, logger.NewNop(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not stop on context cancel")
	}
}

func TestKafkaSource_HandleMessageSkipsMalformed(t *testing.T) {
	sink := &collectingSink{}
	src := &KafkaSource{logger: logger.NewNop(), sink: sink}

	src.handleMessage(kafkaMessage(`{"symbol":"NIFTY","price":100,"volume":5,"timestamp":1710494701000}`))
	src.handleMessage(kafkaMessage(`{nope`))
	src.handleMessage(kafkaMessage(`{"price":1,"volume":1,"timestamp":1710494701000}`))

	require.Equal(t, 1, sink.count())
	tick := sink.snapshot()[0]
	assert.Equal(t, "NIFTY", tick.Symbol)
	assert.Equal(t, float64(100), tick.Price)
}
