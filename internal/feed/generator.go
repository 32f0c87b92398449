package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/tushaar82/VELOX-N8N-sub000/pkg/config"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/logger"
)

// GeneratorSource produces synthetic random-walk ticks for a fixed symbol
// set. It exists for local development and demos, where no broker is around.
type GeneratorSource struct {
	logger   logger.Interface
	sink     Sink
	symbols  []string
	interval time.Duration

	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewGeneratorSource seeds each symbol with a starting price in a plausible
// equity range.
func NewGeneratorSource(cfg config.FeedConfig, log logger.Interface, sink Sink) *GeneratorSource {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	prices := make(map[string]float64, len(cfg.GeneratorSymbols))
	for _, symbol := range cfg.GeneratorSymbols {
		prices[symbol] = 100 + rng.Float64()*900
	}

	return &GeneratorSource{
		logger:   log,
		sink:     sink,
		symbols:  cfg.GeneratorSymbols,
		interval: time.Duration(cfg.GeneratorIntervalMs) * time.Millisecond,
		prices:   prices,
		rng:      rng,
		stopped:  make(chan struct{}),
	}
}

// Start emits one tick per symbol every interval until the context is
// cancelled or Stop is called.
func (s *GeneratorSource) Start(ctx context.Context) error {
	s.logger.Info("starting generator tick source",
		logger.Field{Key: "action", Value: "generator_source_start"},
		logger.Field{Key: "symbols", Value: s.symbols},
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopped:
			return nil
		case now := <-ticker.C:
			s.emit(now)
		}
	}
}

func (s *GeneratorSource) emit(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, symbol := range s.symbols {
		price := s.prices[symbol]
		// Random walk, at most ±0.2% per step.
		price *= 1 + (s.rng.Float64()-0.5)*0.004
		if price < 1 {
			price = 1
		}
		s.prices[symbol] = price

		volume := int64(1 + s.rng.Intn(500))
		s.sink.ProcessTick(symbol, price, volume, now)
	}
}

// Stop ends the tick loop.
func (s *GeneratorSource) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
	return nil
}
