package feed

import (
	"context"
	"time"
)

// Sink receives every tick a source produces. The stream registry is the
// production sink.
type Sink interface {
	ProcessTick(symbol string, price float64, volume int64, ts time.Time)
}

// Source is a market-data tick producer. Start blocks until the context is
// cancelled or the source fails.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
}
