package stream

import (
	"github.com/tushaar82/VELOX-N8N-sub000/internal/candle"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/timeframe"
)

//go:generate mockgen -source=subscriber.go -destination=mock/subscriber_mock.go -package=mock

// Subscriber receives candle updates for the (symbol, timeframe) keys it is
// registered on. Implementations must not retain the snapshot's memory beyond
// the call; the registry treats a returned error as a delivery failure scoped
// to this subscriber and tick only.
type Subscriber interface {
	Deliver(symbol string, tf timeframe.Timeframe, snap candle.Snapshot) error
}
