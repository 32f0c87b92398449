package feed

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// TickEvent is the wire shape of one tick on the feed topic. Timestamp is
// epoch milliseconds.
type TickEvent struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// ErrMalformedEvent marks a payload that cannot become a tick. Callers skip
// the event and keep consuming.
var ErrMalformedEvent = errors.New("malformed tick event")

func parseTickEvent(payload []byte) (TickEvent, error) {
	var event TickEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return TickEvent{}, errors.Wrap(ErrMalformedEvent, err.Error())
	}
	if event.Symbol == "" {
		return TickEvent{}, errors.Wrap(ErrMalformedEvent, "missing symbol")
	}
	if event.Timestamp <= 0 {
		return TickEvent{}, errors.Wrap(ErrMalformedEvent, "missing timestamp")
	}
	return event, nil
}

// Time converts the epoch-millisecond timestamp.
func (e TickEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}
