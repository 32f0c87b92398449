package candle

import (
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidTick is returned for ticks that violate the ingestion contract.
var ErrInvalidTick = errors.New("invalid tick")

// Tick represents a single price/volume update for a symbol at an instant.
// Ticks are ephemeral and never persisted.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    int64
	Timestamp time.Time
}

// Validate checks the ingestion contract: positive price, non-negative volume.
func (t Tick) Validate() error {
	if t.Price <= 0 {
		return errors.Wrapf(ErrInvalidTick, "non-positive price %f for %s", t.Price, t.Symbol)
	}
	if t.Volume < 0 {
		return errors.Wrapf(ErrInvalidTick, "negative volume %d for %s", t.Volume, t.Symbol)
	}
	return nil
}
