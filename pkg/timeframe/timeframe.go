package timeframe

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidTimeframe is returned when an input string does not resolve to a
// supported timeframe.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// Timeframe represents a candle interval with a canonical code and a fixed
// duration.
type Timeframe struct {
	Code     string
	Duration time.Duration
}

// Supported timeframes configuration
var (
	TF1m  = Timeframe{Code: "1m", Duration: time.Minute}
	TF3m  = Timeframe{Code: "3m", Duration: 3 * time.Minute}
	TF5m  = Timeframe{Code: "5m", Duration: 5 * time.Minute}
	TF15m = Timeframe{Code: "15m", Duration: 15 * time.Minute}
	TF30m = Timeframe{Code: "30m", Duration: 30 * time.Minute}
	TF1h  = Timeframe{Code: "1h", Duration: time.Hour}
	TF2h  = Timeframe{Code: "2h", Duration: 2 * time.Hour}
	TF4h  = Timeframe{Code: "4h", Duration: 4 * time.Hour}
	TF1d  = Timeframe{Code: "1d", Duration: 24 * time.Hour}
	TF1w  = Timeframe{Code: "1w", Duration: 7 * 24 * time.Hour}
	TF1mo = Timeframe{Code: "1mo", Duration: 30 * 24 * time.Hour}
)

// All supported timeframes
var All = []Timeframe{
	TF1m, TF3m, TF5m, TF15m, TF30m,
	TF1h, TF2h, TF4h, TF1d, TF1w, TF1mo,
}

// Timeframe registry for lookup
var registry = make(map[string]Timeframe)

// aliases maps variant spellings to canonical codes.
var aliases = map[string]string{
	"1":       "1m",
	"1min":    "1m",
	"1minute": "1m",
	"60s":     "1m",
	"3":       "3m",
	"3min":    "3m",
	"5":       "5m",
	"5min":    "5m",
	"15":      "15m",
	"15min":   "15m",
	"30":      "30m",
	"30min":   "30m",
	"60":      "1h",
	"60min":   "1h",
	"1hr":     "1h",
	"1hour":   "1h",
	"120min":  "2h",
	"240min":  "4h",
	"d":       "1d",
	"day":     "1d",
	"daily":   "1d",
	"w":       "1w",
	"week":    "1w",
	"weekly":  "1w",
	"mo":      "1mo",
	"1month":  "1mo",
	"month":   "1mo",
	"monthly": "1mo",
}

func init() {
	for _, tf := range All {
		registry[tf.Code] = tf
	}
}

// Get returns a timeframe by its canonical code.
func Get(code string) (Timeframe, error) {
	tf, exists := registry[code]
	if !exists {
		return Timeframe{}, errors.Wrap(ErrInvalidTimeframe, code)
	}
	return tf, nil
}

// Normalize resolves an input string to its canonical timeframe. Matching is
// case-insensitive and tolerates the alias spellings above.
func Normalize(input string) (Timeframe, error) {
	code := strings.ToLower(strings.TrimSpace(input))
	if canonical, ok := aliases[code]; ok {
		code = canonical
	}
	return Get(code)
}

// Codes returns the canonical codes of all supported timeframes.
func Codes() []string {
	codes := make([]string, 0, len(All))
	for _, tf := range All {
		codes = append(codes, tf.Code)
	}
	return codes
}

// Seconds returns the timeframe duration in whole seconds.
func (tf Timeframe) Seconds() int64 {
	return int64(tf.Duration / time.Second)
}

// BucketStart maps a timestamp to the start of its containing bucket:
// floor(epochSeconds/durationSeconds)*durationSeconds, reconstructed in the
// input's location. Two ticks belong to the same candle iff their bucket
// starts are equal.
func (tf Timeframe) BucketStart(ts time.Time) time.Time {
	secs := tf.Seconds()
	epoch := ts.Unix()
	start := epoch - (epoch%secs+secs)%secs
	return time.Unix(start, 0).In(ts.Location())
}

// BucketEnd returns the exclusive end of the bucket containing ts.
func (tf Timeframe) BucketEnd(ts time.Time) time.Time {
	return tf.BucketStart(ts).Add(tf.Duration)
}

// IsSameBucket reports whether two timestamps fall into the same bucket.
func (tf Timeframe) IsSameBucket(a, b time.Time) bool {
	return tf.BucketStart(a).Equal(tf.BucketStart(b))
}

func (tf Timeframe) String() string {
	return tf.Code
}
