package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "canonical code", input: "5m", expected: "5m"},
		{name: "minute alias", input: "1min", expected: "1m"},
		{name: "numeric minute alias", input: "15", expected: "15m"},
		{name: "hour alias", input: "60", expected: "1h"},
		{name: "uppercase", input: "1H", expected: "1h"},
		{name: "surrounding whitespace", input: " 1d ", expected: "1d"},
		{name: "daily alias", input: "daily", expected: "1d"},
		{name: "monthly alias", input: "1month", expected: "1mo"},
		{name: "unknown string", input: "7m", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "garbage", input: "banana", wantErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			tf, err := Normalize(testCase.input)
			if testCase.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTimeframe)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, tf.Code)
		})
	}
}

func TestGet_UnknownCode(t *testing.T) {
	_, err := Get("9000m")
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 17, 43, 0, time.UTC)

	testCases := []struct {
		name     string
		tf       Timeframe
		expected time.Time
	}{
		{name: "1m", tf: TF1m, expected: time.Date(2024, 3, 15, 9, 17, 0, 0, time.UTC)},
		{name: "5m", tf: TF5m, expected: time.Date(2024, 3, 15, 9, 15, 0, 0, time.UTC)},
		{name: "15m", tf: TF15m, expected: time.Date(2024, 3, 15, 9, 15, 0, 0, time.UTC)},
		{name: "1h", tf: TF1h, expected: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)},
		{name: "1d", tf: TF1d, expected: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, testCase.tf.BucketStart(ts))
		})
	}
}

func TestBucketStart_Idempotent(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 17, 43, 123456789, time.UTC)
	for _, tf := range All {
		once := tf.BucketStart(ts)
		assert.Equal(t, once, tf.BucketStart(once), "timeframe %s", tf.Code)
	}
}

func TestBucketStart_PreservesLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2024, 3, 15, 9, 17, 43, 0, loc)

	start := TF5m.BucketStart(ts)
	assert.Equal(t, loc, start.Location())
	// Bucketing is epoch-based, so the instant is location independent.
	assert.Equal(t, TF5m.BucketStart(ts.UTC()).Unix(), start.Unix())
}

func TestIsSameBucket(t *testing.T) {
	a := time.Date(2024, 3, 15, 9, 15, 1, 0, time.UTC)
	b := time.Date(2024, 3, 15, 9, 19, 59, 0, time.UTC)
	c := time.Date(2024, 3, 15, 9, 20, 0, 0, time.UTC)

	assert.True(t, TF5m.IsSameBucket(a, b))
	assert.False(t, TF5m.IsSameBucket(b, c))
}

func TestBucketEnd(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 17, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 20, 0, 0, time.UTC), TF5m.BucketEnd(ts))
}

func TestCodes(t *testing.T) {
	codes := Codes()
	require.Len(t, codes, len(All))
	assert.Contains(t, codes, "1m")
	assert.Contains(t, codes, "1mo")
}
