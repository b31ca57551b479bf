package stats

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestTrim(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 0}, {1, 1}, {4, 4}, {5, 3}, {9, 7}, {10, 6}, {20, 12}, {100, 60},
	}
	for _, tt := range tests {
		got := Trim(seq(tt.n))
		assert.Len(t, got, tt.want, "n=%d", tt.n)
	}
}

func TestTrimTwentySamples(t *testing.T) {
	samples := seq(20)
	r := rand.New(rand.NewPCG(1, 2))
	r.Shuffle(len(samples), func(i, j int) { samples[i], samples[j] = samples[j], samples[i] })
	shuffled := append([]float64(nil), samples...)

	kept := Trim(samples)
	require.Len(t, kept, 12)
	assert.Equal(t, 5.0, kept[0], "the four fastest are dropped")
	assert.Equal(t, 16.0, kept[11], "the four slowest are dropped")
	assert.Equal(t, shuffled, samples, "input is left untouched")
}

func TestSummarize(t *testing.T) {
	t.Run("twenty laps with outliers", func(t *testing.T) {
		samples := []float64{
			100, 0.001, 0.002, 0.0015, // outliers on both ends
			1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
			50, 75, 0.003, 200,
		}
		s := Summarize(samples)
		assert.Equal(t, 20, s.Count)
		assert.Equal(t, 12, s.Used)
		assert.Equal(t, 1.0, s.Mean)
		assert.Equal(t, 0.0, s.Std)
		assert.Equal(t, 0.001, s.Min)
		assert.Equal(t, 200.0, s.Max)
		assert.Equal(t, 1.0, s.Median)
	})

	t.Run("fewer than five uses all", func(t *testing.T) {
		s := Summarize([]float64{1, 2, 3, 6})
		assert.Equal(t, 4, s.Used)
		assert.Equal(t, 3.0, s.Mean)
		assert.InDelta(t, math.Sqrt(3.5), s.Std, 1e-12)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, Summary{}, Summarize(nil))
	})
}

func TestDerivedMetrics(t *testing.T) {
	assert.InDelta(t, 1e9, Throughput(10_000_000, 0.01), 1e-3)
	assert.InDelta(t, 1.0, BandwidthGiB(1<<30, 1), 1e-12)
	assert.InDelta(t, 12.0, BandwidthGiB(3*4<<30, 1), 1e-12)
	assert.Zero(t, Throughput(100, 0))
	assert.Zero(t, BandwidthGiB(100, -1))
}

func TestTimer(t *testing.T) {
	clock := time.Unix(1000, 0)
	now := func() time.Time { return clock }
	timer := newTimer(now)

	clock = clock.Add(5 * time.Second)
	timer.Restart()

	for i := 1; i <= 20; i++ {
		clock = clock.Add(time.Duration(i) * time.Millisecond)
		assert.Equal(t, time.Duration(i)*time.Millisecond, timer.NextLap())
	}
	timer.RecordLap(time.Second)

	laps := timer.Laps()
	require.Len(t, laps, 21)
	assert.Equal(t, time.Millisecond, laps[0], "restart excludes setup time")

	// Ranks [4, 17) of 21 are kept: 5ms through 17ms.
	assert.InDelta(t, 0.011, timer.LapAvg(), 1e-12)
	assert.Positive(t, timer.LapStd())
	assert.Equal(t, 13, timer.Summary().Used)
}
