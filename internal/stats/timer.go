package stats

import (
	"sync"
	"time"
)

// Timer records laps. It starts on construction; NextLap closes the current
// interval and opens the next one.
type Timer struct {
	now func() time.Time

	mu    sync.Mutex
	start time.Time
	laps  []time.Duration
}

func NewTimer() *Timer {
	return newTimer(time.Now)
}

func newTimer(now func() time.Time) *Timer {
	return &Timer{now: now, start: now()}
}

// Restart opens a new interval without recording a lap.
func (t *Timer) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = t.now()
}

// NextLap records the time since the previous lap (or start) and returns it.
func (t *Timer) NextLap() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	lap := now.Sub(t.start)
	t.laps = append(t.laps, lap)
	t.start = now
	return lap
}

// RecordLap appends a lap measured elsewhere, such as a device timestamp.
func (t *Timer) RecordLap(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.laps = append(t.laps, d)
}

func (t *Timer) Laps() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.laps...)
}

// Seconds returns the laps in seconds.
func (t *Timer) Seconds() []float64 {
	laps := t.Laps()
	out := make([]float64, len(laps))
	for i, l := range laps {
		out[i] = l.Seconds()
	}
	return out
}

func (t *Timer) Summary() Summary { return Summarize(t.Seconds()) }

// LapAvg is the trimmed mean lap in seconds.
func (t *Timer) LapAvg() float64 { return t.Summary().Mean }

// LapStd is the trimmed population standard deviation in seconds.
func (t *Timer) LapStd() float64 { return t.Summary().Std }
