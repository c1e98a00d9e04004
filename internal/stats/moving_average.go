// Package stats smooths noisy per-step training measurements into running
// statistics. MovingAverage biases toward recent values and suits loss curves;
// AverageMeter keeps all-history weighted means for epoch summaries.
//
// Neither type is safe for concurrent use.
package stats

import "errors"

// DefaultWindow is the window size used when a non-positive window is given.
const DefaultWindow = 50

// ErrEmptyWindow is returned by Avg when no values are retained.
var ErrEmptyWindow = errors.New("moving average has no values")

// MovingAverage averages the most recent WindowSize pushed values.
type MovingAverage struct {
	window int
	values []float64
}

// NewMovingAverage creates a MovingAverage and pushes v as its first value.
func NewMovingAverage(v float64, window int) *MovingAverage {
	if window <= 0 {
		window = DefaultWindow
	}
	m := &MovingAverage{window: window}
	m.Reset()
	m.Push(v)
	return m
}

// Reset drops every retained value.
func (m *MovingAverage) Reset() {
	m.values = make([]float64, 0, m.window)
}

// Push appends v, evicting the oldest value once the window is full.
func (m *MovingAverage) Push(v float64) {
	m.values = append(m.values, v)
	if len(m.values) > m.window {
		copy(m.values, m.values[1:])
		m.values = m.values[:m.window]
	}
}

// Avg returns the arithmetic mean of the retained values.
func (m *MovingAverage) Avg() (float64, error) {
	if len(m.values) == 0 {
		return 0, ErrEmptyWindow
	}
	var sum float64
	for _, v := range m.values {
		sum += v
	}
	return sum / float64(len(m.values)), nil
}

// Current returns the most recently pushed value, or 0 when empty.
func (m *MovingAverage) Current() float64 {
	if len(m.values) == 0 {
		return 0
	}
	return m.values[len(m.values)-1]
}

// Len reports how many values are retained.
func (m *MovingAverage) Len() int {
	return len(m.values)
}

// WindowSize reports the maximum number of retained values.
func (m *MovingAverage) WindowSize() int {
	return m.window
}
