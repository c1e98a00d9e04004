package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMovingAverageWindowNeverExceedsSize(t *testing.T) {
	t.Parallel()

	const window = 5
	m := NewMovingAverage(0, window)
	for i := 1; i < 23; i++ {
		m.Push(float64(i))
		want := i + 1
		if want > window {
			want = window
		}
		require.Equal(t, want, m.Len())
	}
	require.Equal(t, window, m.WindowSize())
}

func TestMovingAverageEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	m := NewMovingAverage(1, 3)
	m.Push(2)
	m.Push(3)
	avg, err := m.Avg()
	require.NoError(t, err)
	require.InDelta(t, 2.0, avg, 1e-12)

	m.Push(10)
	avg, err = m.Avg()
	require.NoError(t, err)
	require.InDelta(t, 5.0, avg, 1e-12)
	require.InDelta(t, 10.0, m.Current(), 1e-12)
}

func TestMovingAverageDefaultWindow(t *testing.T) {
	t.Parallel()

	m := NewMovingAverage(1, 0)
	require.Equal(t, DefaultWindow, m.WindowSize())
}

func TestMovingAverageResetThenAvgFails(t *testing.T) {
	t.Parallel()

	m := NewMovingAverage(4, 10)
	m.Reset()
	_, err := m.Avg()
	require.ErrorIs(t, err, ErrEmptyWindow)
	require.Zero(t, m.Current())

	m.Push(8)
	avg, err := m.Avg()
	require.NoError(t, err)
	require.InDelta(t, 8.0, avg, 1e-12)
}

func TestAverageMeterWeightedMean(t *testing.T) {
	t.Parallel()

	m := NewAverageMeter(2)
	m.UpdateN(4, 3)
	m.Update(10)

	// (2*1 + 4*3 + 10*1) / 5
	require.InDelta(t, 24.0, m.Sum(), 1e-12)
	require.Equal(t, 5, m.Count())
	require.InDelta(t, 4.8, m.Avg(), 1e-12)
	require.InDelta(t, 10.0, m.Val(), 1e-12)
}

func TestAverageMeterZeroMultiplicityKeepsAverage(t *testing.T) {
	t.Parallel()

	m := NewAverageMeter(3)
	m.UpdateN(100, 0)
	require.InDelta(t, 3.0, m.Avg(), 1e-12)
	require.Equal(t, 1, m.Count())
	require.InDelta(t, 100.0, m.Val(), 1e-12)

	m.UpdateN(5, -2)
	require.Equal(t, 1, m.Count())
}

func TestAverageMeterReset(t *testing.T) {
	t.Parallel()

	m := NewAverageMeter(7)
	m.UpdateN(1, 4)
	m.Reset()
	require.Zero(t, m.Val())
	require.Zero(t, m.Avg())
	require.Zero(t, m.Sum())
	require.Zero(t, m.Count())

	m.UpdateN(0, 0)
	require.Zero(t, m.Avg())

	m.Update(6)
	require.InDelta(t, 6.0, m.Avg(), 1e-12)
}
