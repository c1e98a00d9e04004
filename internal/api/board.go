package api

import (
	"maps"
	"sync"

	"github.com/JakeFAU/trainlog/internal/stats"
)

// StatSnapshot is the published state of one running statistic.
type StatSnapshot struct {
	Value float64 `json:"value"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// Board holds the latest snapshot of every statistic the driver publishes.
// The statistics themselves are single-threaded; the driver copies them onto
// the Board, which is safe for concurrent readers.
type Board struct {
	mu    sync.RWMutex
	stats map[string]StatSnapshot
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{stats: make(map[string]StatSnapshot)}
}

// Set stores snap under name.
func (b *Board) Set(name string, snap StatSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats[name] = snap
}

// SetMovingAverage publishes m under name. An empty window removes the entry.
func (b *Board) SetMovingAverage(name string, m *stats.MovingAverage) {
	avg, err := m.Avg()
	if err != nil {
		b.mu.Lock()
		delete(b.stats, name)
		b.mu.Unlock()
		return
	}
	b.Set(name, StatSnapshot{Value: m.Current(), Avg: avg, Count: m.Len()})
}

// SetAverageMeter publishes m under name.
func (b *Board) SetAverageMeter(name string, m *stats.AverageMeter) {
	b.Set(name, StatSnapshot{Value: m.Val(), Avg: m.Avg(), Count: m.Count()})
}

// Snapshot returns a copy of all published statistics.
func (b *Board) Snapshot() map[string]StatSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.stats)
}
