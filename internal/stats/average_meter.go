package stats

// AverageMeter tracks the latest value and a weighted mean over every update
// since the last Reset.
type AverageMeter struct {
	val   float64
	avg   float64
	sum   float64
	count int
}

// NewAverageMeter creates an AverageMeter seeded with a single update of v.
func NewAverageMeter(v float64) *AverageMeter {
	m := &AverageMeter{}
	m.Reset()
	m.Update(v)
	return m
}

// Reset zeroes the value, average, sum and count.
func (m *AverageMeter) Reset() {
	m.val = 0
	m.avg = 0
	m.sum = 0
	m.count = 0
}

// Update records v once.
func (m *AverageMeter) Update(v float64) {
	m.UpdateN(v, 1)
}

// UpdateN records v with multiplicity n. Negative n counts as zero, so the
// count never decreases between resets. The average is only recomputed while
// count is positive.
func (m *AverageMeter) UpdateN(v float64, n int) {
	if n < 0 {
		n = 0
	}
	m.val = v
	m.sum += v * float64(n)
	m.count += n
	if m.count > 0 {
		m.avg = m.sum / float64(m.count)
	}
}

// Val returns the most recent value.
func (m *AverageMeter) Val() float64 { return m.val }

// Avg returns the weighted mean.
func (m *AverageMeter) Avg() float64 { return m.avg }

// Sum returns Σ v·n.
func (m *AverageMeter) Sum() float64 { return m.sum }

// Count returns Σ n.
func (m *AverageMeter) Count() int { return m.count }
