package download

// progressTracker throttles per-attempt progress reporting. Reports are
// emitted for growth of at least delta bytes, or on completion, and the
// fraction is monotonically non-decreasing. State is never shared across
// attempts; each retry starts from a fresh tracker.
type progressTracker struct {
	expected     int64
	delta        int64
	lastReported int64
	lastFraction float64
}

func newProgressTracker(expected, delta int64) *progressTracker {
	return &progressTracker{expected: expected, delta: delta}
}

// observe records a polled file size. progressed is true when the size moved
// enough to count as forward progress (stall-timer reset); report is true
// when a fraction should be emitted, which requires a known expected size.
func (p *progressTracker) observe(size int64) (fraction float64, report, progressed bool) {
	grew := size-p.lastReported >= p.delta
	complete := p.expected > 0 && size >= p.expected
	if (!grew && !complete) || size == p.lastReported {
		return 0, false, false
	}
	p.lastReported = size

	if p.expected <= 0 {
		// Unknown expected size disables fraction reporting; growth still
		// counts as progress.
		return 0, false, true
	}
	fraction = float64(size) / float64(p.expected)
	if fraction > 1 {
		fraction = 1
	}
	if fraction < p.lastFraction {
		return 0, false, true
	}
	p.lastFraction = fraction
	return fraction, true, true
}
