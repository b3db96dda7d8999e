package core

// PriceFeedTracker filters the oracle feed per asset. Gaps are tolerated
// (quotes may be sampled or dropped upstream); stale and replayed quotes
// are silently skipped so a redelivered NATS message cannot rewind a price.
// Not thread-safe: only touched from the single-threaded engine loop.
type PriceFeedTracker struct {
	lastSeq map[string]int64
}

func NewPriceFeedTracker() *PriceFeedTracker {
	return &PriceFeedTracker{lastSeq: make(map[string]int64)}
}

// Accept reports whether a quote with this feed sequence should be applied
// and, if so, advances the per-asset watermark.
func (t *PriceFeedTracker) Accept(asset string, seq int64) bool {
	if last, ok := t.lastSeq[asset]; ok && seq <= last {
		return false
	}
	t.lastSeq[asset] = seq
	return true
}

// LastSequence returns the watermark for an asset (0 when unseen).
func (t *PriceFeedTracker) LastSequence(asset string) int64 {
	return t.lastSeq[asset]
}
