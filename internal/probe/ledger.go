package probe

import "sync"

// RetryLedger remembers which sites already spent their one backup retry
// during a search.
type RetryLedger struct {
	sites map[string]bool
	mu    sync.Mutex
}

func NewRetryLedger() *RetryLedger {
	return &RetryLedger{
		sites: make(map[string]bool),
	}
}

// MarkIfNotRetried reports true exactly once per site.
func (l *RetryLedger) MarkIfNotRetried(site string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sites[site] {
		return false
	}
	l.sites[site] = true
	return true
}

// Release gives site its retry back, for an attempt that was abandoned
// before it produced an outcome.
func (l *RetryLedger) Release(site string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sites, site)
}
