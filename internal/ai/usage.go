package ai

import "sync"

// UsageTracker records token spend per task kind against an optional
// session-wide cap. A cap of zero or below means unlimited; there are no
// automatic retries in this system, so the cap is the only cost control.
type UsageTracker struct {
	mu   sync.RWMutex
	cap  int64
	used map[TaskType]int64
}

// NewUsageTracker creates a tracker with the given token cap.
func NewUsageTracker(cap int64) *UsageTracker {
	return &UsageTracker{
		cap:  cap,
		used: make(map[TaskType]int64),
	}
}

// Allow reports whether the budget has room for another request.
func (t *UsageTracker) Allow() bool {
	if t.cap <= 0 {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total() < t.cap
}

// Record adds a completed request's token count. Negative counts are
// ignored.
func (t *UsageTracker) Record(task TaskType, tokens int) {
	if tokens <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.used[task] += int64(tokens)
}

// Usage returns the tokens spent on one task kind.
func (t *UsageTracker) Usage(task TaskType) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.used[task]
}

// Total returns the tokens spent across all task kinds.
func (t *UsageTracker) Total() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total()
}

func (t *UsageTracker) total() int64 {
	var sum int64
	for _, v := range t.used {
		sum += v
	}
	return sum
}
