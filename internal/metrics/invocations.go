package metrics

import (
	"sort"
	"sync"
	"time"
)

type ModelTiming struct {
	// EWMA of invocation wall time in milliseconds.
	EWMAms float64

	OK    uint64
	Error uint64

	LastDuration time.Duration
	LastAt       time.Time
}

type InvocationTracker struct {
	mu     sync.RWMutex
	alpha  float64
	models map[string]*ModelTiming
}

// NewInvocationTracker creates a tracker with EWMA smoothing factor alpha.
// Typical alpha: 0.1..0.3 (higher reacts faster).
func NewInvocationTracker(alpha float64) *InvocationTracker {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.2
	}
	return &InvocationTracker{
		alpha:  alpha,
		models: map[string]*ModelTiming{},
	}
}

func (t *InvocationTracker) ObserveOK(model string, d time.Duration) {
	t.observe(model, d, true)
}

func (t *InvocationTracker) ObserveError(model string, d time.Duration) {
	t.observe(model, d, false)
}

func (t *InvocationTracker) observe(model string, d time.Duration, ok bool) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.models[model]
	if m == nil {
		m = &ModelTiming{}
		t.models[model] = m
	}

	ms := float64(d.Milliseconds())
	if ms < 0 {
		ms = 0
	}

	if m.OK+m.Error == 0 {
		m.EWMAms = ms
	} else {
		m.EWMAms = (t.alpha * ms) + ((1.0 - t.alpha) * m.EWMAms)
	}

	m.LastDuration = d
	m.LastAt = now
	if ok {
		m.OK++
	} else {
		m.Error++
	}
}

func (t *InvocationTracker) Get(model string) (ModelTiming, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := t.models[model]
	if m == nil {
		return ModelTiming{}, false
	}
	return *m, true
}

// Models returns tracked model names in sorted order.
func (t *InvocationTracker) Models() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.models))
	for k := range t.models {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
