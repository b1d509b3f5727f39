package router

import (
	"sync"
	"time"
)

// HealthTracker keeps a per-provider breaker so route resolution can skip
// upstreams that keep failing. Breakers are created lazily on first use.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*breaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*breaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

func (ht *HealthTracker) breakerFor(provider string) *breaker {
	ht.mu.RLock()
	b, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return b
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if b, ok := ht.breakers[provider]; ok {
		return b
	}
	b = &breaker{
		failureThreshold:      ht.failureThreshold,
		recoveryProbeInterval: ht.recoveryProbeInterval,
	}
	ht.breakers[provider] = b
	return b
}

// IsAvailable reports whether requests may currently be sent to the provider.
func (ht *HealthTracker) IsAvailable(provider string) bool {
	return ht.breakerFor(provider).allow()
}

func (ht *HealthTracker) RecordSuccess(provider string) {
	ht.breakerFor(provider).recordSuccess()
}

func (ht *HealthTracker) RecordFailure(provider string) {
	ht.breakerFor(provider).recordFailure()
}

// breaker is a three-state circuit: closed (requests flow), open (requests
// refused), probing (one request allowed after the recovery interval to see
// whether the provider came back).
type breaker struct {
	mu       sync.Mutex
	open     bool
	probing  bool
	failures int
	openedAt time.Time

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if time.Since(b.openedAt) >= b.recoveryProbeInterval {
		b.probing = true
		return true
	}
	return false
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.probing {
		// Probe succeeded, provider is back
		b.open = false
		b.probing = false
		b.failures = 0
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.probing {
		// Probe failed, stay open and restart the recovery clock
		b.probing = false
		b.openedAt = time.Now()
		return
	}

	b.failures++
	if !b.open && b.failures >= b.failureThreshold {
		b.open = true
		b.openedAt = time.Now()
	}
}
