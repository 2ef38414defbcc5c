package history

import "sync"

// Signal is the refresh signal: a monotonically increasing counter whose
// increments wake subscribers. Bursts of increments coalesce into one
// wake-up per subscriber.
type Signal struct {
	mu    sync.Mutex
	value uint64
	subs  map[chan struct{}]struct{}
}

// NewSignal returns a signal at zero.
func NewSignal() *Signal {
	return &Signal{subs: make(map[chan struct{}]struct{})}
}

// Bump increments the counter and notifies subscribers.
func (s *Signal) Bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value++
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return s.value
}

// Value returns the current counter.
func (s *Signal) Value() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Subscribe registers a listener. The returned cancel func must be called
// to unregister it.
func (s *Signal) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}
