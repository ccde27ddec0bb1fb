package echo

import (
	"sync"
	"time"

	"github.com/fystack/peermon/pkg/logger"
)

// Tracker remembers which shares echoed recently, so a device that
// re-announces on a timer does not spam the listener's callback. One
// detection per share passes through per window.
type Tracker struct {
	mu     sync.RWMutex
	seen   map[int]time.Time
	window time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTracker builds a tracker with the given dedupe window and starts
// its expiry routine.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = time.Minute
	}
	t := &Tracker{
		seen:   make(map[int]time.Time),
		window: window,
		stopCh: make(chan struct{}),
	}
	go t.expireLoop()
	return t
}

// FirstDetection reports whether this echo is the share's first inside
// the window and records it when it is. Suppressed echoes do not extend
// the window.
func (t *Tracker) FirstDetection(shareIndex int) bool {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if seenAt, seen := t.seen[shareIndex]; seen && now.Sub(seenAt) <= t.window {
		return false
	}
	t.seen[shareIndex] = now
	return true
}

// ActiveCount reports how many shares are inside their dedupe window.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.seen)
}

// Stop ends the expiry routine. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Tracker) expireLoop() {
	ticker := time.NewTicker(t.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.expireStale()
		case <-t.stopCh:
			return
		}
	}
}

func (t *Tracker) expireStale() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	expired := 0
	for shareIndex, seenAt := range t.seen {
		if now.Sub(seenAt) > t.window {
			delete(t.seen, shareIndex)
			expired++
		}
	}

	if expired > 0 {
		logger.Debug("Expired echo marks",
			"expired", expired,
			"remaining", len(t.seen))
	}
}
