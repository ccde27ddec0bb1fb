package peers

import (
	"context"
	"sync"
	"time"

	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/messaging"
	"github.com/fystack/peermon/pkg/types"
)

const (
	selfKey = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	peerA   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	peerB   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	peerC   = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

// fakeBehavior scripts how the fake session answers probes for one peer.
type fakeBehavior struct {
	delay  time.Duration
	policy *types.PeerPolicy
	err    error
	silent bool
}

type fakeSession struct {
	groupID string
	peers   []string

	mu           sync.Mutex
	behaviors    map[string]fakeBehavior
	pings        map[string]int
	handlers     map[string][]engine.EventHandler
	subErr       error
	unsubscribes int

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSession(peerKeys ...string) *fakeSession {
	normalized := make([]string, len(peerKeys))
	for i, key := range peerKeys {
		normalized[i] = types.NormalizePeerKey(key)
	}
	return &fakeSession{
		groupID:   "grp-test",
		peers:     normalized,
		behaviors: make(map[string]fakeBehavior),
		pings:     make(map[string]int),
		handlers:  make(map[string][]engine.EventHandler),
		closed:    make(chan struct{}),
	}
}

func (f *fakeSession) script(peerKey string, b fakeBehavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[types.NormalizePeerKey(peerKey)] = b
}

func (f *fakeSession) pingCount(peerKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings[types.NormalizePeerKey(peerKey)]
}

// deliver hands an envelope to every handler of the event, the way the
// relay would.
func (f *fakeSession) deliver(event string, env *types.Envelope) {
	f.mu.Lock()
	handlers := append([]engine.EventHandler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, handler := range handlers {
		handler(env)
	}
}

func (f *fakeSession) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribes
}

func (f *fakeSession) Connect(_ context.Context) error { return nil }

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSession) Closed() <-chan struct{} { return f.closed }
func (f *fakeSession) SelfKey() string         { return selfKey }
func (f *fakeSession) GroupID() string         { return f.groupID }
func (f *fakeSession) Peers() []string         { return append([]string(nil), f.peers...) }

func (f *fakeSession) Subscribe(event string, handler engine.EventHandler) (messaging.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.handlers[event] = append(f.handlers[event], handler)
	return &fakeSubscription{sess: f, topic: event}, nil
}

func (f *fakeSession) Ping(ctx context.Context, peerKey string) (*types.PingAck, error) {
	key := types.NormalizePeerKey(peerKey)
	f.mu.Lock()
	f.pings[key]++
	b := f.behaviors[key]
	f.mu.Unlock()

	if b.silent {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}

	policy := b.policy
	if policy == nil {
		policy = &types.PeerPolicy{Send: true, Recv: true}
	}
	return &types.PingAck{Policy: policy}, nil
}

func (f *fakeSession) AnnounceShare(_ context.Context) error { return nil }

type fakeSubscription struct {
	sess  *fakeSession
	topic string
}

func (s *fakeSubscription) Topic() string { return s.topic }

func (s *fakeSubscription) Unsubscribe() error {
	s.sess.mu.Lock()
	defer s.sess.mu.Unlock()
	s.sess.unsubscribes++
	return nil
}

// transitionLog gathers OnStatusChange deliveries across goroutines.
type transitionLog struct {
	mu          sync.Mutex
	transitions []transition
}

type transition struct {
	rec      Record
	previous types.PeerStatus
}

func (l *transitionLog) callback() func(rec Record, previous types.PeerStatus) {
	return func(rec Record, previous types.PeerStatus) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.transitions = append(l.transitions, transition{rec: rec, previous: previous})
	}
}

func (l *transitionLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.transitions)
}

func (l *transitionLog) last() (transition, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.transitions) == 0 {
		return transition{}, false
	}
	return l.transitions[len(l.transitions)-1], true
}
