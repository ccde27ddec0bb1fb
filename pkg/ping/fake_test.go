package ping

import (
	"context"
	"sync"
	"time"

	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/messaging"
	"github.com/fystack/peermon/pkg/types"
)

// behavior scripts how the fake session answers probes for one peer.
type behavior struct {
	delay  time.Duration
	policy *types.PeerPolicy
	err    error
	// silent peers never answer, the probe runs into its deadline.
	silent bool
}

type fakeSession struct {
	selfKey string
	groupID string
	peers   []string

	mu        sync.Mutex
	behaviors map[string]behavior
	pings     map[string]int

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSession(peers ...string) *fakeSession {
	normalized := make([]string, len(peers))
	for i, p := range peers {
		normalized[i] = types.NormalizePeerKey(p)
	}
	return &fakeSession{
		selfKey:   "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		groupID:   "grp-test",
		peers:     normalized,
		behaviors: make(map[string]behavior),
		pings:     make(map[string]int),
		closed:    make(chan struct{}),
	}
}

func (f *fakeSession) script(peerKey string, b behavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[types.NormalizePeerKey(peerKey)] = b
}

func (f *fakeSession) pingCount(peerKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings[types.NormalizePeerKey(peerKey)]
}

func (f *fakeSession) totalPings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.pings {
		total += n
	}
	return total
}

func (f *fakeSession) Connect(_ context.Context) error { return nil }

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSession) Closed() <-chan struct{} { return f.closed }
func (f *fakeSession) SelfKey() string         { return f.selfKey }
func (f *fakeSession) GroupID() string         { return f.groupID }
func (f *fakeSession) Peers() []string         { return append([]string(nil), f.peers...) }

func (f *fakeSession) Subscribe(event string, handler engine.EventHandler) (messaging.Subscription, error) {
	return &fakeSubscription{topic: event}, nil
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
	topic string
	mu    sync.Mutex
	count int
}

func (s *fakeSubscription) Topic() string { return s.topic }

func (s *fakeSubscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}
