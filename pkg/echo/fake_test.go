package echo

import (
	"context"
	"sync"

	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/messaging"
	"github.com/fystack/peermon/pkg/types"
)

type fakeSession struct {
	mu         sync.Mutex
	handlers   []engine.EventHandler
	subErr     error
	closeCount int
	announces  int
	closed     chan struct{}
}

func newFakeEchoSession() *fakeSession {
	return &fakeSession{closed: make(chan struct{})}
}

// echo delivers one provisioning echo to every attached handler.
func (f *fakeSession) echo() {
	f.deliver(&types.Envelope{Kind: types.KindEcho, From: "remote-device"})
}

func (f *fakeSession) deliver(env *types.Envelope) {
	f.mu.Lock()
	handlers := append([]engine.EventHandler(nil), f.handlers...)
	f.mu.Unlock()
	for _, handler := range handlers {
		handler(env)
	}
}

func (f *fakeSession) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeSession) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

func (f *fakeSession) Connect(_ context.Context) error { return nil }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closeCount++
	first := f.closeCount == 1
	f.mu.Unlock()
	if first {
		close(f.closed)
	}
	return nil
}

func (f *fakeSession) Closed() <-chan struct{} { return f.closed }
func (f *fakeSession) SelfKey() string         { return "self" }
func (f *fakeSession) GroupID() string         { return "grp-test" }
func (f *fakeSession) Peers() []string         { return nil }

func (f *fakeSession) Subscribe(_ string, handler engine.EventHandler) (messaging.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.handlers = append(f.handlers, handler)
	return &fakeSubscription{sess: f}, nil
}

func (f *fakeSession) Ping(_ context.Context, _ string) (*types.PingAck, error) {
	return &types.PingAck{Policy: &types.PeerPolicy{Send: true, Recv: true}}, nil
}

func (f *fakeSession) AnnounceShare(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announces++
	return nil
}

type fakeSubscription struct {
	sess         *fakeSession
	mu           sync.Mutex
	unsubscribes int
}

func (s *fakeSubscription) Topic() string { return engine.EventEcho }

func (s *fakeSubscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribes++
	return nil
}

// fakeConnector mints one fake session per Open call, with injectable
// failures keyed by call order.
type fakeConnector struct {
	mu       sync.Mutex
	sessions []*fakeSession
	openErrs map[int]error
	subErrs  map[int]error
	calls    int
}

func (c *fakeConnector) Open(_ context.Context, _, _ string, _ []string) (engine.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.calls
	c.calls++
	if err := c.openErrs[call]; err != nil {
		return nil, err
	}
	sess := newFakeEchoSession()
	sess.subErr = c.subErrs[call]
	c.sessions = append(c.sessions, sess)
	return sess, nil
}

func (c *fakeConnector) sessionAt(i int) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.sessions) {
		return nil
	}
	return c.sessions[i]
}

func (c *fakeConnector) sessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
