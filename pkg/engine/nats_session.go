package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/fystack/peermon/pkg/messaging"
	"github.com/fystack/peermon/pkg/types"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// SessionConfig carries everything a session needs besides the transport.
type SessionConfig struct {
	Group *GroupPackage
	Share *SharePackage
	// Policy is advertised in probe acknowledgements. Nil means fully
	// open (send and receive allowed).
	Policy *types.PeerPolicy
}

type natsSession struct {
	pubsub  messaging.PubSub
	conn    *nats.Conn // set when the session owns the connection
	group   *GroupPackage
	share   *SharePackage
	policy  types.PeerPolicy
	selfKey string

	mu        sync.Mutex
	connected bool
	responder messaging.Subscription
	subs      []messaging.Subscription

	closed    chan struct{}
	closeOnce sync.Once
}

// NewNATSSession builds a session on top of an existing pub/sub
// transport. The caller keeps ownership of the underlying connection.
func NewNATSSession(pubsub messaging.PubSub, cfg SessionConfig) (Session, error) {
	return newNATSSession(pubsub, cfg)
}

func newNATSSession(pubsub messaging.PubSub, cfg SessionConfig) (*natsSession, error) {
	if pubsub == nil {
		return nil, errors.New("session requires a transport")
	}
	if cfg.Group == nil || cfg.Group.ID == "" {
		return nil, errors.NewWithCode(errors.CodeCredential, "session requires a group package")
	}
	if cfg.Share == nil || cfg.Share.PubKey == "" {
		return nil, errors.NewWithCode(errors.CodeCredential, "session requires a share package")
	}

	policy := types.PeerPolicy{Send: true, Recv: true}
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	return &natsSession{
		pubsub:  pubsub,
		group:   cfg.Group,
		share:   cfg.Share,
		policy:  policy,
		selfKey: types.NormalizePeerKey(cfg.Share.PubKey),
		closed:  make(chan struct{}),
	}, nil
}

func (s *natsSession) Connect(ctx context.Context) error {
	select {
	case <-s.closed:
		return errors.NewWithCode(errors.CodeSessionClosed, "session already closed")
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		logger.Warn("Session already connected", "group", s.group.ID)
		return nil
	}

	responder, err := s.pubsub.Subscribe(FormatPingTopic(s.group.ID, s.selfKey), s.handlePing)
	if err != nil {
		return errors.Wrap(err, "failed to attach ping responder")
	}
	s.responder = responder

	if s.conn != nil {
		s.conn.SetClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed!")
			s.shutdown(false)
		})
	}

	s.connected = true
	logger.Info("Session connected",
		"group", s.group.ID,
		"self", types.ShortKey(s.selfKey),
		"peers", len(PeersOf(s.group, s.selfKey)))
	return nil
}

func (s *natsSession) Close() error {
	s.shutdown(true)
	return nil
}

// shutdown runs at most once. closeConn is false when the transport died
// underneath the session and there is nothing left to close.
func (s *natsSession) shutdown(closeConn bool) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.connected = false
		responder := s.responder
		subs := s.subs
		s.responder = nil
		s.subs = nil
		s.mu.Unlock()

		if responder != nil {
			_ = responder.Unsubscribe()
		}
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
		if closeConn && s.conn != nil && !s.conn.IsClosed() {
			s.conn.Close()
		}
		close(s.closed)
		logger.Info("Session closed", "group", s.group.ID)
	})
}

func (s *natsSession) Closed() <-chan struct{} {
	return s.closed
}

func (s *natsSession) SelfKey() string {
	return s.selfKey
}

func (s *natsSession) GroupID() string {
	return s.group.ID
}

func (s *natsSession) Peers() []string {
	return PeersOf(s.group, s.selfKey)
}

func (s *natsSession) ready() error {
	select {
	case <-s.closed:
		return errors.NewWithCode(errors.CodeSessionClosed, "session closed")
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errors.NewWithCode(errors.CodeNotConnected, "session not connected")
	}
	return nil
}

// handlePing acknowledges inbound probes. Malformed or self-addressed
// requests are dropped silently, a request without a reply inbox cannot
// be answered.
func (s *natsSession) handlePing(natMsg *nats.Msg) {
	env, err := types.NormalizeEnvelope(natMsg.Data, types.KindPing)
	if err != nil {
		logger.Warn("Dropping malformed ping", "error", err.Error())
		return
	}
	if env.From == "" || types.SamePeer(env.From, s.selfKey) {
		return
	}
	if natMsg.Reply == "" {
		return
	}

	reply := &types.Envelope{
		ID:        env.ID,
		Kind:      types.KindPong,
		GroupID:   s.group.ID,
		From:      s.selfKey,
		To:        env.From,
		Timestamp: time.Now().UTC(),
	}
	if s.policy.Recv {
		policy := s.policy
		data, merr := json.Marshal(types.PingAck{Policy: &policy})
		if merr != nil {
			logger.Error("Failed to marshal ping acknowledgement", merr)
			return
		}
		reply.Data = data
	} else {
		reply.Kind = types.KindReject
		data, merr := json.Marshal(types.PingReject{Reason: "receive policy disabled"})
		if merr != nil {
			logger.Error("Failed to marshal ping rejection", merr)
			return
		}
		reply.Data = data
	}

	payload, err := reply.Marshal()
	if err != nil {
		logger.Error("Failed to marshal ping reply", err)
		return
	}
	if err := s.pubsub.Publish(natMsg.Reply, payload); err != nil {
		logger.Error("Failed to publish ping reply", err, "peer", types.ShortKey(env.From))
	}
}

func (s *natsSession) Ping(ctx context.Context, peerKey string) (*types.PingAck, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	peer := types.NormalizePeerKey(peerKey)

	req := types.PingRequest{RequestID: uuid.NewString(), From: s.selfKey}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal ping request")
	}
	env := &types.Envelope{
		ID:        req.RequestID,
		Kind:      types.KindPing,
		GroupID:   s.group.ID,
		From:      s.selfKey,
		To:        peer,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	payload, err := env.Marshal()
	if err != nil {
		return nil, err
	}

	msg, err := s.pubsub.Request(ctx, FormatPingTopic(s.group.ID, peer), payload)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout):
			return nil, errors.WrapWithCode(errors.CodeTimeout, err, "ping timed out")
		case errors.Is(err, nats.ErrNoResponders):
			return nil, errors.WrapWithCode(errors.CodeTimeout, err, "peer not listening")
		case errors.Is(err, nats.ErrConnectionClosed):
			return nil, errors.WrapWithCode(errors.CodeSessionClosed, err, "connection closed")
		default:
			return nil, errors.Wrap(err, "ping request failed")
		}
	}

	reply, err := types.NormalizeEnvelope(msg.Data, types.KindPong)
	if err != nil {
		return nil, errors.Wrap(err, "malformed ping reply")
	}
	switch reply.Kind {
	case types.KindReject:
		reason := "ping rejected by peer"
		var rej types.PingReject
		if derr := reply.DecodeData(&rej); derr == nil && rej.Reason != "" {
			reason = rej.Reason
		}
		return nil, errors.NewWithCode(errors.CodeRejected, reason)
	case types.KindPong:
		var ack types.PingAck
		if len(reply.Data) > 0 {
			if derr := reply.DecodeData(&ack); derr != nil {
				return nil, errors.Wrap(derr, "malformed ping acknowledgement")
			}
		}
		return &ack, nil
	default:
		return nil, errors.Newf("unexpected ping reply kind %q", reply.Kind)
	}
}

func (s *natsSession) Subscribe(event string, handler EventHandler) (messaging.Subscription, error) {
	if handler == nil {
		return nil, errors.New("nil event handler")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	topics, fallbackKind, err := s.topicsFor(event)
	if err != nil {
		return nil, err
	}

	subs := make([]messaging.Subscription, 0, len(topics))
	for _, topic := range topics {
		sub, serr := s.pubsub.Subscribe(topic, func(natMsg *nats.Msg) {
			env, perr := types.NormalizeEnvelope(natMsg.Data, fallbackKind)
			if perr != nil {
				logger.Debug("Dropping malformed message", "topic", natMsg.Subject)
				return
			}
			handler(env)
		})
		if serr != nil {
			for _, made := range subs {
				_ = made.Unsubscribe()
			}
			return nil, errors.Wrap(serr, "failed to subscribe to "+topic)
		}
		subs = append(subs, sub)
	}

	group := &subscriptionGroup{event: event, subs: subs}
	s.mu.Lock()
	s.subs = append(s.subs, group)
	s.mu.Unlock()
	return group, nil
}

func (s *natsSession) topicsFor(event string) ([]string, string, error) {
	switch event {
	case EventMessage:
		return []string{
			FormatDirectTopic(s.group.ID, s.selfKey),
			FormatBroadcastTopic(s.group.ID),
		}, types.KindMessage, nil
	case EventPing:
		return []string{FormatPingTopic(s.group.ID, s.selfKey)}, types.KindPing, nil
	case EventEcho:
		return []string{FormatEchoTopic(s.group.ID, s.share.PubKey)}, types.KindEcho, nil
	case EventAll:
		return []string{FormatGroupWildcard(s.group.ID)}, types.KindMessage, nil
	default:
		return nil, "", errors.Newf("unknown event %q", event)
	}
}

func (s *natsSession) AnnounceShare(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	env := &types.Envelope{
		ID:        uuid.NewString(),
		Kind:      types.KindEcho,
		GroupID:   s.group.ID,
		From:      s.selfKey,
		Timestamp: time.Now().UTC(),
	}
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := s.pubsub.Publish(FormatEchoTopic(s.group.ID, s.share.PubKey), payload); err != nil {
		return errors.Wrap(err, "failed to announce share")
	}
	logger.Info("Announced share provisioning", "group", s.group.ID, "share", types.ShortKey(s.share.PubKey))
	return nil
}

// subscriptionGroup bundles the relay subscriptions behind one event so
// the caller detaches them with a single handle.
type subscriptionGroup struct {
	event string
	mu    sync.Mutex
	subs  []messaging.Subscription
}

func (g *subscriptionGroup) Topic() string {
	return g.event
}

func (g *subscriptionGroup) Unsubscribe() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	for _, sub := range g.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.subs = nil
	return firstErr
}
