package messaging

import (
	"context"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/nats-io/nats.go"
)

// PubSub is the thin publish/subscribe surface the rest of the module
// talks to. Request implements the probe round trip: publish to a
// subject and wait for one reply on a private inbox.
type PubSub interface {
	Publish(topic string, message []byte) error
	PublishWithReply(topic, reply string, message []byte, headers map[string]string) error
	Subscribe(topic string, handler func(msg *nats.Msg)) (Subscription, error)
	Request(ctx context.Context, topic string, message []byte) (*nats.Msg, error)
}

// Subscription is a handle to one active subscription.
type Subscription interface {
	Topic() string
	Unsubscribe() error
}

type natsPubSub struct {
	conn *nats.Conn
}

// NewNATSPubSub wraps an established NATS connection.
func NewNATSPubSub(conn *nats.Conn) PubSub {
	return &natsPubSub{conn: conn}
}

func (p *natsPubSub) Publish(topic string, message []byte) error {
	if err := p.conn.Publish(topic, message); err != nil {
		return errors.Wrap(err, "failed to publish to "+topic)
	}
	return nil
}

func (p *natsPubSub) PublishWithReply(topic, reply string, message []byte, headers map[string]string) error {
	msg := nats.NewMsg(topic)
	msg.Reply = reply
	msg.Data = message
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return errors.Wrap(err, "failed to publish to "+topic)
	}
	return nil
}

func (p *natsPubSub) Subscribe(topic string, handler func(msg *nats.Msg)) (Subscription, error) {
	sub, err := p.conn.Subscribe(topic, handler)
	if err != nil {
		return nil, errors.WrapWithCode(errors.CodeSubscription, err, "failed to subscribe to "+topic)
	}
	return &natsSubscription{topic: topic, sub: sub}, nil
}

func (p *natsPubSub) Request(ctx context.Context, topic string, message []byte) (*nats.Msg, error) {
	msg, err := p.conn.RequestWithContext(ctx, topic, message)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
}

func (s *natsSubscription) Topic() string {
	return s.topic
}

func (s *natsSubscription) Unsubscribe() error {
	if s.sub == nil {
		return nil
	}
	if err := s.sub.Unsubscribe(); err != nil {
		return errors.Wrap(err, "failed to unsubscribe from "+s.topic)
	}
	return nil
}
