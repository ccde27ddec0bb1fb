package engine

import (
	"context"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/fystack/peermon/pkg/messaging"
	"github.com/fystack/peermon/pkg/types"
)

// NATSConnector opens sessions over NATS relays. Credentials are resolved
// through the configured decoder before anything touches the network, so
// a bad credential never costs a connection attempt.
type NATSConnector struct {
	decoder Decoder
	policy  *types.PeerPolicy
}

func NewNATSConnector(decoder Decoder, policy *types.PeerPolicy) *NATSConnector {
	return &NATSConnector{decoder: decoder, policy: policy}
}

func (c *NATSConnector) Open(ctx context.Context, groupCredential, shareCredential string, relays []string) (Session, error) {
	if c.decoder == nil {
		return nil, errors.NewWithCode(errors.CodeCredential, "no credential decoder configured")
	}

	group, err := c.decoder.DecodeGroup(groupCredential)
	if err != nil {
		return nil, errors.WrapWithCode(errors.CodeCredential, err, "invalid group credential")
	}
	share, err := c.decoder.DecodeShare(shareCredential)
	if err != nil {
		return nil, errors.WrapWithCode(errors.CodeCredential, err, "invalid share credential")
	}
	if share.GroupID != "" && group.ID != "" && share.GroupID != group.ID {
		return nil, errors.NewWithCode(errors.CodeCredential, "share does not belong to group")
	}

	conn, err := messaging.ConnectToRelays(relays)
	if err != nil {
		return nil, errors.WrapWithCode(errors.CodeNotConnected, err, "failed to reach relays")
	}

	sess, err := newNATSSession(messaging.NewNATSPubSub(conn), SessionConfig{
		Group:  group,
		Share:  share,
		Policy: c.policy,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	sess.conn = conn

	if err := sess.Connect(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Debug("Opened group session", "group", group.ID, "relays", len(relays))
	return sess, nil
}
