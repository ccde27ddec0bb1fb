// Package engine is the boundary to the signing engine. The rest of the
// module sees a connected group session through the Session interface
// and never touches relay subjects or wire payloads directly.
package engine

import (
	"context"

	"github.com/fystack/peermon/pkg/messaging"
	"github.com/fystack/peermon/pkg/types"
)

// Events a session can deliver. Subscribe maps each one to the relay
// subjects it covers.
const (
	// EventMessage covers direct messages to this member plus group
	// broadcasts.
	EventMessage = "message"
	// EventPing covers inbound probe requests. The session acknowledges
	// them on its own, subscribing is for passive observation.
	EventPing = "ping"
	// EventEcho covers provisioning echoes for this member's share.
	EventEcho = "echo"
	// EventAll covers every subject of the group.
	EventAll = "*"
)

// EventHandler receives normalized envelopes. Handlers run on the
// delivery goroutine and must not block.
type EventHandler func(env *types.Envelope)

// Session is one member's connection to its signing group.
type Session interface {
	// Connect starts the session: it attaches the probe responder and
	// makes the session usable. Connecting an already closed session
	// fails.
	Connect(ctx context.Context) error

	// Close tears the session down. Safe to call more than once, only
	// the first call does work.
	Close() error

	// Closed is closed once the session is no longer usable, whether by
	// Close or by the transport going away.
	Closed() <-chan struct{}

	// SelfKey returns this member's normalized peer key.
	SelfKey() string

	// GroupID identifies the signing group.
	GroupID() string

	// Peers returns the normalized keys of the other group members.
	Peers() []string

	// Subscribe attaches a handler for one event class and returns the
	// handle that detaches it.
	Subscribe(event string, handler EventHandler) (messaging.Subscription, error)

	// Ping probes one peer and waits for its acknowledgement. The
	// returned error is classified: timeout, rejection and transport
	// failures are told apart by their code.
	Ping(ctx context.Context, peerKey string) (*types.PingAck, error)

	// AnnounceShare broadcasts the provisioning echo for this member's
	// share, telling listeners the share has arrived at its device.
	AnnounceShare(ctx context.Context) error
}

// Connector opens sessions from serialized credentials.
type Connector interface {
	Open(ctx context.Context, groupCredential, shareCredential string, relays []string) (Session, error)
}

// GroupPackage is the decoded form of a group credential.
type GroupPackage struct {
	ID         string   `json:"id"`
	MemberKeys []string `json:"member_keys"`
	Threshold  int      `json:"threshold"`
}

// SharePackage is the decoded form of a share credential.
type SharePackage struct {
	GroupID string `json:"group_id"`
	Index   int    `json:"index"`
	PubKey  string `json:"pub_key"`
}

// Decoder resolves opaque credentials into their packages. Implementations
// decide the credential encoding, the module never parses credentials
// itself.
type Decoder interface {
	DecodeGroup(credential string) (*GroupPackage, error)
	DecodeShare(credential string) (*SharePackage, error)
}

// PeersOf lists the member keys of g excluding selfKey, normalized.
func PeersOf(g *GroupPackage, selfKey string) []string {
	if g == nil {
		return nil
	}
	peers := make([]string, 0, len(g.MemberKeys))
	for _, key := range g.MemberKeys {
		if types.SamePeer(key, selfKey) {
			continue
		}
		peers = append(peers, types.NormalizePeerKey(key))
	}
	return peers
}
