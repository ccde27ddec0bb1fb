package ping

import (
	"context"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/fystack/peermon/pkg/types"
	"github.com/samber/lo"
)

// PeerStatusEntry pairs a peer with the liveness one probe implies.
type PeerStatusEntry struct {
	PeerKey string           `json:"peer_key"`
	Status  types.PeerStatus `json:"status"`
}

// CheckPeerStatuses probes every group peer of the session once and maps
// each outcome to online or offline. Input order of the session's peer
// list is preserved.
func CheckPeerStatuses(ctx context.Context, sess engine.Session, opts *Options) []PeerStatusEntry {
	if sess == nil {
		return []PeerStatusEntry{}
	}
	results := PingPeers(ctx, sess, sess.Peers(), opts)
	return lo.Map(results, func(result types.PingResult, _ int) PeerStatusEntry {
		return PeerStatusEntry{
			PeerKey: result.PeerKey,
			Status:  types.StatusFromResult(result),
		}
	})
}

// PingPeersFromCredentials opens a throwaway session from credentials,
// probes every group peer once and closes the session before returning,
// whether the sweep succeeded or not.
func PingPeersFromCredentials(ctx context.Context, connector engine.Connector, groupCredential, shareCredential string, relays []string, opts *Options) ([]types.PingResult, error) {
	sess, err := connector.Open(ctx, groupCredential, shareCredential, relays)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open session for ping sweep")
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("Failed to close ping sweep session", "error", cerr.Error())
		}
	}()

	return PingPeers(ctx, sess, sess.Peers(), opts), nil
}
