package echo

import (
	"context"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/engine"
)

// Announce broadcasts the provisioning echo for one share over a
// throwaway session, telling every listener the share is active on this
// device.
func Announce(ctx context.Context, connector engine.Connector, groupCredential, shareCredential string, relays []string) error {
	sess, err := connector.Open(ctx, groupCredential, shareCredential, relays)
	if err != nil {
		return errors.Wrap(err, "failed to open session for echo announcement")
	}
	defer closeQuiet(sess)

	if err := sess.AnnounceShare(ctx); err != nil {
		return errors.Wrap(err, "failed to announce share")
	}
	return nil
}
