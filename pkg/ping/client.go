// Package ping probes group peers over an established session: single
// probes, concurrent sweeps, scheduled monitoring and multi-round
// diagnostics. Probe outcomes are values, not errors — a failed probe is
// data about the peer, only setup problems surface as errors.
package ping

import (
	"context"
	"fmt"
	"time"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/config"
	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/fystack/peermon/pkg/telemetry"
	"github.com/fystack/peermon/pkg/types"
)

// Options tunes probes. The zero value uses the configured defaults.
type Options struct {
	// Timeout bounds one round trip.
	Timeout time.Duration
}

func (o *Options) timeout() time.Duration {
	if o != nil && o.Timeout > 0 {
		return o.Timeout
	}
	return config.PingTimeout()
}

// PingPeer probes one peer and always comes back with a result value.
// Timeouts, rejections and transport failures land in the failure branch
// with their reason, the call itself never fails.
func PingPeer(ctx context.Context, sess engine.Session, peerKey string, opts *Options) types.PingResult {
	timeout := opts.timeout()
	if err := sessionReady(sess); err != nil {
		telemetry.ObservePing(telemetry.ResultError, 0)
		return types.FailureResult(peerKey, err.Error())
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	ack, err := sess.Ping(probeCtx, peerKey)
	if err != nil {
		return failureFor(peerKey, err, timeout)
	}

	elapsed := time.Since(start)
	latencyMs := float64(elapsed) / float64(time.Millisecond)
	var policy *types.PeerPolicy
	if ack != nil {
		policy = ack.Policy
	}

	telemetry.ObservePing(telemetry.ResultSuccess, elapsed.Seconds())
	logger.Debug("Peer acknowledged ping", "peer", types.ShortKey(peerKey), "latency_ms", latencyMs)
	return types.SuccessResult(peerKey, latencyMs, policy)
}

func failureFor(peerKey string, err error, timeout time.Duration) types.PingResult {
	switch {
	case errors.CodeOf(err) == errors.CodeTimeout || errors.Is(err, context.DeadlineExceeded):
		telemetry.ObservePing(telemetry.ResultTimeout, 0)
		return types.FailureResult(peerKey, fmt.Sprintf("ping timeout after %dms", timeout.Milliseconds()))
	case errors.CodeOf(err) == errors.CodeRejected:
		telemetry.ObservePing(telemetry.ResultRejected, 0)
		return types.FailureResult(peerKey, err.Error())
	default:
		telemetry.ObservePing(telemetry.ResultError, 0)
		return types.FailureResult(peerKey, err.Error())
	}
}

// sessionReady rejects probes before dispatch when there is no usable
// session to send them on.
func sessionReady(sess engine.Session) error {
	if sess == nil {
		return errors.NewWithCode(errors.CodeNotConnected, "no session")
	}
	select {
	case <-sess.Closed():
		return errors.NewWithCode(errors.CodeSessionClosed, "session closed")
	default:
		return nil
	}
}
