// Package echo confirms share provisioning. A device that imports a
// share announces an echo on the share's subject, and the listeners here
// turn that signal into "the share is live somewhere": AwaitShareEcho
// waits for exactly one share, ListenForAllEchoes stands by for a whole
// group.
package echo

import (
	"context"
	"sync"
	"time"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/fystack/peermon/pkg/messaging"
	"github.com/fystack/peermon/pkg/telemetry"
	"github.com/fystack/peermon/pkg/types"
)

// DefaultAwaitTimeout bounds AwaitShareEcho when the caller passes no
// timeout.
const DefaultAwaitTimeout = 30 * time.Second

// EchoCallback receives one detected echo. Index is the share's position
// in the credential list handed to ListenForAllEchoes.
type EchoCallback func(shareIndex int, shareCredential string)

// AwaitShareEcho opens a session bound to one share and waits for its
// provisioning echo. It reports true when the echo arrives within the
// timeout and false when the timeout passes quietly. The session dying
// first is an error, and the session is torn down on every path out.
func AwaitShareEcho(ctx context.Context, connector engine.Connector, groupCredential, shareCredential string, relays []string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}

	sess, err := connector.Open(ctx, groupCredential, shareCredential, relays)
	if err != nil {
		return false, errors.Wrap(err, "failed to open session for echo wait")
	}
	defer closeQuiet(sess)

	echoCh := make(chan struct{}, 1)
	sub, err := sess.Subscribe(engine.EventEcho, func(env *types.Envelope) {
		if !isEcho(env) {
			return
		}
		select {
		case echoCh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to listen for share echo")
	}
	defer unsubscribeQuiet(sub)

	logger.Info("Waiting for share echo", "timeout", timeout)
	select {
	case <-echoCh:
		telemetry.ShareEchoes.Inc()
		logger.Info("Share echo received")
		return true, nil
	case <-time.After(timeout):
		logger.Info("No share echo before timeout", "timeout", timeout)
		return false, nil
	case <-sess.Closed():
		return false, errors.NewWithCode(errors.CodeSessionClosed, "session closed while waiting for echo")
	case <-ctx.Done():
		return false, errors.Wrap(ctx.Err(), "echo wait cancelled")
	}
}

// Handle owns the sessions of one ListenForAllEchoes call.
type Handle struct {
	mu       sync.Mutex
	sessions []engine.Session
	subs     []messaging.Subscription
	tracker  *Tracker
	active   bool
	cleaned  bool
}

// IsActive reports whether at least one share listener attached and the
// handle has not been cleaned up.
func (h *Handle) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active && !h.cleaned
}

// Cleanup detaches every listener and closes every session. Only the
// first call does work, and one listener failing to detach does not stop
// the others from being torn down.
func (h *Handle) Cleanup() {
	h.mu.Lock()
	if h.cleaned {
		h.mu.Unlock()
		return
	}
	h.cleaned = true
	subs := h.subs
	sessions := h.sessions
	tracker := h.tracker
	h.subs = nil
	h.sessions = nil
	h.tracker = nil
	h.mu.Unlock()

	for _, sub := range subs {
		unsubscribeQuiet(sub)
	}
	for _, sess := range sessions {
		closeQuiet(sess)
	}
	if tracker != nil {
		tracker.Stop()
	}
	logger.Info("Echo listeners cleaned up", "sessions", len(sessions))
}

func (h *Handle) track(sess engine.Session, sub messaging.Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = append(h.sessions, sess)
	h.subs = append(h.subs, sub)
	h.active = true
}

// ListenOptions tunes ListenForAllEchoes.
type ListenOptions struct {
	// Recorder persists a confirmation mark per echoed share when set.
	Recorder *Recorder
	// DedupeWindow collapses repeated echoes of one share into a single
	// callback within the window. Zero reports every echo.
	DedupeWindow time.Duration
}

// ListenForAllEchoes opens one session per share credential and stands
// by for provisioning echoes, invoking the callback once per detected
// echo. A share whose session cannot be opened is skipped with a
// warning, only all of them failing is an error. The returned handle
// always supports Cleanup, even around partial failures.
func ListenForAllEchoes(ctx context.Context, connector engine.Connector, groupCredential string, shareCredentials []string, relays []string, callback EchoCallback, opts *ListenOptions) (*Handle, error) {
	handle := &Handle{}
	attached := 0

	var tracker *Tracker
	if opts != nil && opts.DedupeWindow > 0 {
		tracker = NewTracker(opts.DedupeWindow)
		handle.tracker = tracker
	}

	for i, shareCredential := range shareCredentials {
		sess, err := connector.Open(ctx, groupCredential, shareCredential, relays)
		if err != nil {
			logger.Warn("Skipping echo listener for share",
				"share_index", i, "error", err.Error())
			continue
		}

		index, credential := i, shareCredential
		sub, err := sess.Subscribe(engine.EventEcho, func(env *types.Envelope) {
			if !isEcho(env) {
				return
			}
			if tracker != nil && !tracker.FirstDetection(index) {
				return
			}
			telemetry.ShareEchoes.Inc()
			logger.Info("Share echo detected", "share_index", index)
			if opts != nil && opts.Recorder != nil {
				if merr := opts.Recorder.MarkConfirmed(index); merr != nil {
					logger.Warn("Failed to record share confirmation",
						"share_index", index, "error", merr.Error())
				}
			}
			if callback != nil {
				callback(index, credential)
			}
		})
		if err != nil {
			logger.Warn("Skipping echo listener for share",
				"share_index", i, "error", err.Error())
			closeQuiet(sess)
			continue
		}

		handle.track(sess, sub)
		attached++
	}

	if attached == 0 && len(shareCredentials) > 0 {
		handle.Cleanup()
		return handle, errors.New("no echo listener could be attached")
	}

	logger.Info("Listening for share echoes",
		"shares", len(shareCredentials), "attached", attached)
	return handle, nil
}

func isEcho(env *types.Envelope) bool {
	return env != nil && env.Kind == types.KindEcho
}

func closeQuiet(sess engine.Session) {
	if err := sess.Close(); err != nil {
		logger.Warn("Failed to close echo session", "error", err.Error())
	}
}

func unsubscribeQuiet(sub messaging.Subscription) {
	if err := sub.Unsubscribe(); err != nil {
		logger.Warn("Failed to detach echo listener", "error", err.Error())
	}
}
