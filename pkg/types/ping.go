package types

import "time"

// PeerPolicy mirrors the send/receive flags a peer advertises in its ping
// acknowledgement: whether it is willing to send messages to us and to
// process messages from us.
type PeerPolicy struct {
	Send bool `json:"send"`
	Recv bool `json:"recv"`
}

// PingRequest is the payload of an outbound probe.
type PingRequest struct {
	RequestID string `json:"request_id"`
	From      string `json:"from"`
}

// PingAck is the payload of a positive probe reply.
type PingAck struct {
	Policy *PeerPolicy `json:"policy,omitempty"`
}

// PingReject is the payload of an explicit negative reply.
type PingReject struct {
	Reason string `json:"reason"`
}

// PingResult is the outcome of probing one peer. Exactly one of the two
// branches is populated: on success LatencyMs holds the round trip and
// Policy the advertised flags, on failure Error holds the reason and the
// latency field is meaningless.
type PingResult struct {
	Success   bool        `json:"success"`
	PeerKey   string      `json:"peer_key"`
	LatencyMs float64     `json:"latency_ms,omitempty"`
	Policy    *PeerPolicy `json:"policy,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SuccessResult builds a successful probe outcome.
func SuccessResult(peerKey string, latencyMs float64, policy *PeerPolicy) PingResult {
	return PingResult{
		Success:   true,
		PeerKey:   NormalizePeerKey(peerKey),
		LatencyMs: latencyMs,
		Policy:    policy,
		Timestamp: time.Now().UTC(),
	}
}

// FailureResult builds a failed probe outcome carrying the reason.
func FailureResult(peerKey string, reason string) PingResult {
	return PingResult{
		Success:   false,
		PeerKey:   NormalizePeerKey(peerKey),
		Error:     reason,
		Timestamp: time.Now().UTC(),
	}
}
