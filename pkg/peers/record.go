// Package peers tracks the liveness of a signing group's members. The
// Manager keeps one record per peer, folds probe outcomes and passive
// traffic observations into it, and surfaces transitions through a
// callback.
package peers

import (
	"math"
	"time"

	"github.com/fystack/peermon/pkg/types"
)

// Record is one row of the status table.
type Record struct {
	PeerKey string           `json:"peer_key"`
	Status  types.PeerStatus `json:"status"`
	// LastSeen is the time of the last successful probe or observed
	// traffic. Zero until the peer has been seen once.
	LastSeen  time.Time `json:"last_seen,omitempty"`
	LatencyMs float64   `json:"latency_ms,omitempty"`
	// AllowSend and AllowReceive mirror the peer's last advertised
	// policy. New entries are permissive until a probe says otherwise.
	AllowSend    bool `json:"allow_send"`
	AllowReceive bool `json:"allow_receive"`
	// Policy is the raw advertised policy, known after the first
	// acknowledged probe.
	Policy *types.PeerPolicy `json:"policy,omitempty"`
}

func copyRecord(rec *Record) Record {
	out := *rec
	if rec.Policy != nil {
		policy := *rec.Policy
		out.Policy = &policy
	}
	return out
}

// PingSummary is the outcome of one PingAll sweep.
type PingSummary struct {
	// Peers is the status table after the sweep's outcomes were folded
	// in.
	Peers        []Record `json:"peers"`
	TotalPeers   int      `json:"total_peers"`
	OnlineCount  int      `json:"online_count"`
	OnlinePeers  []string `json:"online_peers"`
	OfflinePeers []string `json:"offline_peers"`
	// AverageLatencyMs averages the successful probes of the sweep,
	// rounded to two decimals. Zero when nobody answered.
	AverageLatencyMs float64   `json:"average_latency_ms"`
	LastChecked      time.Time `json:"last_checked"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
