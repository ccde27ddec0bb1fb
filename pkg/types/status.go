package types

// PeerStatus is the tracked liveness of a peer. Unknown means no probe
// has answered yet either way.
type PeerStatus string

const (
	StatusOnline  PeerStatus = "online"
	StatusOffline PeerStatus = "offline"
	StatusUnknown PeerStatus = "unknown"
)

// StatusFromResult maps a probe outcome to the status it implies.
func StatusFromResult(result PingResult) PeerStatus {
	if result.Success {
		return StatusOnline
	}
	return StatusOffline
}
