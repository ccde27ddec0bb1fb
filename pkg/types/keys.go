package types

import "strings"

// Peer keys arrive in two shapes: 64 hex chars (x-only) or 66 hex chars
// with a 02/03 parity prefix. Everything inside the module compares keys
// in the normalized x-only lowercase form, the original string is kept
// only for display.

// NormalizePeerKey lowercases key and strips a leading 02/03 parity byte
// from 66-char hex keys. Other inputs pass through unchanged.
func NormalizePeerKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if len(k) == 66 && (strings.HasPrefix(k, "02") || strings.HasPrefix(k, "03")) {
		return k[2:]
	}
	return k
}

// SamePeer reports whether two keys identify the same peer regardless of
// prefix or case.
func SamePeer(a, b string) bool {
	return NormalizePeerKey(a) == NormalizePeerKey(b)
}

// ShortKey renders a key for log lines, eight leading chars are enough to
// tell group members apart.
func ShortKey(key string) string {
	k := NormalizePeerKey(key)
	if len(k) <= 8 {
		return k
	}
	return k[:8]
}
