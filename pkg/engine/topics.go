package engine

import "github.com/fystack/peermon/pkg/types"

// Relay subjects are group-scoped: frost.<group_id>.<class>[.<peer_key>].
// Peer keys inside subjects are always the normalized x-only form so a
// member is addressed the same way no matter which key shape the caller
// holds.

const subjectPrefix = "frost"

func FormatPingTopic(groupID, peerKey string) string {
	return subjectPrefix + "." + groupID + ".ping." + types.NormalizePeerKey(peerKey)
}

func FormatDirectTopic(groupID, peerKey string) string {
	return subjectPrefix + "." + groupID + ".msg." + types.NormalizePeerKey(peerKey)
}

func FormatBroadcastTopic(groupID string) string {
	return subjectPrefix + "." + groupID + ".broadcast"
}

func FormatEchoTopic(groupID, shareKey string) string {
	return subjectPrefix + "." + groupID + ".echo." + types.NormalizePeerKey(shareKey)
}

func FormatGroupWildcard(groupID string) string {
	return subjectPrefix + "." + groupID + ".>"
}
