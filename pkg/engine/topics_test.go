package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTopics(t *testing.T) {
	assert.Equal(t,
		"frost.grp-1.ping."+keyCarol,
		FormatPingTopic("grp-1", keyCarol))
	assert.Equal(t,
		"frost.grp-1.msg."+keyCarol,
		FormatDirectTopic("grp-1", keyCarol))
	assert.Equal(t, "frost.grp-1.broadcast", FormatBroadcastTopic("grp-1"))
	assert.Equal(t,
		"frost.grp-1.echo."+keyCarol,
		FormatEchoTopic("grp-1", keyCarol))
	assert.Equal(t, "frost.grp-1.>", FormatGroupWildcard("grp-1"))
}

func TestFormatTopics_NormalizeKeys(t *testing.T) {
	// Prefixed and x-only forms of the same key address the same subject.
	assert.Equal(t,
		FormatPingTopic("grp-1", keyAlice),
		FormatPingTopic("grp-1", keyAlice[2:]))
}

func TestPeersOf(t *testing.T) {
	group := testGroup()

	peers := PeersOf(group, keyAlice)
	assert.Len(t, peers, 2)
	assert.NotContains(t, peers, keyAlice[2:])

	// Self key in either shape is excluded.
	peers = PeersOf(group, keyAlice[2:])
	assert.Len(t, peers, 2)

	assert.Nil(t, PeersOf(nil, keyAlice))
}
