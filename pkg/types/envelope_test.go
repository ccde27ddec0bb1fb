package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEnvelope_FromField(t *testing.T) {
	env, err := NormalizeEnvelope([]byte(`{"id":"r1","kind":"ping","from":"`+prefixedKey+`"}`), KindMessage)
	require.NoError(t, err)

	assert.Equal(t, "r1", env.ID)
	assert.Equal(t, KindPing, env.Kind)
	assert.Equal(t, xOnlyKey, env.From)
	assert.False(t, env.Timestamp.IsZero())
}

func TestNormalizeEnvelope_SenderAliases(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"sender", `{"type":"ping","sender":"` + prefixedKey + `"}`},
		{"pubkey", `{"tag":"ping","pubkey":"` + prefixedKey + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := NormalizeEnvelope([]byte(tc.payload), KindMessage)
			require.NoError(t, err)
			assert.Equal(t, xOnlyKey, env.From)
			assert.Equal(t, KindPing, env.Kind)
		})
	}
}

func TestNormalizeEnvelope_FallbackKind(t *testing.T) {
	env, err := NormalizeEnvelope([]byte(`{"from":"`+xOnlyKey+`"}`), KindEcho)
	require.NoError(t, err)
	assert.Equal(t, KindEcho, env.Kind)
}

func TestNormalizeEnvelope_WireTimestamp(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env, err := NormalizeEnvelope([]byte(`{"kind":"echo","from":"a","timestamp":1748779200000}`), KindMessage)
	require.NoError(t, err)
	assert.Equal(t, at, env.Timestamp)
}

func TestNormalizeEnvelope_BadPayload(t *testing.T) {
	_, err := NormalizeEnvelope([]byte("not json"), KindMessage)
	assert.Error(t, err)
}

func TestEnvelope_DecodeData(t *testing.T) {
	env, err := NormalizeEnvelope([]byte(`{"kind":"pong","from":"a","data":{"policy":{"send":true,"recv":false}}}`), KindMessage)
	require.NoError(t, err)

	var ack PingAck
	require.NoError(t, env.DecodeData(&ack))
	require.NotNil(t, ack.Policy)
	assert.True(t, ack.Policy.Send)
	assert.False(t, ack.Policy.Recv)
}

func TestEnvelope_DecodeData_Empty(t *testing.T) {
	env := &Envelope{Kind: KindPong}
	var ack PingAck
	assert.Error(t, env.DecodeData(&ack))
}

func TestEnvelope_MarshalRoundTrip(t *testing.T) {
	env := &Envelope{
		ID:        "req-1",
		Kind:      KindPing,
		From:      xOnlyKey,
		Timestamp: time.Now().UTC(),
	}
	raw, err := env.Marshal()
	require.NoError(t, err)

	back, err := NormalizeEnvelope(raw, KindMessage)
	require.NoError(t, err)
	assert.Equal(t, env.ID, back.ID)
	assert.Equal(t, env.Kind, back.Kind)
	assert.Equal(t, env.From, back.From)
}
