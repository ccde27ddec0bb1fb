package peers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/peermon/pkg/engine"
)

type fakeDecoder struct {
	group    *engine.GroupPackage
	groupErr error
	share    *engine.SharePackage
	shareErr error
}

func (d *fakeDecoder) DecodeGroup(_ string) (*engine.GroupPackage, error) {
	return d.group, d.groupErr
}

func (d *fakeDecoder) DecodeShare(_ string) (*engine.SharePackage, error) {
	return d.share, d.shareErr
}

func validDecoder() *fakeDecoder {
	return &fakeDecoder{
		group: &engine.GroupPackage{
			ID:         "grp-test",
			MemberKeys: []string{selfKey, peerA, peerB},
			Threshold:  2,
		},
		share: &engine.SharePackage{GroupID: "grp-test", Index: 0, PubKey: selfKey},
	}
}

func recordKeys(records []Record) []string {
	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = rec.PeerKey
	}
	return keys
}

func TestNewManagerRobust_Full(t *testing.T) {
	sess := newFakeSession(peerA, peerB)

	result := NewManagerRobust(sess, validDecoder(), "grp-test", "grp-test/0", Config{})
	require.NotNil(t, result.Manager)
	defer result.Manager.Cleanup()

	assert.True(t, result.Success)
	assert.Equal(t, ModeFull, result.Mode)
	assert.Empty(t, result.Warnings)
	assert.NoError(t, result.Err)
	assert.Equal(t, []string{peerA, peerB}, recordKeys(result.Manager.Peers()))
	assert.False(t, result.Manager.IsMonitoring())
}

func TestNewManagerRobust_AutoStart(t *testing.T) {
	sess := newFakeSession(peerA, peerB)

	result := NewManagerRobust(sess, validDecoder(), "grp-test", "grp-test/0", Config{
		AutoStart: true,
		Interval:  time.Hour,
		Timeout:   time.Second,
	})
	require.NotNil(t, result.Manager)
	defer result.Manager.Cleanup()

	assert.Equal(t, ModeFull, result.Mode)
	assert.True(t, result.Manager.IsMonitoring())
}

func TestNewManagerRobust_BadGroupFallsBackToStatic(t *testing.T) {
	sess := newFakeSession(peerA, peerB)
	dec := &fakeDecoder{groupErr: assert.AnError}

	result := NewManagerRobust(sess, dec, "garbage", "grp-test/0", Config{})

	assert.True(t, result.Success)
	assert.Equal(t, ModeStatic, result.Mode)
	require.NotNil(t, result.Manager)
	assert.Equal(t, ModeStatic, result.Manager.Mode())
	assert.Empty(t, result.Manager.Peers())
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "invalid group credential")
}

func TestNewManagerRobust_BadShareKeepsRoster(t *testing.T) {
	sess := newFakeSession(peerA, peerB)
	dec := validDecoder()
	dec.shareErr = assert.AnError

	result := NewManagerRobust(sess, dec, "grp-test", "garbage", Config{SelfKey: selfKey})

	assert.True(t, result.Success)
	assert.Equal(t, ModeStatic, result.Mode)
	require.NotNil(t, result.Manager)
	assert.Equal(t, []string{peerA, peerB}, recordKeys(result.Manager.Peers()))
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "invalid share credential")
}

func TestNewManagerRobust_NilSessionFallsBackToStatic(t *testing.T) {
	result := NewManagerRobust(nil, validDecoder(), "grp-test", "grp-test/0", Config{})

	assert.True(t, result.Success)
	assert.Equal(t, ModeStatic, result.Mode)
	require.NotNil(t, result.Manager)
	assert.Equal(t, []string{peerA, peerB}, recordKeys(result.Manager.Peers()))
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "live peer manager unavailable")
}

func TestNewManagerRobust_FallbackDisabled(t *testing.T) {
	dec := &fakeDecoder{groupErr: assert.AnError}

	result := NewManagerRobust(nil, dec, "garbage", "garbage", Config{
		FallbackMode: FallbackDisabled,
	})

	assert.False(t, result.Success)
	assert.Equal(t, ModeFailed, result.Mode)
	assert.Nil(t, result.Manager)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "invalid group credential")
	require.NotEmpty(t, result.Warnings)
}

func TestNewManagerRobust_SubscribeFailureFallsBack(t *testing.T) {
	sess := newFakeSession(peerA, peerB)
	sess.subErr = assert.AnError

	result := NewManagerRobust(sess, validDecoder(), "grp-test", "grp-test/0", Config{})

	assert.True(t, result.Success)
	assert.Equal(t, ModeStatic, result.Mode)
	require.NotNil(t, result.Manager)
	assert.Equal(t, []string{peerA, peerB}, recordKeys(result.Manager.Peers()))
}
