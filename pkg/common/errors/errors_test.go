package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := NewWithCode(CodeTimeout, "ping timed out")
	wrapped := Wrap(base, "probe failed")

	assert.Equal(t, CodeTimeout, CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "probe failed")
	assert.Contains(t, wrapped.Error(), "ping timed out")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, WrapWithCode(CodeStorage, nil, "ignored"))
}

func TestWrapWithCodeReclassifies(t *testing.T) {
	base := stderrors.New("connection refused")
	wrapped := WrapWithCode(CodeNotConnected, base, "relay unreachable")

	assert.Equal(t, CodeNotConnected, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, CodeNotConnected))
	assert.False(t, HasCode(wrapped, CodeTimeout))
	assert.True(t, stderrors.Is(wrapped, base))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("plain")))
	assert.Equal(t, CodeUnknown, CodeOf(New("domain but unclassified")))
}

func TestIsMatchesByCode(t *testing.T) {
	a := NewWithCode(CodeRejected, "peer said no")
	b := NewWithCode(CodeRejected, "different message")

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, NewWithCode(CodeTimeout, "elsewhere")))
}

func TestNewf(t *testing.T) {
	err := Newf("peer %s not tracked", "02ab")
	assert.EqualError(t, err, "peer 02ab not tracked")
}
