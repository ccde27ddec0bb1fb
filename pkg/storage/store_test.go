package storage

import (
	"testing"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Put("provision/grp-1/0", []byte(`{"confirmed":true}`)))

	value, err := store.Get("provision/grp-1/0")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"confirmed":true}`), value)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get("absent")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put("k", []byte("v")))
	require.NoError(t, store.Delete("k"))

	_, err := store.Get("k")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete("k"))
}

func TestMemoryStore_KeysSorted(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put("b", []byte("2")))
	require.NoError(t, store.Put("a", []byte("1")))
	require.NoError(t, store.Put("c", []byte("3")))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMemoryStore_ValueIsolation(t *testing.T) {
	store := NewMemoryStore()
	original := []byte("value")
	require.NoError(t, store.Put("k", original))

	// Mutating the caller's slice must not reach the stored copy.
	original[0] = 'X'
	got, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	// Mutating the returned slice must not reach the store either.
	got[0] = 'Y'
	again, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}
