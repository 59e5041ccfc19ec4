package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAssignsDistinctHandles(t *testing.T) {
	r := NewRegistry(4)

	a := r.Register(nil)
	b := r.Register(nil)

	require.NotEmpty(t, a.Handle())
	assert.NotEqual(t, a.Handle(), b.Handle())
	assert.Equal(t, StateConnected, a.State())
	assert.Equal(t, 2, r.Len())

	got, ok := r.Lookup(a.Handle())
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestRegistryAttachIdentity(t *testing.T) {
	r := NewRegistry(4)
	a := r.Register(nil)
	b := r.Register(nil)

	require.NoError(t, r.AttachIdentity(a.Handle(), "p1"))
	require.NoError(t, r.AttachIdentity(a.Handle(), "p1"), "re-binding the same id is allowed")

	assert.ErrorIs(t, r.AttachIdentity(b.Handle(), "p1"), ErrPeerIDInUse)
	assert.ErrorIs(t, r.AttachIdentity(a.Handle(), "p9"), ErrAlreadyInRoom)
	assert.ErrorIs(t, r.AttachIdentity("missing", "p2"), ErrParticipantLeft)

	got, ok := r.LookupPeer("p1")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(4)
	a := r.Register(nil)
	require.NoError(t, r.AttachIdentity(a.Handle(), "p1"))

	r.Remove(a.Handle())
	r.Remove(a.Handle())

	_, ok := r.Lookup(a.Handle())
	assert.False(t, ok)
	_, ok = r.LookupPeer("p1")
	assert.False(t, ok)
	assert.Zero(t, r.Len())

	// the peer id is free again
	b := r.Register(nil)
	assert.NoError(t, r.AttachIdentity(b.Handle(), "p1"))
}
