package relay

import (
	"sync"

	"github.com/google/uuid"
)

type registryEntry struct {
	p      *Participant
	peerID string
}

// Registry maps transport connections to participants, and identified
// participants to their media-peer id.
type Registry struct {
	queueSize int

	mu     sync.RWMutex
	byConn map[string]*registryEntry
	byPeer map[string]*Participant
}

func NewRegistry(queueSize int) *Registry {
	return &Registry{
		queueSize: queueSize,
		byConn:    make(map[string]*registryEntry),
		byPeer:    make(map[string]*Participant),
	}
}

// Register is called once per accepted connection. onOverflow runs when the
// participant's outbox is full and should close the underlying transport.
func (r *Registry) Register(onOverflow func()) *Participant {
	p := newParticipant(uuid.NewString(), r.queueSize, onOverflow)

	r.mu.Lock()
	r.byConn[p.handle] = &registryEntry{p: p}
	r.mu.Unlock()
	return p
}

// AttachIdentity binds peerID to the connection. Re-binding the same id to the
// same connection is allowed, a second id is not.
func (r *Registry) AttachIdentity(handle, peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[handle]
	if !ok {
		return ErrParticipantLeft
	}
	if e.peerID != "" && e.peerID != peerID {
		return ErrAlreadyInRoom
	}
	if other, ok := r.byPeer[peerID]; ok && other != e.p {
		return ErrPeerIDInUse
	}
	e.peerID = peerID
	r.byPeer[peerID] = e.p
	return nil
}

func (r *Registry) Lookup(handle string) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byConn[handle]
	if !ok {
		return nil, false
	}
	return e.p, true
}

func (r *Registry) LookupPeer(peerID string) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byPeer[peerID]
	return p, ok
}

// Remove drops the connection and its peer binding. Safe to call repeatedly.
func (r *Registry) Remove(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[handle]
	if !ok {
		return
	}
	delete(r.byConn, handle)
	if e.peerID != "" && r.byPeer[e.peerID] == e.p {
		delete(r.byPeer, e.peerID)
	}
}

// Len reports the number of open connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
