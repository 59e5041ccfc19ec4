package relay

import (
	"sync"
)

// State is the presence state of a single participant.
type State int

const (
	StateConnected State = iota
	StateIdentified
	StateInRoom
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateInRoom:
		return "in_room"
	case StateLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Participant is one transport connection and, once announced, its media-peer id.
type Participant struct {
	handle string

	// mu serialises state transitions (join vs disconnect).
	mu     sync.Mutex
	state  State
	peerID string
	roomID string

	outMu    sync.RWMutex
	closed   bool
	outbox   chan Event
	overflow func()
	overOnce sync.Once
}

func newParticipant(handle string, queueSize int, overflow func()) *Participant {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Participant{
		handle:   handle,
		state:    StateConnected,
		outbox:   make(chan Event, queueSize),
		overflow: overflow,
	}
}

func (p *Participant) Handle() string { return p.handle }

func (p *Participant) PeerID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peerID
}

func (p *Participant) RoomID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID
}

func (p *Participant) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Outbox is drained by the transport's writer. It is closed once the
// participant has left.
func (p *Participant) Outbox() <-chan Event { return p.outbox }

// deliver enqueues ev without blocking. A full outbox means the member cannot
// keep up: the overflow hook fires once and the event is dropped, the
// transport is expected to close the connection.
func (p *Participant) deliver(ev Event) bool {
	p.outMu.RLock()
	defer p.outMu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.outbox <- ev:
		return true
	default:
		if p.overflow != nil {
			p.overOnce.Do(func() { go p.overflow() })
		}
		return false
	}
}

// Notify queues ev for the participant's own transport, behind everything
// already queued. It reports false once the participant has left or when the
// outbox is full.
func (p *Participant) Notify(ev Event) bool { return p.deliver(ev) }

func (p *Participant) closeOutbox() {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.outbox)
}

// peerIDs maps a member snapshot to media-peer ids.
func peerIDs(members []*Participant) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.peerIDUnsafe())
	}
	return out
}

// peerIDUnsafe reads the identity without taking mu. The peer id is written
// once, before the participant is placed in any room, and never changes.
func (p *Participant) peerIDUnsafe() string { return p.peerID }
