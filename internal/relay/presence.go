package relay

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// PresenceHook observes identity lifecycle, e.g. to subscribe a peer on a
// cross-instance bus. Implementations must not block.
type PresenceHook interface {
	PeerIdentified(peerID string)
	PeerLeft(peerID string)
}

// Coordinator drives the per-participant state machine
// Connected -> Identified -> InRoom -> Left.
type Coordinator struct {
	registry  *Registry
	directory *Directory
	hook      PresenceHook
}

func NewCoordinator(registry *Registry, directory *Directory) *Coordinator {
	return &Coordinator{registry: registry, directory: directory}
}

// WithHook installs h. Not safe to call once connections are being served.
func (c *Coordinator) WithHook(h PresenceHook) *Coordinator {
	c.hook = h
	return c
}

func (c *Coordinator) Registry() *Registry { return c.registry }
func (c *Coordinator) Directory() *Directory { return c.directory }

// Join places p in roomID under peerID and announces it to the members that
// were already present. It returns their peer ids.
//
// Repeating the same join is a no-op that returns the current members. Joining
// a second room, or the same room under another peer id, is rejected.
func (c *Coordinator) Join(ctx context.Context, p *Participant, roomID, peerID string) ([]string, error) {
	roomID = strings.TrimSpace(roomID)
	peerID = strings.TrimSpace(peerID)
	if roomID == "" || peerID == "" {
		return nil, ErrMalformedJoin
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateLeft:
		return nil, ErrParticipantLeft
	case StateInRoom:
		if p.roomID != roomID || p.peerID != peerID {
			return nil, ErrAlreadyInRoom
		}
		others, _ := c.directory.Join(roomID, p, func(others []*Participant, _ bool) {
			p.deliver(Event{Kind: EventRoomJoined, RoomID: roomID, PeerID: peerID, Members: peerIDs(others)})
		})
		return peerIDs(others), nil
	}

	if err := c.registry.AttachIdentity(p.handle, peerID); err != nil {
		return nil, err
	}
	p.peerID = peerID
	p.state = StateIdentified
	if c.hook != nil {
		c.hook.PeerIdentified(peerID)
	}

	others, _ := c.directory.Join(roomID, p, func(others []*Participant, joined bool) {
		// the joiner's answer goes first so that it precedes any presence
		// event the joiner receives afterwards
		p.deliver(Event{Kind: EventRoomJoined, RoomID: roomID, PeerID: peerID, Members: peerIDs(others)})
		if !joined {
			return
		}
		ev := Event{Kind: EventUserConnected, PeerID: peerID}
		for _, m := range others {
			if !m.deliver(ev) {
				zap.L().Warn("presence.fanout_dropped",
					zap.String("room", roomID),
					zap.String("event", ev.Kind),
					zap.String("to", m.peerIDUnsafe()))
			}
		}
	})
	p.roomID = roomID
	p.state = StateInRoom

	zap.L().Info("presence.join",
		zap.String("room", roomID),
		zap.String("peer", peerID),
		zap.Int("others", len(others)))
	return peerIDs(others), nil
}

// Disconnect tears p down. Only the first call has any effect: remaining
// members receive a single user-disconnected event.
func (c *Coordinator) Disconnect(p *Participant) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateLeft {
		return
	}
	prev := p.state
	p.state = StateLeft

	if prev == StateInRoom {
		peerID, roomID := p.peerID, p.roomID
		remaining, _ := c.directory.Leave(roomID, p, func(remaining []*Participant) {
			ev := Event{Kind: EventUserDisconnected, PeerID: peerID}
			for _, m := range remaining {
				m.deliver(ev)
			}
		})
		zap.L().Info("presence.leave",
			zap.String("room", roomID),
			zap.String("peer", peerID),
			zap.Int("remaining", len(remaining)))
	}

	p.closeOutbox()
	c.registry.Remove(p.handle)
	if p.peerID != "" && c.hook != nil {
		c.hook.PeerLeft(p.peerID)
	}
}

// MembersOf returns the peer ids currently joined to roomID.
func (c *Coordinator) MembersOf(roomID string) []string {
	return peerIDs(c.directory.MembersOf(roomID))
}

// Shutdown disconnects every participant still registered. Best effort: new
// connections accepted concurrently are not waited for.
func (c *Coordinator) Shutdown() {
	c.registry.mu.RLock()
	ps := make([]*Participant, 0, len(c.registry.byConn))
	for _, e := range c.registry.byConn {
		ps = append(ps, e.p)
	}
	c.registry.mu.RUnlock()

	for _, p := range ps {
		c.Disconnect(p)
	}
	c.directory.Clear()
}
