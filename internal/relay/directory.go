package relay

import (
	"sort"
	"sync"
	"time"
)

// membership relates a participant to a room. seq orders members by join.
type membership struct {
	seq      uint64
	joinedAt time.Time
}

type room struct {
	id string

	mu      sync.Mutex
	dead    bool
	nextSeq uint64
	members map[*Participant]membership
}

// snapshot returns members in join order. Caller holds r.mu.
func (r *room) snapshot(skip *Participant) []*Participant {
	out := make([]*Participant, 0, len(r.members))
	for p := range r.members {
		if p != skip {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.members[out[i]].seq < r.members[out[j]].seq
	})
	return out
}

// RoomSummary is a read-only view of a non-empty room.
type RoomSummary struct {
	ID      string `json:"room_id"`
	Members int    `json:"members"`
}

// Directory is the authoritative room membership table. Mutations on one room
// are serialised by that room's lock; different rooms proceed independently.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*room)}
}

// lockRoom returns the live record for id with its lock held, creating it when
// create is set. Returns nil when the room does not exist.
func (d *Directory) lockRoom(id string, create bool) *room {
	for {
		d.mu.Lock()
		r, ok := d.rooms[id]
		if !ok {
			if !create {
				d.mu.Unlock()
				return nil
			}
			r = &room{id: id, members: make(map[*Participant]membership)}
			d.rooms[id] = r
		}
		d.mu.Unlock()

		r.mu.Lock()
		if !r.dead {
			return r
		}
		// lost a race with the last leave, the record is being dropped
		r.mu.Unlock()
	}
}

// Join adds p to the room and returns the members that were already there.
// announce runs after the write and before the room lock is released, so
// every member observes presence events in the order they were applied. A
// repeated join is a no-op: joined is false and nothing is written, announce
// still runs so the caller can answer the repeat.
func (d *Directory) Join(roomID string, p *Participant, announce func(others []*Participant, joined bool)) (others []*Participant, joined bool) {
	r := d.lockRoom(roomID, true)
	defer r.mu.Unlock()

	if _, ok := r.members[p]; ok {
		others = r.snapshot(p)
	} else {
		others = r.snapshot(nil)
		r.nextSeq++
		r.members[p] = membership{seq: r.nextSeq, joinedAt: time.Now()}
		joined = true
	}

	if announce != nil {
		announce(others, joined)
	}
	return others, joined
}

// Leave removes p and returns the remaining members. Leaving a room p is not
// in is a no-op. The record is dropped with its last member.
func (d *Directory) Leave(roomID string, p *Participant, announce func(remaining []*Participant)) (remaining []*Participant, left bool) {
	r := d.lockRoom(roomID, false)
	if r == nil {
		return nil, false
	}
	defer r.mu.Unlock()

	if _, ok := r.members[p]; !ok {
		return r.snapshot(nil), false
	}
	delete(r.members, p)
	remaining = r.snapshot(nil)

	if announce != nil {
		announce(remaining)
	}

	if len(r.members) == 0 {
		r.dead = true
		d.mu.Lock()
		if d.rooms[roomID] == r {
			delete(d.rooms, roomID)
		}
		d.mu.Unlock()
	}
	return remaining, true
}

// MembersOf returns the current members in join order.
func (d *Directory) MembersOf(roomID string) []*Participant {
	r := d.lockRoom(roomID, false)
	if r == nil {
		return nil
	}
	defer r.mu.Unlock()
	return r.snapshot(nil)
}

// JoinedAt reports when p joined roomID.
func (d *Directory) JoinedAt(roomID string, p *Participant) (time.Time, bool) {
	r := d.lockRoom(roomID, false)
	if r == nil {
		return time.Time{}, false
	}
	defer r.mu.Unlock()
	m, ok := r.members[p]
	return m.joinedAt, ok
}

// Rooms lists non-empty rooms sorted by id.
func (d *Directory) Rooms() []RoomSummary {
	d.mu.Lock()
	rooms := make([]*room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		n := len(r.members)
		r.mu.Unlock()
		if n > 0 {
			out = append(out, RoomSummary{ID: r.id, Members: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear drops every room without announcing anything. Used on shutdown.
func (d *Directory) Clear() {
	d.mu.Lock()
	rooms := d.rooms
	d.rooms = make(map[string]*room)
	d.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		r.dead = true
		r.members = make(map[*Participant]membership)
		r.mu.Unlock()
	}
}
