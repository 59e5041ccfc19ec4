package ws

import (
	"roomrelay/internal/relay"
)

// Hub bundles the presence coordinator and the signal router that every
// websocket connection talks to.
type Hub struct {
	coord  *relay.Coordinator
	signal *relay.Router
}

func NewHub(coord *relay.Coordinator, signal *relay.Router) *Hub {
	return &Hub{coord: coord, signal: signal}
}

// Members is used by the REST layer and tests.
func (h *Hub) Members(roomID string) []string { return h.coord.MembersOf(roomID) }

func (h *Hub) Rooms() []relay.RoomSummary { return h.coord.Directory().Rooms() }

func (h *Hub) Connections() int { return h.coord.Registry().Len() }

// Shutdown disconnects everyone still connected.
func (h *Hub) Shutdown() { h.coord.Shutdown() }
