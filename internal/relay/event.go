package relay

import "encoding/json"

const (
	EventRoomJoined       = "room-joined"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventSignal           = "signal"
	EventError            = "error"
)

// Event is what the relay hands to a participant's transport. Payload is
// forwarded as received: the signal itself, or a transport's own reply body.
// RoomID and Members are only set on room-joined, which answers the
// participant's own join. Code is only set on error.
type Event struct {
	Kind    string
	PeerID  string
	RoomID  string
	Members []string
	Payload json.RawMessage
	Code    string
}
