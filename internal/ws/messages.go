package ws

import (
	"encoding/json"

	"roomrelay/internal/relay"
)

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "join-room"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

const (
	eventJoinRoom    = "join-room"
	eventJoinRoomAck = "join-room-ack"
	eventSignal      = relay.EventSignal
	eventError       = relay.EventError
)

// ──────────────────────────── Request / Response DTOs ─────────────────────────

// JoinRoomRequest is the body for "join-room".
type JoinRoomRequest struct {
	RoomID string `json:"room_id" validate:"required,max=256"`
	PeerID string `json:"peer_id" validate:"required,max=256"`
}

func (JoinRoomRequest) invalidError() error { return relay.ErrMalformedJoin }

// JoinRoomAck answers "join-room" with the members already in the room.
type JoinRoomAck struct {
	RoomID  string   `json:"room_id"`
	PeerID  string   `json:"peer_id"`
	Members []string `json:"members"`
}

// PresenceBody is the body of "user-connected" and "user-disconnected".
type PresenceBody struct {
	PeerID string `json:"peer_id"`
}

// signalTarget is the only part of a signal body the relay reads.
type signalTarget struct {
	To string `json:"to"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}

// outbound renders a relay event as a wire frame. Signals and replies keep
// the body exactly as it was handed to the relay.
func outbound(ev relay.Event) (Envelope, error) {
	var body any
	switch ev.Kind {
	case relay.EventRoomJoined:
		members := ev.Members
		if members == nil {
			members = []string{}
		}
		body = JoinRoomAck{RoomID: ev.RoomID, PeerID: ev.PeerID, Members: members}
		ev.Kind = eventJoinRoomAck
	case relay.EventUserConnected, relay.EventUserDisconnected:
		body = PresenceBody{PeerID: ev.PeerID}
	case relay.EventError:
		body = ErrorBody{Error: ev.Code}
	default:
		return Envelope{Event: ev.Kind, Body: ev.Payload}, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: ev.Kind, Body: raw}, nil
}

// frame encodes e for the socket. Body is copied as is: json.Marshal would
// compact it and escape HTML characters.
func (e Envelope) frame() ([]byte, error) {
	event, err := json.Marshal(e.Event)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(event)+len(e.Body)+20)
	buf = append(buf, `{"event":`...)
	buf = append(buf, event...)
	if len(e.Body) > 0 {
		buf = append(buf, `,"body":`...)
		buf = append(buf, e.Body...)
	}
	return append(buf, '}'), nil
}
