package roomhandler

import "roomrelay/internal/relay"

type NewRoomResponse struct {
	RoomID string `json:"room_id" example:"5f0c6c1e-8a7e-4c4f-9a53-0d1b8f1f9e2a"`
} // @name NewRoomResponse

type RoomMembersResponse struct {
	RoomID  string   `json:"room_id" example:"abc123"`
	Members []string `json:"members" example:"p1,p2"`
} // @name RoomMembersResponse

type RoomListResponse struct {
	Rooms       []relay.RoomSummary `json:"rooms"`
	Connections int                 `json:"connections"`
} // @name RoomListResponse

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Redis  string `json:"redis,omitempty" example:"ok"`
} // @name HealthResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type RoomPath struct {
	Room string `uri:"room" binding:"required,max=256"`
}
