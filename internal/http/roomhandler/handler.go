package roomhandler

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"roomrelay/internal/relay"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Templates parses the embedded pages for gin's HTML renderer.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templatesFS, "templates/*.html"))
}

// RoomView is the read side of the relay the handlers need.
type RoomView interface {
	Members(roomID string) []string
	Rooms() []relay.RoomSummary
	Connections() int
}

// Pinger checks an optional dependency for /healthz.
type Pinger func(ctx context.Context) error

type Handler struct {
	rooms           RoomView
	signalingServer string
	ping            Pinger
}

// New returns the room handlers. signalingServer overrides the address handed
// to room pages; when empty it is derived from each request.
func New(rooms RoomView, signalingServer string, ping Pinger) *Handler {
	return &Handler{
		rooms:           rooms,
		signalingServer: strings.TrimRight(signalingServer, "/"),
		ping:            ping,
	}
}

// Register mounts the API and health routes. Page routes are mounted by
// RegisterPages because their catch-all parameter must come last.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.health)
	r.GET("/api/rooms", h.list)
	r.GET("/api/rooms/new", h.newRoom)
	r.GET("/api/rooms/:room", h.members)
}

func (h *Handler) RegisterPages(r gin.IRoutes) {
	r.GET("/", h.redirectNew)
	r.GET("/:room", h.page)
}

// @Summary		Health check
// @Tags			Ops
// @Success		200	{object}	HealthResponse
// @Failure		503	{object}	HealthResponse
// @Router			/healthz [get]
func (h *Handler) health(c *gin.Context) {
	res := HealthResponse{Status: "ok"}
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			zap.L().Warn("healthz.redis", zap.Error(err))
			res.Status, res.Redis = "degraded", err.Error()
			c.JSON(http.StatusServiceUnavailable, res)
			return
		}
		res.Redis = "ok"
	}
	c.JSON(http.StatusOK, res)
}

// @Summary		Create a room id
// @Description	Returns a fresh opaque room identifier. Rooms exist once someone joins.
// @Tags			Rooms
// @Success		200	{object}	NewRoomResponse
// @Router			/api/rooms/new [get]
func (h *Handler) newRoom(c *gin.Context) {
	c.JSON(http.StatusOK, NewRoomResponse{RoomID: uuid.NewString()})
}

// @Summary		List rooms
// @Description	Non-empty rooms on this instance with their member counts.
// @Tags			Rooms
// @Success		200	{object}	RoomListResponse
// @Router			/api/rooms [get]
func (h *Handler) list(c *gin.Context) {
	c.JSON(http.StatusOK, RoomListResponse{
		Rooms:       h.rooms.Rooms(),
		Connections: h.rooms.Connections(),
	})
}

// @Summary		Room members
// @Description	Peer ids currently joined to the room, in join order.
// @Tags			Rooms
// @Param			room	path		string	true	"Room ID"	default(abc123)
// @Success		200		{object}	RoomMembersResponse
// @Failure		400		{object}	ErrorResponse
// @Router			/api/rooms/{room} [get]
func (h *Handler) members(c *gin.Context) {
	var p RoomPath
	if err := c.ShouldBindUri(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	members := h.rooms.Members(p.Room)
	if members == nil {
		members = []string{}
	}
	c.JSON(http.StatusOK, RoomMembersResponse{RoomID: p.Room, Members: members})
}

func (h *Handler) redirectNew(c *gin.Context) {
	c.Redirect(http.StatusFound, "/"+uuid.NewString())
}

func (h *Handler) page(c *gin.Context) {
	var p RoomPath
	if err := c.ShouldBindUri(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	server := h.signalingServerFor(c.Request)
	c.HTML(http.StatusOK, "room.html", gin.H{
		"RoomID":          p.Room,
		"SignalingServer": server,
		"SignalingWS":     wsURL(server),
	})
}

func (h *Handler) signalingServerFor(r *http.Request) string {
	if h.signalingServer != "" {
		return h.signalingServer
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(fwd, ",")[0]))
	}
	return scheme + "://" + r.Host
}

func wsURL(server string) string {
	switch {
	case strings.HasPrefix(server, "https://"):
		return "wss://" + strings.TrimPrefix(server, "https://") + "/ws"
	case strings.HasPrefix(server, "http://"):
		return "ws://" + strings.TrimPrefix(server, "http://") + "/ws"
	default:
		return server + "/ws"
	}
}
