package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/eventchat/internal/core"
	"github.com/vovakirdan/eventchat/internal/proto"
)

// RoomHandlers provides read-only HTTP handlers over live rooms.
type RoomHandlers struct {
	registry *core.Registry
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(registry *core.Registry, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		registry: registry,
		log:      logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	Name       string `json:"name"`
	Members    int    `json:"members"`
	Messages   int    `json:"messages"`
	LastActive string `json:"last_active"`
}

// HistoryResponse is a room's history snapshot.
type HistoryResponse struct {
	Room     string               `json:"room"`
	Messages []proto.EventMessage `json:"messages"`
}

// ListRooms handles listing live rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms := h.registry.Rooms()
	response := lo.Map(rooms, func(room core.RoomInfo, _ int) RoomResponse {
		return RoomResponse{
			Name:       room.Name,
			Members:    room.Members,
			Messages:   room.Messages,
			LastActive: room.LastActive.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
	})

	h.log.Debug().Int("room_count", len(rooms)).Msg("rooms listed")
	c.JSON(http.StatusOK, response)
}

// History handles reading a room's history snapshot.
// GET /api/rooms/:room/history
func (h *RoomHandlers) History(c *gin.Context) {
	room := c.Param("room")
	history, ok := h.registry.History(room)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Room:     room,
		Messages: messagesToProto(history),
	})
}
