package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/realtime"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients such as the terminal candidate send no Origin.
				return true
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler attaches candidate connections to exam rooms.
type WSHandler struct {
	hub      *realtime.Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *realtime.Hub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamRoom godoc
// WS /ws/v1/exams/:exam_id/room?userId=&name=
// Upgrades to WebSocket and serves the exam room protocol.
func (h *WSHandler) ExamRoom(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	who := model.Identity{
		UserID: strings.TrimSpace(c.Query("userId")),
		Name:   strings.TrimSpace(c.Query("name")),
	}
	if who.UserID == "" || len(who.UserID) > 64 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"userId": "userId is required and must be at most 64 characters",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", response.RequestID(c)).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.hub.Serve(conn, examID.String(), who)
}
