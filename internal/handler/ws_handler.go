package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prepdeck/prepdeck-backend/internal/engine"
	"github.com/prepdeck/prepdeck-backend/internal/middleware"
	"github.com/prepdeck/prepdeck-backend/internal/service"
	ws "github.com/prepdeck/prepdeck-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams live session state over WebSocket: countdown ticks,
// progress changes, autosave acks and the final grading event.
type WSHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(examService *service.ExamService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		examService: examService,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exam/:session_id/stream
// Pushes session events and accepts answer/navigate/submit actions.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	sess, err := h.examService.Stream(claims.UserID, sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Stream connected")

	events, cancel := sess.Subscribe()
	defer cancel()

	// Writer: session events flow out until the subscription closes. The
	// wrapped conn serializes these frames against action replies below.
	go func() {
		for ev := range events {
			if err := conn.WriteTyped(ev); err != nil {
				return
			}
		}
	}()

	// Reader: client actions mutate the session.
	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAnswer:
			progress, err := sess.Answer(msg.QuestionID, msg.OptionID, msg.Skipped)
			if err != nil {
				conn.WriteError(err.Error())
				continue
			}
			conn.WriteSuccess(gin.H{"progress": progress})
		case ws.ActionNavigate:
			cursor, err := sess.Goto(msg.Index)
			if err != nil {
				conn.WriteError(err.Error())
				continue
			}
			conn.WriteSuccess(gin.H{"cursor": cursor})
		case ws.ActionSubmit:
			resultID, err := sess.Finish(c.Request.Context(), engine.SubmitReasonManual)
			if err != nil {
				conn.WriteError(err.Error())
				continue
			}
			conn.WriteSuccess(gin.H{"result_id": resultID})
		case ws.ActionPing:
			conn.WriteTyped(gin.H{"event": ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}
