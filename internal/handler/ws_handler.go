package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/middleware"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/response"
	"github.com/stemsi/certify-backend/internal/service"
	ws "github.com/stemsi/certify-backend/internal/websocket"
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
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a test session over a WebSocket.
type WSHandler struct {
	engine   SessionEngine
	sessions *TestSessionHandler
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(engine SessionEngine, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:   engine,
		sessions: NewTestSessionHandler(engine, log),
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream?token=...
// Every action answers with the updated session; submit and expiry answer
// with the graded result and close the stream.
func (h *WSHandler) SessionStream(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.Actor(c)
	sessionID := c.Param("session_id")

	// Ownership is checked before the upgrade so failures are plain HTTP errors.
	sess, err := h.engine.GetCurrent(ctx, actor, sessionID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_id", sessionID).
		Str("user_id", actor.UserID.String()).
		Logger()
	wsLog.Info().Msg("Test taker connected")

	if !sess.WithinTime(h.sessions.now()) {
		h.expire(ctx, conn, wsLog, actor, sessionID)
		return
	}
	_ = ws.WriteEvent(conn, ws.EventSession, sess.View(h.sessions.now()))

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if done := h.dispatch(ctx, conn, wsLog, actor, sessionID, msg); done {
			return
		}
	}
}

// dispatch handles one message and reports whether the stream should end.
func (h *WSHandler) dispatch(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, actor service.Actor, id string, msg ws.Request) bool {
	var (
		sess *model.TestSession
		err  error
	)

	switch msg.Action {
	case ws.ActionPing:
		_ = ws.WriteTyped(conn, ws.Envelope{Event: ws.EventPong})
		return false
	case ws.ActionSubmit:
		res, err := h.engine.Submit(ctx, actor, id)
		if err != nil {
			h.writeError(conn, log, err)
			return errors.Is(err, service.ErrSessionClosed)
		}
		_ = ws.WriteEvent(conn, ws.EventGraded, res)
		return true
	case ws.ActionAnswer:
		sess, err = h.engine.Answer(ctx, actor, id, msg.QuestionID, msg.Value)
	case ws.ActionNext:
		sess, err = h.engine.NextQuestion(ctx, actor, id)
	case ws.ActionPrevious:
		sess, err = h.engine.PreviousQuestion(ctx, actor, id)
	case ws.ActionPause:
		sess, err = h.engine.Pause(ctx, actor, id)
	case ws.ActionGoTo, ws.ActionFlag:
		if msg.Index == nil {
			_ = ws.WriteError(conn, string(response.ErrValidation), "index is required")
			return false
		}
		if msg.Action == ws.ActionGoTo {
			sess, err = h.engine.GoToQuestion(ctx, actor, id, *msg.Index)
		} else {
			sess, err = h.engine.ToggleFlag(ctx, actor, id, *msg.Index)
		}
	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return false
	}

	switch {
	case errors.Is(err, service.ErrSessionExpired):
		h.expire(ctx, conn, log, actor, id)
		return true
	case err != nil:
		h.writeError(conn, log, err)
		return errors.Is(err, service.ErrSessionClosed) || errors.Is(err, service.ErrSessionNotFound)
	}

	_ = ws.WriteEvent(conn, ws.EventSession, sess.View(h.sessions.now()))
	return false
}

func (h *WSHandler) expire(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, actor service.Actor, id string) {
	res, err := h.engine.AutoSubmitExpired(ctx, actor, id)
	if err != nil {
		h.writeError(conn, log, err)
		return
	}
	_ = ws.WriteEvent(conn, ws.EventGraded, res)
}

func (h *WSHandler) writeError(conn *websocket.Conn, log zerolog.Logger, err error) {
	_, code, ok := classify(err)
	if !ok {
		log.Error().Err(err).Msg("Session action failed")
	}
	_ = ws.WriteError(conn, string(code), response.GetMessage(code))
}
