package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/exam"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
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

// WSHandler streams a live exam session over a WebSocket.
type WSHandler struct {
	sessionService *service.ExamSessionService
	tick           time.Duration
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. tick is the countdown push interval.
func NewWSHandler(sessionService *service.ExamSessionService, tick time.Duration, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	if tick <= 0 {
		tick = time.Second
	}
	return &WSHandler{
		sessionService: sessionService,
		tick:           tick,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// inbound is one frame from the read pump.
type inbound struct {
	req ws.Request
	err error
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_code/stream?mock=&token=
// Upgrades to WebSocket. Client actions and timer ticks are handled one at a
// time by the connection loop.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examCode, mock, ok := bindExamSelection(c)
	if !ok {
		return
	}

	// Open before upgrading so catalog and eligibility errors are plain HTTP.
	sess, err := h.sessionService.Open(c.Request.Context(), claims.UserID, examCode, mock)
	if err != nil {
		fail(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("exam_code", examCode).
		Str("session_id", sess.ID()).
		Logger()

	if err := sess.Enter(); err != nil {
		ws.WriteError(conn, classify(err).Code, "")
		return
	}
	defer sess.Leave()

	wsLog.Info().Msg("Student connected")
	defer wsLog.Info().Msg("Student disconnected")

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	frames := make(chan inbound)
	go h.readPump(ctx, conn, wsLog, frames)

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	if err := h.writeState(conn, sess); err != nil {
		return
	}

	for {
		var done bool
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			done = h.handleFrame(ctx, conn, wsLog, sess, f)
		case <-ticker.C:
			done = h.handleTick(ctx, conn, wsLog, sess)
		}
		if done {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// readPump decodes client frames until the connection closes.
func (h *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, out chan<- inbound) {
	defer close(out)
	for {
		raw, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		req, err := ws.DecodeRequest(raw)
		select {
		case out <- inbound{req: req, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame applies one client action. It reports whether the session ended.
func (h *WSHandler) handleFrame(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, sess *exam.Session, f inbound) bool {
	if f.err != nil {
		ws.WriteError(conn, response.ErrInvalidPayload, f.err.Error())
		return false
	}

	req := f.req
	var err error
	switch req.Action {
	case ws.ActionPing:
		ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		return false
	case ws.ActionState:
		h.writeState(conn, sess)
		return false
	case ws.ActionSubmit:
		return h.submit(ctx, conn, wsLog, sess)
	case ws.ActionNext:
		err = sess.Next()
	case ws.ActionPrev:
		err = sess.Prev()
	case ws.ActionJump:
		if req.Index == nil {
			err = exam.ErrInvalidPosition
			break
		}
		err = sess.JumpTo(*req.Index)
	case ws.ActionSkip:
		err = sess.Skip()
	case ws.ActionSelect:
		err = sess.SelectSingle(req.Key)
	case ws.ActionToggle:
		err = sess.ToggleMultiple(req.Key)
	case ws.ActionConfidence:
		err = sess.SetConfidence(model.Confidence(req.Level))
	default:
		ws.WriteError(conn, response.ErrUnknownAction, "")
		return false
	}

	if err != nil {
		return h.reject(conn, wsLog, sess, req.Action, err)
	}
	h.writeState(conn, sess)
	return false
}

// handleTick pushes the countdown and auto-submits on expiry.
func (h *WSHandler) handleTick(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, sess *exam.Session) bool {
	tick, err := h.sessionService.Tick(ctx, sess)
	switch {
	case errors.Is(err, exam.ErrSessionCancelled), errors.Is(err, exam.ErrSessionClosed):
		ws.WriteError(conn, classify(err).Code, "")
		return true
	case err != nil:
		wsLog.Warn().Err(err).Msg("Auto-submit failed")
		e := classify(err)
		ws.WriteError(conn, e.Code, e.message())
		h.writeState(conn, sess)
		return false
	case tick.Result != nil:
		wsLog.Info().Str("attempt_id", tick.Result.AttemptID).Msg("Exam auto-submitted")
		ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, AutoSubmitted: true, Result: tick.Result})
		return true
	}

	ws.WriteTyped(conn, ws.TickResponse{
		Event:           ws.EventTick,
		TimeLeftSeconds: int((tick.TimeLeft + time.Second - 1) / time.Second),
	})
	return false
}

func (h *WSHandler) submit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, sess *exam.Session) bool {
	result, err := h.sessionService.Submit(ctx, sess)
	if err != nil {
		return h.reject(conn, wsLog, sess, ws.ActionSubmit, err)
	}
	wsLog.Info().Str("attempt_id", result.AttemptID).Msg("Exam submitted")
	ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Result: result})
	return true
}

// reject reports a refused action. Navigation rejections carry the unchanged
// state; a superseded session ends the stream.
func (h *WSHandler) reject(conn *websocket.Conn, wsLog zerolog.Logger, sess *exam.Session, action ws.Action, err error) bool {
	e := classify(err)
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		ws.WriteTyped(conn, ws.RejectedResponse{
			Event:   ws.EventRejected,
			Code:    e.Code,
			Message: e.message(),
			State:   sess.Snapshot(),
		})
		return false
	}

	if errors.Is(err, exam.ErrSessionCancelled) || errors.Is(err, exam.ErrSessionClosed) {
		ws.WriteError(conn, e.Code, "")
		return true
	}

	if e.Status >= http.StatusInternalServerError {
		wsLog.Warn().Err(err).Str("action", string(action)).Msg("Action failed")
	}
	ws.WriteError(conn, e.Code, e.message())
	h.writeState(conn, sess)
	return false
}

func (h *WSHandler) writeState(conn *websocket.Conn, sess *exam.Session) error {
	return ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, State: sess.Snapshot()})
}
