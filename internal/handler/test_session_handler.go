package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/middleware"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/response"
	"github.com/stemsi/certify-backend/internal/service"
	"github.com/stemsi/certify-backend/internal/validator"
)

// SessionEngine is the part of service.TestSessionService the HTTP and
// WebSocket layers drive.
type SessionEngine interface {
	Start(ctx context.Context, actor service.Actor, testID uuid.UUID) (*model.TestSession, error)
	GetCurrent(ctx context.Context, actor service.Actor, sessionID string) (*model.TestSession, error)
	Resume(ctx context.Context, actor service.Actor, sessionID string) (*model.TestSession, error)
	Pause(ctx context.Context, actor service.Actor, sessionID string) (*model.TestSession, error)
	Answer(ctx context.Context, actor service.Actor, sessionID, questionID, value string) (*model.TestSession, error)
	NextQuestion(ctx context.Context, actor service.Actor, sessionID string) (*model.TestSession, error)
	PreviousQuestion(ctx context.Context, actor service.Actor, sessionID string) (*model.TestSession, error)
	GoToQuestion(ctx context.Context, actor service.Actor, sessionID string, index int) (*model.TestSession, error)
	ToggleFlag(ctx context.Context, actor service.Actor, sessionID string, index int) (*model.TestSession, error)
	Submit(ctx context.Context, actor service.Actor, sessionID string) (*service.ScoreResult, error)
	AutoSubmitExpired(ctx context.Context, actor service.Actor, sessionID string) (*service.ScoreResult, error)
}

// ExpiredResponse is returned instead of the session once its time is up.
type ExpiredResponse struct {
	Expired bool                 `json:"expired"`
	Result  *service.ScoreResult `json:"result"`
}

// TestSessionHandler handles the REST surface of the test session engine.
type TestSessionHandler struct {
	engine SessionEngine
	log    zerolog.Logger
	now    func() time.Time
}

// NewTestSessionHandler creates a new TestSessionHandler.
func NewTestSessionHandler(engine SessionEngine, log zerolog.Logger) *TestSessionHandler {
	return &TestSessionHandler{
		engine: engine,
		log:    log.With().Str("component", "test_session_handler").Logger(),
		now:    time.Now,
	}
}

type sessionOp func(ctx context.Context, actor service.Actor, sessionID string) (*model.TestSession, error)

// StartSession godoc
// POST /api/v1/tests/:test_id/sessions
// Starts a timed session on a published test.
func (h *TestSessionHandler) StartSession(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.engine.Start(c.Request.Context(), middleware.Actor(c), testID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, sess.View(h.now()))
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
// Returns the session; one that ran out of time is auto-submitted instead.
func (h *TestSessionHandler) GetSession(c *gin.Context) {
	h.run(c, func(ctx context.Context, actor service.Actor, id string) (*model.TestSession, error) {
		sess, err := h.engine.GetCurrent(ctx, actor, id)
		if err == nil && !sess.WithinTime(h.now()) {
			return nil, service.ErrSessionExpired
		}
		return sess, err
	})
}

// ResumeSession godoc
// POST /api/v1/sessions/:session_id/resume
// Reloads the session, from the durable record if needed.
func (h *TestSessionHandler) ResumeSession(c *gin.Context) {
	h.run(c, func(ctx context.Context, actor service.Actor, id string) (*model.TestSession, error) {
		sess, err := h.engine.Resume(ctx, actor, id)
		if err == nil && !sess.WithinTime(h.now()) {
			return nil, service.ErrSessionExpired
		}
		return sess, err
	})
}

// PauseSession godoc
// POST /api/v1/sessions/:session_id/pause
func (h *TestSessionHandler) PauseSession(c *gin.Context) {
	h.run(c, h.engine.Pause)
}

// SaveAnswer godoc
// PUT /api/v1/sessions/:session_id/answers
func (h *TestSessionHandler) SaveAnswer(c *gin.Context) {
	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.run(c, func(ctx context.Context, actor service.Actor, id string) (*model.TestSession, error) {
		return h.engine.Answer(ctx, actor, id, req.QuestionID, req.Value)
	})
}

// NextQuestion godoc
// POST /api/v1/sessions/:session_id/next
func (h *TestSessionHandler) NextQuestion(c *gin.Context) {
	h.run(c, h.engine.NextQuestion)
}

// PreviousQuestion godoc
// POST /api/v1/sessions/:session_id/previous
func (h *TestSessionHandler) PreviousQuestion(c *gin.Context) {
	h.run(c, h.engine.PreviousQuestion)
}

// GoToQuestion godoc
// POST /api/v1/sessions/:session_id/goto
func (h *TestSessionHandler) GoToQuestion(c *gin.Context) {
	var req model.QuestionIndexRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.run(c, func(ctx context.Context, actor service.Actor, id string) (*model.TestSession, error) {
		return h.engine.GoToQuestion(ctx, actor, id, *req.Index)
	})
}

// ToggleFlag godoc
// POST /api/v1/sessions/:session_id/flag
func (h *TestSessionHandler) ToggleFlag(c *gin.Context) {
	var req model.QuestionIndexRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.run(c, func(ctx context.Context, actor service.Actor, id string) (*model.TestSession, error) {
		return h.engine.ToggleFlag(ctx, actor, id, *req.Index)
	})
}

// SubmitSession godoc
// POST /api/v1/sessions/:session_id/submit
// Grades the session. Late submissions come back with expired=true.
func (h *TestSessionHandler) SubmitSession(c *gin.Context) {
	res, err := h.engine.Submit(c.Request.Context(), middleware.Actor(c), c.Param("session_id"))
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// run applies op and renders the session. A session found out of time is
// auto-submitted and the score is returned with expired=true.
func (h *TestSessionHandler) run(c *gin.Context, op sessionOp) {
	ctx := c.Request.Context()
	actor := middleware.Actor(c)
	id := c.Param("session_id")

	sess, err := op(ctx, actor, id)
	if errors.Is(err, service.ErrSessionExpired) {
		h.expire(c, actor, id)
		return
	}
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, sess.View(h.now()))
}

func (h *TestSessionHandler) expire(c *gin.Context, actor service.Actor, id string) {
	res, err := h.engine.AutoSubmitExpired(c.Request.Context(), actor, id)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, ExpiredResponse{Expired: true, Result: res})
}
