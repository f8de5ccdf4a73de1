package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/middleware"
	"github.com/mansoorceksport/liftlog/internal/notify"
	"github.com/mansoorceksport/liftlog/internal/session"
	"github.com/mansoorceksport/liftlog/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type SessionHandler struct {
	sessions *session.Manager
	inbox    *notify.Inbox
}

func NewSessionHandler(sessions *session.Manager, inbox *notify.Inbox) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		inbox:    inbox,
	}
}

type startSessionRequest struct {
	ProgramID string `json:"program_id"`
	WorkoutID string `json:"workout_id"`
}

type completeSetRequest struct {
	Weight   *float64 `json:"weight"`
	Reps     *int     `json:"reps"`
	Duration *int     `json:"duration"`
}

// sessionResponse carries the session snapshot together with whatever the
// client has not been told yet (pending redirect, cues).
type sessionResponse struct {
	Session *session.State `json:"session,omitempty"`
	notify.Notifications
}

// StartSession creates or resumes the user's guided session
func (h *SessionHandler) StartSession(c *fiber.Ctx) error {
	var req startSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.ProgramID == "" || req.WorkoutID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "program_id and workout_id are required"})
	}

	userID := middleware.UserID(c)
	state, err := h.sessions.Start(c.UserContext(), userID, req.ProgramID, req.WorkoutID)
	if err != nil {
		return h.sessionError(c, userID, err)
	}
	return c.Status(fiber.StatusCreated).JSON(h.respond(userID, state))
}

// GetSession returns the session state and drains pending notifications
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	state, err := h.sessions.State(userID)
	if err != nil {
		return h.sessionError(c, userID, err)
	}
	return c.JSON(h.respond(userID, state))
}

func (h *SessionHandler) CompleteSet(c *fiber.Ctx) error {
	var req completeSetRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
		}
	}

	userID := middleware.UserID(c)
	state, err := h.sessions.CompleteSet(c.UserContext(), userID, domain.SetInput{
		Weight:   req.Weight,
		Reps:     req.Reps,
		Duration: req.Duration,
	})
	if err != nil {
		return h.sessionError(c, userID, err)
	}
	telemetry.AddSpanEvent(c, "set.completed", attribute.String("phase", string(state.Phase)))
	return c.JSON(h.respond(userID, state))
}

func (h *SessionHandler) SkipRest(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	state, err := h.sessions.SkipRest(userID)
	if err != nil {
		return h.sessionError(c, userID, err)
	}
	return c.JSON(h.respond(userID, state))
}

func (h *SessionHandler) StartTimer(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	state, err := h.sessions.StartExerciseTimer(userID)
	if err != nil {
		return h.sessionError(c, userID, err)
	}
	return c.JSON(h.respond(userID, state))
}

func (h *SessionHandler) StopTimer(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	state, err := h.sessions.StopExerciseTimer(c.UserContext(), userID)
	if err != nil {
		return h.sessionError(c, userID, err)
	}
	return c.JSON(h.respond(userID, state))
}

func (h *SessionHandler) AcknowledgeTimer(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	state, err := h.sessions.AcknowledgeTimeUp(c.UserContext(), userID)
	if err != nil {
		return h.sessionError(c, userID, err)
	}
	return c.JSON(h.respond(userID, state))
}

// AbandonSession leaves the workout without writing history
func (h *SessionHandler) AbandonSession(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if err := h.sessions.Abandon(c.UserContext(), userID); err != nil {
		return h.sessionError(c, userID, err)
	}
	return c.JSON(h.respond(userID, nil))
}

func (h *SessionHandler) respond(userID string, state *session.State) sessionResponse {
	return sessionResponse{
		Session:       state,
		Notifications: h.inbox.Drain(userID),
	}
}

func (h *SessionHandler) sessionError(c *fiber.Ctx, userID string, err error) error {
	var status int
	switch {
	case errors.Is(err, domain.ErrDefinitionNotFound), errors.Is(err, domain.ErrNoActiveSession):
		status = fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSetInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotResting),
		errors.Is(err, domain.ErrNotTimedExercise),
		errors.Is(err, domain.ErrTimerNotRunning),
		errors.Is(err, domain.ErrSessionFinished):
		status = fiber.StatusConflict
	default:
		return err
	}

	n := h.inbox.Drain(userID)
	body := fiber.Map{"error": err.Error()}
	if n.Redirect != "" {
		body["redirect"] = n.Redirect
	}
	if len(n.Cues) > 0 {
		body["cues"] = n.Cues
	}
	return c.Status(status).JSON(body)
}
