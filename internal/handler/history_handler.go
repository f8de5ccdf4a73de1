package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/middleware"
)

const maxHistoryLimit = 200

type HistoryHandler struct {
	history        domain.HistoryRepository
	activePrograms domain.ActiveProgramRepository
}

func NewHistoryHandler(history domain.HistoryRepository, activePrograms domain.ActiveProgramRepository) *HistoryHandler {
	return &HistoryHandler{
		history:        history,
		activePrograms: activePrograms,
	}
}

// ListHistory returns the user's finished workouts, newest first
func (h *HistoryHandler) ListHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > maxHistoryLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 200"})
	}

	records, err := h.history.ListByUser(c.UserContext(), middleware.UserID(c), int64(limit))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": records})
}

// GetActiveProgram returns where the user is within the program's week/day grid
func (h *HistoryHandler) GetActiveProgram(c *fiber.Ctx) error {
	active, err := h.activePrograms.GetByUser(c.UserContext(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, domain.ErrActiveProgramNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":    err.Error(),
				"redirect": domain.DestinationProgramSelection,
			})
		}
		return err
	}
	return c.JSON(active)
}
