package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/liftlog/internal/domain"
)

// ProgramCatalog is the read side of the catalog served over HTTP.
type ProgramCatalog interface {
	GetProgram(ctx context.Context, id string) (*domain.Program, error)
	ListPrograms(ctx context.Context) ([]*domain.Program, error)
}

type CatalogHandler struct {
	catalog ProgramCatalog
}

func NewCatalogHandler(catalog ProgramCatalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

func (h *CatalogHandler) ListPrograms(c *fiber.Ctx) error {
	programs, err := h.catalog.ListPrograms(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": programs})
}

func (h *CatalogHandler) GetProgram(c *fiber.Ctx) error {
	program, err := h.catalog.GetProgram(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrProgramNotFound) || errors.Is(err, domain.ErrInvalidID) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Program not found"})
		}
		return err
	}
	return c.JSON(program)
}
