package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/skycast/pkg/storage"
)

// TurnsResponse lists recorded turns, newest first.
type TurnsResponse struct {
	Success bool            `json:"success"`
	Turns   []*storage.Turn `json:"turns"`
	Count   int             `json:"count"`
}

// TurnResponse carries a single recorded turn.
type TurnResponse struct {
	Success bool          `json:"success"`
	Turn    *storage.Turn `json:"turn"`
}

func (s *Server) handleListTurns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", storage.DefaultListLimit)
	if limit < 0 {
		return s.fail(c, fiber.StatusBadRequest, "limit must not be negative")
	}

	turns, err := s.config.Driver.List(c.UserContext(), storage.ListOptions{
		Agent: strings.Clone(c.Query("agent")),
		Limit: limit,
	})
	if err != nil {
		return s.failInternal(c, "Failed to list turns", err)
	}

	return c.JSON(TurnsResponse{
		Success: true,
		Turns:   turns,
		Count:   len(turns),
	})
}

func (s *Server) handleGetTurn(c *fiber.Ctx) error {
	id := strings.Clone(c.Params("id"))

	turn, err := s.config.Driver.Get(c.UserContext(), id)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return s.fail(c, fiber.StatusNotFound, err.Error())
		}
		return s.failInternal(c, "Failed to get turn", err)
	}

	return c.JSON(TurnResponse{Success: true, Turn: turn})
}
