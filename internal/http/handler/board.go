package handler

import (
	"github.com/gofiber/fiber/v2"

	"outboxapi/internal/board"
)

// CardSource is the cached listing of cards waiting for registration.
type CardSource interface {
	Snapshot() board.Snapshot
}

// BoardCards lists cards in the "to sign" column as of the last poll.
//
//	@Summary	Cards awaiting registration
//	@Tags		board
//	@Produce	json
//	@Success	200	{object}	board.Snapshot
//	@Router		/api/board/cards [get]
func BoardCards(src CardSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(src.Snapshot())
	}
}
