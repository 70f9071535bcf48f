package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"outboxapi/internal/service"
)

// PrepareRegistration allocates a number for a board card and renders its template.
//
//	@Summary	Prepare an outgoing document
//	@Tags		outbox
//	@Accept		json
//	@Produce	json
//	@Param		request	body		service.PrepareRequest	true	"card to register"
//	@Success	201		{object}	service.PrepareResult
//	@Failure	400		{object}	errorPayload
//	@Failure	404		{object}	errorPayload
//	@Failure	502		{object}	errorPayload
//	@Router		/api/outbox/prepare [post]
func PrepareRegistration(svc service.RegistrationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.PrepareRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if req.CardID <= 0 {
			return writeError(c, fiber.StatusBadRequest, "CARD_ID_REQUIRED", "card_id is required")
		}

		res, err := svc.Prepare(c.UserContext(), req)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// PendingPDF serves the unsigned PDF the client is about to sign.
//
//	@Summary	Download a pending PDF
//	@Tags		outbox
//	@Produce	application/pdf
//	@Param		id	path	string	true	"pending id"
//	@Success	200
//	@Failure	400	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Router		/api/outbox/pending/{id}/pdf [get]
func PendingPDF(svc service.RegistrationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		f, err := svc.PendingPDF(c.UserContext(), id)
		if err != nil {
			return writeAppError(c, err)
		}
		return sendFile(c, f.Name, f.ContentType, f.Data)
	}
}

// CommitRegistration records a signed pending registration in the journal.
// The card is moved on unless move_card is explicitly false.
//
//	@Summary	Commit a signed registration
//	@Tags		outbox
//	@Accept		json
//	@Produce	json
//	@Param		request	body		service.CommitRequest	true	"signature"
//	@Success	201		{object}	service.CommitResult
//	@Failure	400		{object}	errorPayload
//	@Failure	404		{object}	errorPayload
//	@Failure	409		{object}	errorPayload
//	@Router		/api/outbox/commit [post]
func CommitRegistration(svc service.RegistrationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := service.CommitRequest{MoveCard: true}
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if _, err := uuid.Parse(req.PendingID); err != nil {
			return writeError(c, fiber.StatusBadRequest, "PENDING_ID_REQUIRED", "pending_id must be a valid id")
		}

		res, err := svc.Commit(c.UserContext(), req)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}
