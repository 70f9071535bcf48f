package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"outboxapi/internal/model"
	"outboxapi/internal/service"
)

func queryInt(c *fiber.Ctx, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// journalQuery parses the filter and paging params. bad names the first
// param that is not an integer.
func journalQuery(c *fiber.Ctx) (q service.JournalQuery, bad string) {
	var ok bool
	if q.Year, ok = queryInt(c, "year"); !ok {
		return q, "year"
	}
	if q.Month, ok = queryInt(c, "month"); !ok {
		return q, "month"
	}
	if q.Limit, ok = queryInt(c, "limit"); !ok {
		return q, "limit"
	}
	if q.Offset, ok = queryInt(c, "offset"); !ok {
		return q, "offset"
	}
	return q, ""
}

func invalidParam(c *fiber.Ctx, name string) error {
	return writeError(c, fiber.StatusBadRequest, "INVALID_"+strings.ToUpper(name), "invalid "+name)
}

func entryID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}

// ListEntries pages the journal, newest issue date first.
//
//	@Summary	List journal entries
//	@Tags		journal
//	@Produce	json
//	@Param		year	query		int	false	"issue year"
//	@Param		month	query		int	false	"issue month, needs year"
//	@Param		limit	query		int	false	"page size"
//	@Param		offset	query		int	false	"page offset"
//	@Success	200		{object}	service.JournalListResult
//	@Failure	400		{object}	errorPayload
//	@Router		/api/journal/entries [get]
func ListEntries(svc service.JournalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, bad := journalQuery(c)
		if bad != "" {
			return invalidParam(c, bad)
		}

		res, err := svc.List(c.UserContext(), q)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(res)
	}
}

// CreateEntry registers a document by hand.
//
//	@Summary	Create a journal entry
//	@Tags		journal
//	@Accept		json
//	@Produce	json
//	@Param		request	body		service.CreateEntryRequest	true	"entry"
//	@Success	201		{object}	model.JournalEntry
//	@Failure	400		{object}	errorPayload
//	@Failure	409		{object}	errorPayload
//	@Router		/api/journal/entries [post]
func CreateEntry(svc service.JournalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.CreateEntryRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		e, err := svc.Create(c.UserContext(), req)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(e)
	}
}

// GetEntry returns entry metadata.
//
//	@Summary	Get a journal entry
//	@Tags		journal
//	@Produce	json
//	@Param		id	path		int	true	"entry id"
//	@Success	200	{object}	model.JournalEntry
//	@Failure	404	{object}	errorPayload
//	@Router		/api/journal/entries/{id} [get]
func GetEntry(svc service.JournalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := entryID(c)
		if !ok {
			return invalidParam(c, "id")
		}

		e, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(e)
	}
}

// UpdateEntry applies a partial correction.
//
//	@Summary	Update a journal entry
//	@Tags		journal
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int					true	"entry id"
//	@Param		request	body		model.JournalPatch	true	"fields to change"
//	@Success	200		{object}	model.JournalEntry
//	@Failure	400		{object}	errorPayload
//	@Failure	404		{object}	errorPayload
//	@Failure	409		{object}	errorPayload
//	@Router		/api/journal/entries/{id} [patch]
func UpdateEntry(svc service.JournalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := entryID(c)
		if !ok {
			return invalidParam(c, "id")
		}
		var patch model.JournalPatch
		if err := c.BodyParser(&patch); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		e, err := svc.Update(c.UserContext(), id, patch)
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(e)
	}
}

// DeleteEntry removes an entry and its folder.
//
//	@Summary	Delete a journal entry
//	@Tags		journal
//	@Param		id	path	int	true	"entry id"
//	@Success	204
//	@Failure	404	{object}	errorPayload
//	@Router		/api/journal/entries/{id} [delete]
func DeleteEntry(svc service.JournalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := entryID(c)
		if !ok {
			return invalidParam(c, "id")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeAppError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// EntryArtifact downloads the PDF, signature or attachments archive of an entry.
//
//	@Summary	Download an entry file
//	@Tags		journal
//	@Param		id		path	int		true	"entry id"
//	@Param		kind	path	string	true	"pdf, sig or attachments"
//	@Success	200
//	@Failure	400	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Router		/api/journal/entries/{id}/files/{kind} [get]
func EntryArtifact(svc service.JournalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := entryID(c)
		if !ok {
			return invalidParam(c, "id")
		}

		f, err := svc.Artifact(c.UserContext(), id, model.ArtifactKind(c.Params("kind")))
		if err != nil {
			return writeAppError(c, err)
		}
		return sendFile(c, f.Name, f.ContentType, f.Data)
	}
}

// NextNumber previews the number an executor would receive now.
//
//	@Summary	Preview the next number
//	@Tags		journal
//	@Produce	json
//	@Param		executor_id	query		string	false	"board member id"
//	@Success	200			{object}	model.Allocation
//	@Router		/api/journal/next-number [get]
func NextNumber(svc service.JournalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := svc.NextNumber(c.UserContext(), c.Query("executor_id"))
		if err != nil {
			return writeAppError(c, err)
		}
		return c.JSON(a)
	}
}

// ExportJournal downloads the filtered journal as XLSX.
//
//	@Summary	Export the journal
//	@Tags		journal
//	@Produce	application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Param		year	query	int	false	"issue year"
//	@Param		month	query	int	false	"issue month, needs year"
//	@Success	200
//	@Failure	400	{object}	errorPayload
//	@Router		/api/journal/export [get]
func ExportJournal(svc service.JournalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, bad := journalQuery(c)
		if bad != "" {
			return invalidParam(c, bad)
		}

		f, err := svc.Export(c.UserContext(), q)
		if err != nil {
			return writeAppError(c, err)
		}
		return sendFile(c, f.Name, f.ContentType, f.Data)
	}
}
