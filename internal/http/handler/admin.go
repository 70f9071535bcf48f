package handler

import (
	"github.com/gofiber/fiber/v2"

	"outboxapi/internal/apperr"
	"outboxapi/internal/model"
)

// RulesAdmin exposes the numbering rule table for operators.
type RulesAdmin interface {
	Rules() map[string]model.NumberingRule
	Reload() error
}

// ReloadRules re-reads the rule file. A broken file keeps the previous table.
//
//	@Summary	Reload numbering rules
//	@Tags		admin
//	@Produce	json
//	@Success	200	{object}	map[string]model.NumberingRule
//	@Failure	400	{object}	errorPayload
//	@Router		/api/admin/numbering/reload [post]
func ReloadRules(rules RulesAdmin) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := rules.Reload(); err != nil {
			if _, ok := apperr.As(err); !ok {
				err = apperr.Validation("RULES_INVALID", "numbering rules could not be loaded: "+err.Error())
			}
			return writeAppError(c, err)
		}
		return c.JSON(fiber.Map{"data": rules.Rules()})
	}
}

// NumberingRules returns the active rule table keyed by executor id.
//
//	@Summary	List numbering rules
//	@Tags		admin
//	@Produce	json
//	@Success	200	{object}	map[string]model.NumberingRule
//	@Router		/api/admin/numbering/rules [get]
func NumberingRules(rules RulesAdmin) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": rules.Rules()})
	}
}
