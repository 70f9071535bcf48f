package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"outboxapi/internal/service"
)

// Services are the collaborators behind the HTTP surface.
type Services struct {
	Journal      service.JournalService
	Registration service.RegistrationService
	Rules        RulesAdmin
	Cards        CardSource
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// /metrics and /swagger are mounted by main.
func RegisterRoutes(app *fiber.App, db *sql.DB, s Services) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/api")

	outbox := api.Group("/outbox")
	outbox.Post("/prepare", PrepareRegistration(s.Registration))
	outbox.Get("/pending/:id/pdf", PendingPDF(s.Registration))
	outbox.Post("/commit", CommitRegistration(s.Registration))

	journal := api.Group("/journal")
	journal.Get("/entries", ListEntries(s.Journal))
	journal.Post("/entries", CreateEntry(s.Journal))
	journal.Get("/entries/:id", GetEntry(s.Journal))
	journal.Patch("/entries/:id", UpdateEntry(s.Journal))
	journal.Delete("/entries/:id", DeleteEntry(s.Journal))
	journal.Get("/entries/:id/files/:kind", EntryArtifact(s.Journal))
	journal.Get("/next-number", NextNumber(s.Journal))
	journal.Get("/export", ExportJournal(s.Journal))

	if s.Rules != nil {
		admin := api.Group("/admin/numbering")
		admin.Post("/reload", ReloadRules(s.Rules))
		admin.Get("/rules", NumberingRules(s.Rules))
	}
	if s.Cards != nil {
		api.Get("/board/cards", BoardCards(s.Cards))
	}
}
