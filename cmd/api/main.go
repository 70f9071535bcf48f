package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"outboxapi/docs"
	"outboxapi/internal/artifact"
	"outboxapi/internal/board"
	"outboxapi/internal/config"
	"outboxapi/internal/convert"
	"outboxapi/internal/database"
	"outboxapi/internal/database/migration"
	"outboxapi/internal/docx"
	handlers "outboxapi/internal/http/handler"
	"outboxapi/internal/http/middleware"
	"outboxapi/internal/logger"
	"outboxapi/internal/numbering"
	"outboxapi/internal/otel"
	"outboxapi/internal/pending"
	"outboxapi/internal/repository/postgres"
	"outboxapi/internal/service"
	"outboxapi/internal/signing"
	"outboxapi/internal/storage"
	"outboxapi/internal/subprocess"
)

const shutdownTimeout = 15 * time.Second

// @title Outbox API
// @version 1.0
// @description Numbering, signing and registration of outgoing documents.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(os.Stderr, "info", false, time.UTC)
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	loc := cfg.Location()
	log := logger.New(os.Stdout, cfg.LogLevel, cfg.LogPretty, loc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("journal schema is not usable")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	journalRepo := postgres.NewJournalPostgres(db)

	rules, err := numbering.NewResolver(cfg.Numbering.RulesPath, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Numbering.RulesPath).Msg("failed to load numbering rules")
	}
	alloc := numbering.NewAllocator(journalRepo, cfg.Numbering.Scope, loc)

	runner := subprocess.NewRunner(cfg.Renderer.Concurrency, cfg.Renderer.WorkDir, log)
	converter := convert.NewConverter(runner, cfg.Renderer.Binary, cfg.Renderer.Timeout)
	verifier, err := signing.NewVerifier(cfg.Signing.VerifyMode, runner, cfg.Signing.Binary, cfg.Signing.Timeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure signature verification")
	}
	signer := signing.NewCoordinator(cfg.Signing, runner, verifier, log)
	filler := docx.NewTransformer(cfg.Signing.StampImage, log)

	pendingStore, err := newPendingStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Pending.Backend).Msg("failed to initialize pending storage")
	}
	pendings := pending.NewStore(pendingStore)
	sweeper, err := pending.NewSweeper(pendings, cfg.Pending.TTL, cfg.Pending.SweepInterval, reg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pending sweeper")
	}

	artifacts := artifact.NewStore(cfg.Files.OutgoingPath, log)

	boardClient, err := board.NewClient(cfg.Board, cfg.Files.TemplateMaxBytes, reg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create board client")
	}
	poller, err := board.NewPoller(boardClient, cfg.Board.ColumnToSignID, cfg.Board.PollInterval, reg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create board poller")
	}

	metrics, err := service.NewMetrics(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register pipeline metrics")
	}

	journalSvc := service.NewJournalService(journalRepo, rules, alloc, artifacts, metrics, loc, log)
	registrationSvc := service.NewRegistrationService(service.RegistrationDeps{
		Board:     boardClient,
		Rules:     rules,
		Allocator: alloc,
		Filler:    filler,
		Renderer:  converter,
		Signer:    signer,
		Pending:   pendings,
		Journal:   journalRepo,
		Artifacts: artifacts,
		Metrics:   metrics,
	}, service.RegistrationOptions{
		TemplatePrefix:     cfg.Files.TemplatePrefix,
		SynthesizeTemplate: cfg.Files.SynthesizeTemplate,
		ColumnOutboxID:     cfg.Board.ColumnOutboxID,
		PropertyOutgoingNo: cfg.Board.PropertyOutgoingNo,
		PropertyOutgoingDt: cfg.Board.PropertyOutgoingDt,
	}, log)

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register http metrics")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(cfg.Files.TemplateMaxBytes),
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())
	// RequestID must run before Logger so every access line carries it
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())
	app.Use(middleware.NoStore())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	handlers.RegisterRoutes(app, db, handlers.Services{
		Journal:      journalSvc,
		Registration: registrationSvc,
		Rules:        rules,
		Cards:        poller,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	sweeper.Start(ctx)
	if cfg.Board.ColumnToSignID != 0 {
		poller.Start(ctx)
	}

	go func() {
		<-ctx.Done()
		shutdown(app, log, sweeper, poller, shutdownTracing)
	}()

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("sign_mode", signer.Mode()).Str("numbering_scope", cfg.Numbering.Scope).Msg("outbox api listening")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

func newPendingStorage(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	if cfg.Pending.Backend == "minio" {
		return storage.NewMinIO(ctx, cfg.MinIO)
	}
	return storage.NewLocal(cfg.Pending.Dir)
}

func shutdown(app *fiber.App, log zerolog.Logger, sweeper *pending.Sweeper, poller *board.Poller, flush func(context.Context) error) {
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	poller.Stop()
	sweeper.Stop()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := flush(ctx); err != nil {
		log.Error().Err(err).Msg("tracing flush")
	}
}
