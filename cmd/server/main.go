package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Noptus/btp4ai-wire/internal/card"
	"github.com/Noptus/btp4ai-wire/internal/config"
	"github.com/Noptus/btp4ai-wire/internal/contentstore"
	"github.com/Noptus/btp4ai-wire/internal/feed"
	"github.com/Noptus/btp4ai-wire/internal/handlers"
	"github.com/Noptus/btp4ai-wire/internal/jobs"
	"github.com/Noptus/btp4ai-wire/internal/logging"
	"github.com/Noptus/btp4ai-wire/internal/metrics"
	"github.com/Noptus/btp4ai-wire/internal/newswire"
	"github.com/Noptus/btp4ai-wire/internal/publisher"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting BTP4AI Wire publisher...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (repo: %s/%s, cadence: %s, run: %s %s)",
		cfg.GitHubOwner, cfg.GitHubRepo, cfg.Cadence, cfg.RunTime(), cfg.LocalTZ)

	if cfg.GitHubToken == "" {
		log.Println("⚠️  GITHUB_TOKEN not set - publishing will fail until it is configured")
	}

	cardTemplate, err := card.LoadTemplate(cfg.CardTemplatePath)
	if err != nil {
		log.Fatalf("❌ Failed to load card template: %v", err)
	}
	log.Println("✅ Card template loaded")

	m := metrics.Init()
	instanceID := uuid.New().String()

	title := "BTP4AI Wire — Weekly Brief"
	channelDesc := "Weekly AI highlights for SAP EMEA BTP4AI Hub"
	if cfg.Cadence == config.CadenceDaily {
		title = "BTP4AI Wire — Daily Brief"
		channelDesc = "Daily AI news for SAP EMEA BTP4AI Hub"
	}

	store := contentstore.NewGitHubStore(cfg.GitHubOwner, cfg.GitHubRepo, cfg.Branch, cfg.GitHubToken)
	provider := newswire.NewPerplexityProvider(cfg.PPLXAPIKey, cfg.PPLXModel)
	feedBuilder := feed.NewBuilder(store, cfg.SiteURL, cfg.MaxFeedItems, title, channelDesc)

	pub := publisher.New(publisher.Options{
		Store:        store,
		Provider:     provider,
		Template:     cardTemplate,
		Feed:         feedBuilder,
		Metrics:      m,
		Token:        cfg.GitHubToken,
		Cadence:      cfg.Cadence,
		MaxFeedItems: cfg.MaxFeedItems,
		Location:     cfg.Location(),
		Title:        title,
	})

	// Background scheduler
	var scheduler *jobs.JobScheduler
	if cfg.EnableScheduler {
		scheduler = jobs.NewJobScheduler(cfg.RetryCooldown)
		scheduler.OnRetry(func(string) { m.RetriedRuns.Inc() })
		policy := jobs.SchedulePolicy{
			Cadence:  cfg.Cadence,
			Weekday:  cfg.RunWeekday,
			Hour:     cfg.RunHour,
			Minute:   cfg.RunMinute,
			Location: cfg.Location(),
			CronExpr: cfg.RunCron,
		}
		scheduler.Register("publish-card", jobs.NewPublishCardJob(pub, policy, m, cfg.RunCatchUp))
		if err := scheduler.Start(); err != nil {
			log.Fatalf("❌ Failed to start scheduler: %v", err)
		}
	} else {
		log.Println("⚠️  Scheduler disabled (ENABLE_SCHEDULER=false)")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "BTP4AI Wire v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // run-now blocks for a full publish round trip
		IdleTimeout:  120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("btp4ai_wire")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Manual triggers cause GitHub commits; keep them hard to hammer.
	app.Use("/action", limiter.New(limiter.Config{
		Max:        10,
		Expiration: time.Minute,
	}))

	healthHandler := handlers.NewHealthHandler(cfg, scheduler, instanceID)
	actionHandler := handlers.NewActionHandler(pub)

	app.Get("/health", healthHandler.Handle)
	app.Post("/action/run-now", actionHandler.RunNow)
	app.Post("/action/rebuild-feed", actionHandler.RebuildFeed)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Println("🛑 Shutting down...")
		if scheduler != nil {
			scheduler.Stop()
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
