// Package main is the entry point for the Comdex API
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comdex/comdexapi/internal/api"
	"github.com/comdex/comdexapi/internal/api/middleware"
	"github.com/comdex/comdexapi/internal/config"
	"github.com/comdex/comdexapi/internal/eligibility"
	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/inflight"
	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/repository"
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/audit"
	"github.com/comdex/comdexapi/pkg/utils/state"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/labstack/echo/v4"
)

func main() {
	// Load configuration
	cfg, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Print the configuration
	fmt.Println(cfg.String())

	policy, err := lifecycle.PolicyByName(cfg.PolicyTransitions)
	if err != nil {
		log.Fatalf("Invalid transition policy: %v", err)
	}
	rules := eligibility.Rules{
		InvestDuringVoting: cfg.PolicyInvestDuringVoting,
		InvestInDraft:      cfg.PolicyInvestInDraft,
		AllowRevote:        cfg.PolicyAllowRevote,
	}

	// Connect to Postgres
	db, err := repository.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}

	// Connect Redis
	redisClient, err := repository.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Init logger
	err = zaplogger.InitLogger(db)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Setup logger
	defer zaplogger.Sync()
	zaplogger.SetLogLevel(cfg.ServerLogLevel)

	auditTrail, err := audit.New(db)
	if err != nil {
		log.Fatalf("Failed to initialize audit trail: %v", err)
	}
	jobState, err := state.New(db)
	if err != nil {
		log.Fatalf("Failed to initialize state: %v", err)
	}

	// startUpMessage
	zaplogger.Info(cfg.APIName + " - " + cfg.APIVersion + " initialized")
	zaplogger.Info("Postgres initialized")
	zaplogger.Info("Redis initialized")
	zaplogger.Info("Policy", zaplogger.Fields{
		"transitions":          policy.Name(),
		"invest_during_voting": rules.InvestDuringVoting,
		"invest_in_draft":      rules.InvestInDraft,
		"allow_revote":         rules.AllowRevote,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Services
	gw := gateway.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	guard := inflight.NewRedisGuard(redisClient, "comdex:", cfg.InflightTTL)
	sessionRepo := repository.NewSessionRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	sessionService := service.NewSessionService(gw, sessionRepo, cfg.SessionTTL)
	cronService := service.NewCronService(cfg, gw, snapshotRepo, jobState, sessionService, policy)
	streamService := service.NewStreamService(redisClient, snapshotRepo)

	services := api.Services{
		Session:    sessionService,
		Index:      service.NewIndexService(gw, rules, policy),
		Manage:     service.NewManageService(gw, policy, guard, auditTrail),
		Voting:     service.NewVotingService(gw, rules, guard, auditTrail),
		Investment: service.NewInvestmentService(gw, rules, guard, auditTrail),
		Account:    service.NewAccountService(gw, guard, auditTrail),
		Cron:       cronService,
		Stream:     streamService,
	}

	// Create a new Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Setup middleware
	middleware.SetupLoggerMiddleware(e)

	// Setup routes
	api.SetupRoutes(e, cfg, services)

	// start cron jobs
	cronService.Start()

	// Relay status events and fan them out to stream clients
	publishService := service.NewPublishService(redisClient, cfg.PostgresDsn)
	go publishService.PublishStatusEvents(ctx)
	streamService.Subscribe(ctx)

	// Start the server
	startServer(ctx, e, cfg)

	cronService.Stop()
}

// startServer starts the Echo server on the specified port and shuts it down when ctx is done
func startServer(ctx context.Context, e *echo.Echo, cfg *config.Config) {
	port := cfg.ServerPort
	if port == "" {
		port = "3007"
	}

	go func() {
		zaplogger.Info("SERVER STARTED ON PORT " + port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			zaplogger.Fatal("SERVER FAILED", zaplogger.Fields{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	zaplogger.Info("SERVER SHUTTING DOWN")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zaplogger.Error("SERVER SHUTDOWN FAILED", zaplogger.Fields{"error": err.Error()})
	}
}
