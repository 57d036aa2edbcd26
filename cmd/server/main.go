package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/api"
	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/credentials"
	"github.com/ignite/outreach/internal/personalize"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/repository/postgres"
	"github.com/ignite/outreach/internal/service/dispatch"
	"github.com/ignite/outreach/internal/service/reminder"
	"github.com/ignite/outreach/internal/tracking"
	"github.com/ignite/outreach/internal/transport"
	"github.com/ignite/outreach/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("open database", "error", err.Error())
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("ping database", "error", err.Error())
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to pg advisory locks", "error", err.Error())
			redisClient = nil
		}
	}

	// Repositories
	campaignRepo := postgres.NewCampaignRepo(db)
	contactRepo := postgres.NewContactRepo(db)
	ruleRepo := postgres.NewReminderRuleRepo(db)
	queueRepo := postgres.NewReminderQueueRepo(db)
	accountRepo := postgres.NewAccountRepo(db)
	trackingRepo := postgres.NewTrackingRepo(db)

	// Services
	creds := credentials.New(accountRepo,
		credentials.OAuthApp{ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret},
		credentials.OAuthApp{ClientID: cfg.Microsoft.ClientID, ClientSecret: cfg.Microsoft.ClientSecret},
	)
	senders := transport.NewFactory(cfg.Dispatch.SendTimeout(), cfg.SendGrid.BaseURL)
	render := personalize.New(cfg.Tracking.BaseURL)

	dispatchSvc := dispatch.NewService(campaignRepo, contactRepo, creds, senders, render, cfg.Dispatch.SendTimeout())
	reminderSvc := reminder.NewService(ruleRepo, queueRepo, campaignRepo, contactRepo,
		creds, senders, render, cfg.Sweeps.ReminderBatchSize, cfg.Dispatch.SendTimeout())
	dispatchSvc.OnCompleted(reminderSvc.OnCampaignCompleted)

	dispatcher := worker.NewDispatcher(dispatchSvc, redisClient, db, 30*time.Minute)

	server := api.NewServer(campaignRepo, contactRepo, dispatchSvc, dispatcher, reminderSvc,
		tracking.NewHandler(trackingRepo), api.StaticTokens(cfg.Auth.Tokens)).
		WithTestRecipients(cfg.Dispatch.TestRecipients)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err.Error())
	}
	// Let in-flight send loops finish; they run detached from requests.
	dispatcher.Wait()
}
