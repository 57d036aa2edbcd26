package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/credentials"
	"github.com/ignite/outreach/internal/personalize"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/repository/postgres"
	"github.com/ignite/outreach/internal/service/dispatch"
	"github.com/ignite/outreach/internal/service/reminder"
	"github.com/ignite/outreach/internal/transport"
	"github.com/ignite/outreach/internal/worker"
)

// The worker binary hosts the periodic tasks: the reminder queue processor
// and the scheduled-campaign sweeper. It shares no memory with the API
// server; coordination happens through the database and the dispatch locks.
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

	campaignRepo := postgres.NewCampaignRepo(db)
	contactRepo := postgres.NewContactRepo(db)
	ruleRepo := postgres.NewReminderRuleRepo(db)
	queueRepo := postgres.NewReminderQueueRepo(db)
	accountRepo := postgres.NewAccountRepo(db)

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

	processor := worker.NewReminderProcessor(reminderSvc, cfg.Sweeps.ReminderInterval())
	sweeper := worker.NewCampaignSweeper(campaignRepo, creds, dispatcher, cfg.Sweeps.ScheduleInterval())

	processor.Start()
	sweeper.Start()
	logger.Info("worker started",
		"reminder_interval", cfg.Sweeps.ReminderInterval().String(),
		"schedule_interval", cfg.Sweeps.ScheduleInterval().String())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("worker shutting down")
	sweeper.Stop()
	processor.Stop()
	dispatcher.Wait()
}
