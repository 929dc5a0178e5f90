package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/api/handlers"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/email"
	"auction-engine/internal/infrastructure/leader"
	"auction-engine/internal/infrastructure/mysql"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	if zl, ok := log.(*logger.ZapLogger); ok {
		defer func() { _ = zl.Sync() }()
	}

	log.Info("Starting auction service", "instance_id", cfg.Instance.ID, "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	rdb, err := utils.InitializeRedis(ctx, cfg.Redis)
	if err != nil {
		cancel()
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	db, err := utils.InitializeMysql(ctx, cfg.MySQL)
	if err != nil {
		cancel()
		log.Fatal("Failed to connect to MySQL", "error", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}(db)
	log.Info("Connected to MySQL")

	if cfg.MySQL.AutoMigrate {
		if err := mysql.EnsureSchema(ctx, db); err != nil {
			cancel()
			log.Fatal("Failed to apply schema", "error", err)
		}
	}
	cancel()

	clk := clock.Real()

	// Repositories
	auctionRepo := mysql.NewMySQLAuctionRepository(db)
	bidRepo := mysql.NewMySQLBidRepository(db)
	notificationRepo := mysql.NewMySQLNotificationRepository(db)
	uow := mysql.NewUnitOfWork(db)
	users := mysql.NewMySQLUserDirectory(db)
	catalog := mysql.NewMySQLItemCatalog(db)

	// Delivery
	var mailer domain.EmailDispatcher = email.NewLogDispatcher(log)
	if cfg.SMTP.Enabled {
		smtpDispatcher, err := email.NewSMTPDispatcher(cfg.SMTP)
		if err != nil {
			log.Fatal("Invalid SMTP configuration", "error", err)
		}
		mailer = smtpDispatcher
	}
	publisher := redis.NewEventPublisher(rdb, cfg.Redis.Channel)
	dispatcher := services.NewDeliveryDispatcher(publisher, mailer, users,
		cfg.Notification.AdminEmail, cfg.Notification.DeliveryTimeout, log)
	deliverer := services.NewAsyncDeliverer(dispatcher, cfg.Notification.Workers, cfg.Notification.QueueSize, log)
	deliverer.Start(context.Background())

	// Services
	fanout := services.NewNotificationFanout(clk)
	bidService := services.NewBidService(auctionRepo, uow, users, catalog, fanout, deliverer, clk,
		cfg.Bidding.MaxAttempts, log)
	auctionManager := services.NewAuctionManager(auctionRepo, bidRepo, uow, catalog, fanout, deliverer, log)
	notificationService := services.NewNotificationService(notificationRepo)

	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Leader.TTL, log)
	sweeper := services.NewAuctionSweeper(auctionRepo, auctionManager, services.NewLogAlerter(log), clk,
		cfg.Sweeper.Interval, cfg.Sweeper.MaxFailures, log).
		WithLeaderElection(leaderElection, cfg.Instance.ID)

	// HTTP
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		MaxAge: 86400,
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)
			log.Info("Request handled",
				"id", c.Response().Header().Get(echo.HeaderXRequestID),
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"latency", time.Since(started).String())
			return err
		}
	})

	api := e.Group("/api/v1")
	handlers.NewAuctionHandler(bidService, auctionManager, log).Register(api)
	handlers.NewNotificationHandler(notificationService, log).Register(api)
	handlers.NewSweeperHandler(sweeper, log).Register(api)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"service":     "auction-service",
			"instance_id": cfg.Instance.ID,
			"timestamp":   time.Now().Format(time.RFC3339),
		})
	})

	// Background work
	runCtx, stopRun := context.WithCancel(context.Background())
	if cfg.Sweeper.Enabled {
		go campaignForLeadership(runCtx, leaderElection, cfg.Instance.ID, cfg.Leader.TTL, log)
		if err := sweeper.Start(runCtx); err != nil {
			log.Fatal("Failed to start sweeper", "error", err)
		}
	}

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("Starting auction HTTP server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction service...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	stopRun()
	if cfg.Sweeper.Enabled {
		if err := sweeper.Stop(); err != nil {
			log.Error("Failed to stop sweeper", "error", err)
		}
		if err := leaderElection.ReleaseLeadership(shutdownCtx, cfg.Instance.ID); err != nil {
			log.Error("Failed to release leadership", "error", err)
		}
	}
	deliverer.Stop()

	log.Info("Auction service stopped")
}

// campaignForLeadership retries acquisition until ctx ends. Holding the lease
// is kept alive by the election itself.
func campaignForLeadership(ctx context.Context, election domain.LeaderElection, instanceID string,
	ttl time.Duration, log logger.Logger) {
	interval := ttl / 2
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		isLeader, err := election.IsLeader(ctx, instanceID)
		if err == nil && !isLeader {
			became, err := election.BecomeLeader(ctx, instanceID)
			if err != nil {
				log.Error("Failed to attempt leadership", "error", err)
			} else if became {
				log.Info("Became sweeper leader", "instance_id", instanceID)
			}
		} else if err != nil && ctx.Err() == nil {
			log.Error("Failed to check leadership", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
