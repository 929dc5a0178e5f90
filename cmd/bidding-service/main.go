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
	"auction-engine/internal/api/middleware"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/email"
	"auction-engine/internal/infrastructure/mysql"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/gorilla/mux"
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

	log.Info("Starting bidding service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	rdb, err := utils.InitializeRedis(ctx, cfg.Redis)
	if err != nil {
		cancel()
		log.Fatal("Failed to connect to Redis", "error", err)
	}

	db, err := utils.InitializeMysql(ctx, cfg.MySQL)
	cancel()
	if err != nil {
		log.Fatal("Failed to connect to MySQL", "error", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}(db)

	clk := clock.Real()

	// Initialize repositories
	auctionRepo := mysql.NewMySQLAuctionRepository(db)
	uow := mysql.NewUnitOfWork(db)
	users := mysql.NewMySQLUserDirectory(db)
	catalog := mysql.NewMySQLItemCatalog(db)

	// Initialize Redis services
	snapshotCache := redis.NewRedisSnapshotCache(rdb, cfg.Redis.SnapshotTTL)
	eventPublisher := redis.NewEventPublisher(rdb, cfg.Redis.Channel)
	eventSubscriber := redis.NewRedisEventSubscriber(rdb, cfg.Redis.Channel, log)

	var mailer domain.EmailDispatcher = email.NewLogDispatcher(log)
	if cfg.SMTP.Enabled {
		smtpDispatcher, err := email.NewSMTPDispatcher(cfg.SMTP)
		if err != nil {
			log.Fatal("Invalid SMTP configuration", "error", err)
		}
		mailer = smtpDispatcher
	}
	dispatcher := services.NewDeliveryDispatcher(eventPublisher, mailer, users,
		cfg.Notification.AdminEmail, cfg.Notification.DeliveryTimeout, log)
	deliverer := services.NewAsyncDeliverer(dispatcher, cfg.Notification.Workers, cfg.Notification.QueueSize, log)
	deliverer.Start(context.Background())

	// Initialize WebSocket components
	connManager := websocket.NewConnectionManager(log)
	notifier := websocket.NewWebSocketNotifier(connManager)

	// Initialize services
	fanout := services.NewNotificationFanout(clk)
	bidService := services.NewBidService(auctionRepo, uow, users, catalog, fanout, deliverer, clk,
		cfg.Bidding.MaxAttempts, log)
	prices := services.NewSnapshotReader(auctionRepo, snapshotCache, log)
	eventListener := services.NewEventListener(snapshotCache, connManager, notifier, notifier, log)

	listenCtx, stopListening := context.WithCancel(context.Background())
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if err := eventListener.Start(listenCtx, eventSubscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event listener stopped", "error", err)
		}
	}()

	router := mux.NewRouter()
	router.Use(middleware.CORSWithLogging(log))

	handlers.NewWebSocketHandlers(bidService, prices, connManager, clk, log).Register(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","service":"bidding-service","timestamp":%q}`,
			time.Now().Format(time.RFC3339))
	}).Methods(http.MethodGet)

	serverAddr := fmt.Sprintf("%s:%d", cfg.BiddingServer.Host, cfg.BiddingServer.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting bidding service", "address", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bidding service...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	stopListening()
	<-listenerDone
	deliverer.Stop()

	if err := rdb.Close(); err != nil {
		log.Error("Failed to close Redis client", "error", err)
	}

	log.Info("Bidding service stopped")
}
