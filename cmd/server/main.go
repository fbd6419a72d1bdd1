package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/napoleonai/inbox/internal/annotator"
	"github.com/napoleonai/inbox/internal/auth"
	"github.com/napoleonai/inbox/internal/automation"
	"github.com/napoleonai/inbox/internal/cache"
	"github.com/napoleonai/inbox/internal/config"
	"github.com/napoleonai/inbox/internal/connectors"
	"github.com/napoleonai/inbox/internal/database"
	"github.com/napoleonai/inbox/internal/health"
	"github.com/napoleonai/inbox/internal/messages"
	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/notifications"
	"github.com/napoleonai/inbox/internal/streams"
	"github.com/napoleonai/inbox/internal/worker"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := models.InitEncryption(cfg.EncryptionKey); err != nil {
		logger.Error("Failed to initialize token encryption", "error", err.Error())
		os.Exit(1)
	}

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err.Error())
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		logger.Error("Failed to run migrations", "error", err.Error())
		os.Exit(1)
	}

	if cfg.SeedDevData {
		if err := database.SeedDevData(db); err != nil {
			logger.Warn("Failed to seed dev data", "error", err.Error())
		}
	}

	// Redis Streams publisher for row-level change events. Degraded but
	// functional without it: clients reconcile on fetch.
	publisher, err := streams.NewPublisher(cfg.RedisURL)
	if err != nil {
		logger.Warn("Streams publisher unavailable, change events disabled", "error", err.Error())
		publisher = nil
	} else {
		defer publisher.Close()
	}

	tasks, err := worker.NewClient(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to create task client", "error", err.Error())
		os.Exit(1)
	}
	defer tasks.Close()

	annotatorClient := annotator.NewClient(cfg.AnnotatorURL, cfg.AnnotatorSecret, cfg.AnnotatorStubMode)
	recorder := automation.NewRecorder(db, publisher)

	stopWorker, err := worker.Start(cfg, db, annotatorClient, recorder, publisher)
	if err != nil {
		logger.Error("Failed to start worker", "error", err.Error())
		os.Exit(1)
	}
	defer stopWorker()

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		logger.Error("Failed to start scheduler", "error", err.Error())
		os.Exit(1)
	}
	defer stopScheduler()

	// Push channel is optional; absent credentials mean in-app only.
	var pushSender *notifications.PushSender
	if cfg.FirebaseCredentialsFile != "" {
		fcmClient, err := notifications.InitFirebase(context.Background(), cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Warn("Firebase unavailable, push delivery disabled", "error", err.Error())
		} else {
			limiter := rate.NewLimiter(rate.Limit(cfg.PushRatePerSecond), cfg.PushRatePerSecond)
			pushSender = notifications.NewPushSender(fcmClient, limiter)
		}
	}

	hub := notifications.NewHub(db, notifications.NewDispatcher(), pushSender)
	manager := messages.NewManager(messages.NewRepository(db, publisher))

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "server"
	}
	stopConsumer, err := streams.StartChangeConsumer(cfg.RedisURL, hostname, func(evt streams.ChangeEvent) error {
		if err := manager.HandleChangeEvent(evt); err != nil {
			return err
		}
		return hub.HandleChangeEvent(evt)
	})
	if err != nil {
		logger.Warn("Change consumer unavailable, live updates disabled", "error", err.Error())
	} else {
		defer stopConsumer()
	}

	if _, err := connectors.InitConnectors(db, cfg.ConnectorDir); err != nil {
		logger.Warn("Connector discovery failed", "dir", cfg.ConnectorDir, "error", err.Error())
	}
	ingestor := connectors.NewIngestor(db, tasks, publisher, recorder, logger)

	auth.InitProviders(cfg)

	router := newRouter(cfg, db, manager, hub, recorder, ingestor)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	gatewaySrv := startGateway(cfg, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if gatewaySrv != nil {
		if err := gatewaySrv.Shutdown(ctx); err != nil {
			logger.Warn("Gateway shutdown failed", "error", err.Error())
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", "error", err.Error())
	}
}

func newRouter(cfg *config.Config, db *gorm.DB, manager *messages.Manager, hub *notifications.Hub, recorder *automation.Recorder, ingestor *connectors.Ingestor) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
	})
	router.Use(sessions.Sessions("napoleon_session", store))

	router.GET("/health", gin.WrapF(health.Handler))

	router.GET("/auth/:provider", auth.HandleLogin)
	router.GET("/auth/:provider/callback", auth.HandleCallback(db))
	router.GET("/logout", auth.HandleLogout)

	api := router.Group("/api")
	api.Use(auth.RequireAuth())
	{
		api.GET("/messages", messages.ListHandler(db, manager))
		api.GET("/messages/:id", messages.GetMessageHandler(db, manager))
		api.POST("/messages/actions", messages.ActionHandler(db, manager))

		api.GET("/notifications", notifications.ListHandler(db, hub))
		api.POST("/notifications/:id/read", notifications.MarkReadHandler(db, hub))
		api.POST("/notifications/read_all", notifications.MarkAllReadHandler(db, hub))
		api.DELETE("/notifications/:id", notifications.DeleteHandler(db, hub))
		api.GET("/notifications/preferences", notifications.GetPreferencesHandler(db))
		api.PUT("/notifications/preferences", notifications.SavePreferencesHandler(db))

		api.POST("/automation_errors", automation.LogErrorHandler(db, recorder))
		api.GET("/automation_errors", automation.GetErrorsHandler(db, recorder))

		api.POST("/connectors/:name/messages", connectors.IngestHandler(db, ingestor))
		api.PUT("/connectors/:name/settings", connectors.SaveSettingsHandler(db))
	}

	return router
}

// startGateway runs the offline cache gateway on its own listener in
// front of the application port. Returns nil when disabled.
func startGateway(cfg *config.Config, logger *slog.Logger) *http.Server {
	if cfg.GatewayPort == "" {
		return nil
	}

	var store cache.Store
	if cfg.CacheBackend == "redis" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis cache unavailable, using memory store", "error", err.Error())
			store = cache.NewMemoryStore()
		} else {
			store = redisStore
		}
	} else {
		store = cache.NewMemoryStore()
	}

	upstream := "http://127.0.0.1:" + cfg.Port
	gateway := cache.NewGateway(store, cache.DefaultClassifier(), upstreamFetcher(upstream))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := gateway.Activate(ctx); err != nil {
		logger.Warn("Gateway cache activation failed", "error", err.Error())
	}
	gateway.Precache(ctx, upstream, []string{"/", "/offline", "/manifest.json"})

	srv := &http.Server{
		Addr:              ":" + cfg.GatewayPort,
		Handler:           gateway,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Cache gateway starting", "port", cfg.GatewayPort, "backend", cfg.CacheBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Gateway failed", "error", err.Error())
		}
	}()
	return srv
}

// upstreamFetcher forwards gateway misses to the application listener,
// preserving the original request path and headers.
func upstreamFetcher(base string) cache.Fetcher {
	baseURL, err := url.Parse(base)
	if err != nil {
		panic("invalid upstream base URL: " + base)
	}
	transport := http.DefaultTransport
	return func(r *http.Request) (*http.Response, error) {
		req := r.Clone(r.Context())
		req.URL.Scheme = baseURL.Scheme
		req.URL.Host = baseURL.Host
		req.RequestURI = ""
		req.Host = r.Host
		return transport.RoundTrip(req)
	}
}
