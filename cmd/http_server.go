package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/payments-service/internal"
	"github.com/frahmantamala/payments-service/internal/core/events"
	"github.com/frahmantamala/payments-service/internal/notifier"
	"github.com/frahmantamala/payments-service/internal/payment"
	paymentpostgres "github.com/frahmantamala/payments-service/internal/payment/postgres"
	"github.com/frahmantamala/payments-service/internal/transport"
	"github.com/frahmantamala/payments-service/internal/transport/rest"
	"github.com/frahmantamala/payments-service/internal/ws"
	"github.com/frahmantamala/payments-service/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests, gateway webhooks and websocket subscribers`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	Logger *slog.Logger
	DB     *sqlx.DB
	GormDB *gorm.DB
	Router *chi.Mux
	Hub    *ws.Hub
	NATS   *nats.Conn
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		deps.Hub.Shutdown()
		if deps.NATS != nil {
			deps.NATS.Close()
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config
	lg := deps.Logger

	baseHandler := transport.NewBaseHandler(lg)

	repository := paymentpostgres.NewPaymentRepository(deps.GormDB)

	paymentService := payment.NewPaymentService(repository, payment.GatewayCredentials{
		PublicKey:       cfg.Gateway.PublicKey,
		IntegritySecret: cfg.Gateway.IntegritySecret,
		AmountInCents:   cfg.Gateway.EffectiveAmount(),
		Currency:        cfg.Gateway.EffectiveCurrency(),
	}, lg)

	verifier := payment.NewSignatureVerifier(cfg.Gateway.EventsSecret, cfg.Gateway.EffectiveReplayWindow())

	eventBus := events.NewEventBus(lg)
	reconciler := payment.NewReconciler(repository, verifier, eventBus, lg)

	statusNotifier := notifier.New(deps.Hub, deps.NATS, cfg.Notifier.NATSSubject, lg)
	statusNotifier.RegisterEventHandlers(eventBus)

	paymentHandler := payment.NewHandler(baseHandler, paymentService)
	webhookHandler := payment.NewWebhookHandler(baseHandler, reconciler, lg)

	wsHandler := ws.NewHandler(deps.Hub, cfg.Websocket.APIKey, cfg.Server.AllowedOrigins, ws.Options{
		WriteTimeout:    cfg.Websocket.WriteTimeout,
		PongTimeout:     cfg.Websocket.PongTimeout,
		SendBufferSize:  cfg.Websocket.SendBufferSize,
		MaxMessageBytes: cfg.Websocket.MaxMessageBytes,
	}, lg)

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, cfg.Server.AllowedOrigins, paymentHandler, webhookHandler, wsHandler, lg)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	var natsConn *nats.Conn
	if config.Notifier.NATSURL != "" {
		natsConn, err = nats.Connect(config.Notifier.NATSURL,
			nats.Name("payments-service"),
			nats.MaxReconnects(-1))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
	}

	return &Dependencies{
		Config: config,
		Logger: lg,
		DB:     db,
		GormDB: gormDB,
		Router: chi.NewRouter(),
		Hub:    ws.NewHub(lg),
		NATS:   natsConn,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.ConnMaxLifetime > 0 {
		dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
