package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/audit"
	"github.com/edrees2022/log-and-ledger-sub005/internal/config"
	"github.com/edrees2022/log-and-ledger-sub005/internal/currency"
	"github.com/edrees2022/log-and-ledger-sub005/internal/directory"
	"github.com/edrees2022/log-and-ledger-sub005/internal/documents"
	httpapi "github.com/edrees2022/log-and-ledger-sub005/internal/interfaces/http"
	"github.com/edrees2022/log-and-ledger-sub005/internal/notification"
	"github.com/edrees2022/log-and-ledger-sub005/internal/repository"
	"github.com/edrees2022/log-and-ledger-sub005/internal/worker"
	"github.com/edrees2022/log-and-ledger-sub005/internal/workflow"
	"github.com/edrees2022/log-and-ledger-sub005/migrations"
	"github.com/edrees2022/log-and-ledger-sub005/pkg/database"
	"github.com/edrees2022/log-and-ledger-sub005/pkg/utils"
)

func main() {
	// Local development convenience; a missing .env is not an error
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval workflow engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(migrations.FS); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	workflowRepo := repository.NewWorkflowRepository(db.DB, logger)
	requestRepo := repository.NewRequestRepository(db.DB, logger)
	actionRepo := repository.NewActionRepository(db.DB, logger)

	// Collaborator adapters
	auditRecorder := audit.NewRecorder(db.DB, logger)
	userDirectory := directory.NewSQLDirectory(db.DB, logger)
	documentStore := documents.NewSQLStore(db.DB, logger)
	converter := currency.NewStaticConverter(cfg.Currency.Base, cfg.Currency.Rates)

	var notifier workflow.NotificationDispatcher
	switch cfg.Notification.Channel {
	case "lark":
		notifier = notification.NewLarkDispatcher(notification.LarkConfig{
			AppID:     cfg.Notification.LarkAppID,
			AppSecret: cfg.Notification.LarkAppSecret,
		}, logger)
	default:
		notifier = notification.NewLogDispatcher(logger)
	}

	// Approval engine
	statusSync := workflow.NewDocumentStatusSync(documentStore, requestRepo, logger)
	selector := workflow.NewSelector(workflowRepo, converter, logger)
	instantiator := workflow.NewInstantiator(db, requestRepo, userDirectory, auditRecorder, notifier, logger)
	gate := workflow.NewGate(db, requestRepo, actionRepo, statusSync, auditRecorder, notifier, logger)
	engine := workflow.NewEngine(selector, instantiator, gate, documentStore, requestRepo, actionRepo, logger)
	definitions := workflow.NewDefinitionService(db, workflowRepo, logger)

	// Background reconciler re-drives document status updates that failed
	// inline after a request reached a terminal state
	reconciler := worker.NewReconciler(requestRepo, statusSync, cfg.Reconciler.Interval, logger)
	if cfg.Reconciler.Enabled {
		if err := reconciler.Start(context.Background()); err != nil {
			logger.Fatal("Failed to start reconciler", zap.Error(err))
		}
	}

	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, engine, definitions, logger)

	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if cfg.Reconciler.Enabled {
		reconciler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
