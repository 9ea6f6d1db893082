// File: cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/smartdevs17/ticket-gateway/internal/connection"
	"github.com/smartdevs17/ticket-gateway/internal/gateway"
	"github.com/smartdevs17/ticket-gateway/internal/locks"
	"github.com/smartdevs17/ticket-gateway/internal/metrics"
	"github.com/smartdevs17/ticket-gateway/internal/monitor"
	"github.com/smartdevs17/ticket-gateway/internal/network"
	"github.com/smartdevs17/ticket-gateway/internal/notification"
	"github.com/smartdevs17/ticket-gateway/internal/server"
	"github.com/smartdevs17/ticket-gateway/internal/storage"
	"github.com/smartdevs17/ticket-gateway/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the gateway and its supporting components
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	metrics      *metrics.Manager
	connection   *connection.ReadHandle
	wallet       connection.Wallet
	storage      storage.Storage
	guard        locks.Guard
	notification *notification.NotificationManager
	gateway      *gateway.Gateway
	reconciler   *monitor.Reconciler
	server       *server.HTTPServer
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance. The HTTP server is only
// built when withServer is set.
func NewApplication(cfg *config.Config, withServer bool) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:  cfg,
		metrics: metrics.NewManager(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(withServer); err != nil {
		app.Stop()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Debug("Logger initialized")
	return nil
}

func (app *Application) initializeComponents(withServer bool) error {
	if err := app.initializeConnection(); err != nil {
		return fmt.Errorf("failed to initialize connection: %w", err)
	}

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}

	if err := app.initializeGateway(); err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	if withServer {
		app.server = server.NewHTTPServer(app.config.Server, app.gateway, app.notification, app.metrics, AppVersion)

		gwCfg := app.config.Gateway
		if app.storage != nil && gwCfg.ReconcileInterval > 0 {
			app.reconciler = monitor.NewReconciler(app.connection, app.storage, app.notification,
				app.metrics.GetPrometheusMetrics(), monitor.ReconcilerConfig{
					PollInterval: gwCfg.ReconcileInterval,
					MinAge:       gwCfg.ReconcileMinAge,
					BatchSize:    gwCfg.ReconcileBatchSize,
				})
		}
	}

	app.logger.Debug("All components initialized successfully")
	return nil
}

func (app *Application) initializeConnection() error {
	resolved, err := network.Resolve(network.SettingsFromConfig(app.config.Network))
	if err != nil {
		return err
	}

	app.logger.WithFields(logrus.Fields{
		"network":  resolved.Name,
		"chain_id": resolved.ChainID,
		"registry": resolved.RegistryAddress.Hex(),
	}).Info("Connecting to ledger")

	app.connection, err = connection.OpenReadConnection(app.ctx, resolved, connection.Options{
		DialTimeout: app.config.Network.DialTimeout,
		Metrics:     app.metrics.GetPrometheusMetrics(),
	})
	if err != nil {
		return err
	}

	app.wallet, err = connection.NewWallet(app.ctx, app.config.Wallet)
	if err != nil {
		return fmt.Errorf("failed to open wallet: %w", err)
	}
	return nil
}

func (app *Application) initializeStorage() error {
	if !app.config.Storage.Enabled {
		app.logger.Info("Transaction journal disabled")
		return nil
	}

	store, err := storage.NewStorage(app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.storage = storage.NewStorageWithMetrics(store, app.metrics.GetPrometheusMetrics())
	return nil
}

func (app *Application) initializeNotification() error {
	var err error
	app.notification, err = notification.NewFromConfig(app.ctx, app.config.Notifications, app.metrics.GetPrometheusMetrics())
	return err
}

func (app *Application) initializeGateway() error {
	var err error
	app.guard, err = locks.NewGuard(app.config.Locks)
	if err != nil {
		return err
	}

	gwCfg := app.config.Gateway
	opts := []gateway.Option{
		gateway.WithGuard(app.guard),
		gateway.WithMetrics(app.metrics.GetPrometheusMetrics()),
		gateway.WithNotifier(app.notification),
		gateway.WithProbeTimeout(gwCfg.ProbeTimeout),
		gateway.WithPollInterval(gwCfg.ConfirmationPollInterval),
		gateway.WithLogsFromBlock(gwCfg.LogsFromBlock),
		gateway.WithMaxConcurrentReads(gwCfg.MaxConcurrentReads),
	}
	if app.wallet != nil {
		opts = append(opts, gateway.WithWallet(app.wallet))
	}
	if app.storage != nil {
		opts = append(opts, gateway.WithJournal(app.storage))
	}

	app.gateway = gateway.New(app.connection, opts...)
	return nil
}

// Start starts the journal reconciler and the HTTP server
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version": AppVersion,
		"network": app.gateway.Network().Name,
		"wallet":  app.gateway.HasWallet(),
	}).Info("Starting ticket gateway")

	if app.server == nil {
		return fmt.Errorf("application was built without a server")
	}
	if app.reconciler != nil {
		if err := app.reconciler.Start(app.ctx); err != nil {
			return err
		}
	}
	return app.server.Start()
}

// Stop releases every component in reverse order
func (app *Application) Stop() {
	app.cancel()

	if app.reconciler != nil {
		app.reconciler.Stop()
	}
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}
	if app.notification != nil {
		if err := app.notification.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close notification channels")
		}
	}
	if app.guard != nil {
		if err := app.guard.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close lock guard")
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}
	if closer, ok := app.wallet.(interface{ Close() }); ok {
		closer.Close()
	}
	if app.connection != nil {
		app.connection.Close()
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "ticket-gateway",
	Short:         "Event ticketing contract gateway",
	Long:          `Serves and operates an NFT event-ticketing registry: browse events, mint, list and transfer tickets, and verify scanned tickets at the door.`,
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// loadConfig loads and validates configuration, applying the --log-level flag
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if viper.GetBool("debug") {
		cfg.App.Debug = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withApplication runs fn against a fully wired application without the HTTP server
func withApplication(cmd *cobra.Command, fn func(ctx context.Context, app *Application) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg, false)
	if err != nil {
		return err
	}
	defer app.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, app)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		app, err := NewApplication(cfg, true)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}

		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

		if err := app.Start(); err != nil {
			app.Stop()
			return fmt.Errorf("failed to start application: %w", err)
		}

		<-signalChan
		app.logger.Info("Received shutdown signal, stopping")
		app.Stop()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(serveCmd)
	registerCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
