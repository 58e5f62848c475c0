// File: cmd/filerug/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/fil-e-rug/internal/chaindata"
	"github.com/smartdevs17/fil-e-rug/internal/config"
	"github.com/smartdevs17/fil-e-rug/internal/connection"
	"github.com/smartdevs17/fil-e-rug/internal/governance"
	"github.com/smartdevs17/fil-e-rug/internal/metrics"
	"github.com/smartdevs17/fil-e-rug/internal/monitor"
	"github.com/smartdevs17/fil-e-rug/internal/notification"
	"github.com/smartdevs17/fil-e-rug/internal/provider"
	"github.com/smartdevs17/fil-e-rug/internal/server"
	"github.com/smartdevs17/fil-e-rug/internal/storage"
	"github.com/smartdevs17/fil-e-rug/internal/votes"
	"github.com/smartdevs17/fil-e-rug/internal/wallet"
	"github.com/smartdevs17/fil-e-rug/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	metrics      *metrics.Manager
	connection   *connection.ConnectionManager
	storage      storage.Storage
	provider     provider.Provider
	notification *notification.NotificationManager
	publisher    notification.Publisher
	chains       *chaindata.Service
	votes        *votes.Service
	proposals    *governance.ProposalVoting
	receipts     *governance.VoteStorage
	voteStorage  *governance.VoteStorage
	wallet       *wallet.Service
	receiptWatch *monitor.ReceiptMonitor
	server       *server.HTTPServer
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance. The HTTP server is only
// built when serve is set.
func NewApplication(cfg *config.Config, serve bool) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		publisher: notification.Nop{},
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(serve); err != nil {
		app.Stop()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging
	if app.config.App.Debug {
		logCfg.Level = "debug"
	}

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

// initializeComponents initializes all application components
func (app *Application) initializeComponents(serve bool) error {
	app.logger.Info("Initializing application components")

	app.metrics = metrics.NewManager()

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeProvider(); err != nil {
		return fmt.Errorf("failed to initialize storage provider: %w", err)
	}

	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}

	if err := app.initializeChain(); err != nil {
		return fmt.Errorf("failed to initialize chain access: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	if serve {
		if err := app.initializeServer(); err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage opens and migrates the durable index
func (app *Application) initializeStorage() error {
	store, err := storage.Open(&app.config.Storage)
	if err != nil {
		return err
	}
	app.storage = storage.NewStorageWithMetrics(store, app.metrics)

	app.logger.WithField("type", app.config.Storage.Type).Info("Storage layer initialized")
	return nil
}

// initializeProvider builds the content-addressed storage backend
func (app *Application) initializeProvider() error {
	p, err := provider.New(&app.config.Providers, app.storage, app.metrics)
	if err != nil {
		return err
	}
	app.provider = p

	app.logger.WithField("provider", p.Name()).Info("Storage provider initialized")
	return nil
}

// initializeNotification initializes the notification manager
func (app *Application) initializeNotification() error {
	if !app.config.Notification.Enabled {
		app.logger.Info("Notifications disabled")
		return nil
	}

	app.notification = notification.NewNotificationManager(
		notification.NewManagerConfig(&app.config.Notification), app.metrics)
	app.publisher = app.notification

	if err := app.notification.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start notification manager: %w", err)
	}
	return nil
}

// initializeChain wires the RPC connection and contract callers. The RPC is
// dialed lazily, so an unreachable node does not block startup.
func (app *Application) initializeChain() error {
	fc := &app.config.Filecoin
	if fc.NodeURL == "" {
		app.logger.Warn("No Filecoin RPC configured; wallet and governance features are disabled")
		return nil
	}

	app.connection = connection.NewConnectionManager(fc, app.metrics)

	var signer *governance.Signer
	if fc.PrivateKey != "" {
		var err error
		if signer, err = governance.NewSigner(fc.PrivateKey, fc.ChainID); err != nil {
			return err
		}
		app.logger.WithField("address", signer.Address().Hex()).Info("Transaction signer loaded")
	}

	opts := governance.Options{
		Signer:    signer,
		TxTimeout: fc.TransactionTimeout,
		Metrics:   app.metrics,
	}
	dial := governance.FromConnection(app.connection)

	var err error
	if app.proposals, err = governance.NewProposalVoting(fc.ProposalVoteContract, dial, opts); err != nil {
		return err
	}
	if app.voteStorage, err = governance.NewVoteStorage(fc.VoteStorageContract, dial, opts); err != nil {
		return err
	}
	if fc.SubmitReceiptsOnChain && signer != nil {
		app.receipts = app.voteStorage
	}

	if app.wallet, err = wallet.NewService(fc, wallet.FromConnection(app.connection)); err != nil {
		return err
	}

	if mc := app.config.Monitor; mc.Enabled {
		app.receiptWatch, err = monitor.NewReceiptMonitor(monitor.FromConnection(app.connection),
			app.storage, app.publisher, app.metrics, monitor.MonitorConfig{
				Contract:           fc.VoteStorageContract,
				PollInterval:       mc.PollInterval,
				BatchSize:          mc.BatchSize,
				ConfirmationBlocks: mc.ConfirmationBlocks,
				StartBlock:         mc.StartBlock,
			})
	}
	return err
}

// initializeServices builds the chain data and vote services
func (app *Application) initializeServices() error {
	hasher, err := chaindata.NewHasher(app.config.Chains.Hasher)
	if err != nil {
		return err
	}

	app.chains = chaindata.NewService(app.storage, app.provider, chaindata.Options{
		Hasher:     hasher,
		UploadName: app.config.Providers.Lighthouse.Name,
		Metrics:    app.metrics,
		Publisher:  app.publisher,
	})

	voteOpts := votes.Options{
		DefaultConfidence: app.config.Votes.DefaultConfidence,
		MaxReasoningBytes: app.config.Votes.MaxReasoningBytes,
		ListLimit:         app.config.Votes.ListLimit,
		Metrics:           app.metrics,
		Publisher:         app.publisher,
	}
	// Typed nils must not leak into the interfaces
	if app.proposals != nil {
		voteOpts.Proposals = app.proposals
	}
	if app.receipts != nil {
		voteOpts.Receipts = app.receipts
	}
	app.votes = votes.NewService(app.storage, app.provider, voteOpts)
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	deps := server.Dependencies{
		Storage:      app.storage,
		Chains:       app.chains,
		Votes:        app.votes,
		Notification: app.notification,
		Metrics:      app.metrics,
		Version:      AppVersion,
	}
	if app.proposals != nil {
		deps.Proposals = app.proposals
	}
	if app.wallet != nil {
		deps.Wallet = app.wallet
	}
	if app.voteStorage != nil {
		deps.Receipts = app.voteStorage
	}
	if app.connection != nil {
		deps.RPC = app.connection
	}
	deps.Monitor = app.receiptWatch

	var err error
	app.server, err = server.NewHTTPServer(&app.config.Server, deps)
	return err
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting Fil-E-Rug")

	if app.connection != nil {
		if err := app.connection.HealthCheckWithContext(app.ctx); err != nil {
			app.logger.WithError(err).Warn("Filecoin RPC is not reachable yet")
		}
	}

	if app.config.App.DemoMode {
		seeded, err := app.chains.SeedDemo(app.ctx)
		if err != nil {
			app.logger.WithError(err).Warn("Failed to seed demo records")
		} else if seeded > 0 {
			app.logger.WithField("records", seeded).Info("Demo records seeded")
		}
	}

	if app.receiptWatch != nil {
		if err := app.receiptWatch.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start receipt monitor: %w", err)
		}
	}

	if app.server != nil {
		if err := app.server.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"provider":       app.provider.Name(),
		"rpc":            app.config.Filecoin.NodeURL,
	}).Info("Fil-E-Rug started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping Fil-E-Rug")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.receiptWatch != nil {
		if err := app.receiptWatch.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop receipt monitor")
		}
	}

	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notification manager")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close connection")
		}
	}

	return nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "filerug",
	Short:   "Fil-E-Rug rug-pull voting and storage service",
	Long:    `Rates meme-coin projects by community vote, stores the rated records on IPFS/Filecoin and serves them over HTTP.`,
	Version: AppVersion,
	RunE:    runServer,
}

// runServer is the main command to run the service
func runServer(cmd *cobra.Command, args []string) error {
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
	fmt.Println("\nReceived shutdown signal, stopping application...")

	return app.Stop()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// withApplication runs fn against an application without the HTTP server
func withApplication(fn func(app *Application) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApplication(cfg, false)
	if err != nil {
		return err
	}
	defer app.Stop()
	return fn(app)
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")
	rootCmd.PersistentFlags().String("storage-type", "", "storage backend (sqlite, postgres)")
	rootCmd.PersistentFlags().String("provider", "", "content provider (local, ipfs, lighthouse)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("app.debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("storage.type", rootCmd.PersistentFlags().Lookup("storage-type"))
	viper.BindPFlag("providers.default", rootCmd.PersistentFlags().Lookup("provider"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(votesCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
