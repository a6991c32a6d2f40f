package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/api"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/broker"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/config"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/events"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/generator"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/health"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/logstream"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/metrics"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/reconciler"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/security"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/stats"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/storage"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the manager next to the broker",
	Long: `Run the manager: reconcile the stored document into broker
configuration, restart the broker, then serve the HTTP API and the
WebSocket push channel while tracking clients and broker metrics.

The broker itself is expected to be supervised by the container entrypoint;
the manager only signals it through its pid file.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides api.listen and $PORT)")
	serveCmd.Flags().Bool("no-auth", false, "Disable basic auth on the HTTP API")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.API.Listen = listen
	}
	if noAuth, _ := cmd.Flags().GetBool("no-auth"); noAuth {
		cfg.API.Auth = false
	}

	logger := log.WithComponent("main")
	metrics.SetVersion(Version)
	metrics.SetCriticalComponents(metrics.ComponentStore, metrics.ComponentBroker)

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentStore, false, err.Error())
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	metrics.UpdateComponent(metrics.ComponentStore, true, store.Path())

	bus := events.NewBroker()
	bus.Start()
	defer bus.Stop()

	internalPassword, err := security.RandomPassword(12)
	if err != nil {
		return fmt.Errorf("failed to generate internal password: %w", err)
	}

	controller := broker.NewController(cfg.PIDFile)
	recon := newReconciler(cfg, store, controller, internalPassword, bus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := recon.RunStartup(ctx)
	if err != nil {
		// The API stays up so the operator can fix the document
		logger.Error().Err(err).Msg("Startup reconciliation failed")
	} else {
		logger.Info().
			Bool("migrated", result.Migrated).
			Int("credential_failures", len(result.CredentialFailures)).
			Int("sync_failures", len(result.SyncFailures)).
			Msg("Startup reconciliation complete")
	}

	sessions := tracker.New(cfg.LogFile, bus)
	if err := sessions.Start(ctx); err != nil {
		logger.Warn().Err(err).Str("log", cfg.LogFile).Msg("Client tracking disabled")
	}

	go func() {
		if err := logstream.NewStreamer(cfg.LogFile, bus).Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("Log streaming stopped")
		}
	}()

	aggregator := stats.NewAggregator(bus)
	monitor := stats.NewMonitor(
		stats.DefaultMonitorConfig(cfg.InternalHostPort(), cfg.Internal.Username, internalPassword),
		aggregator,
	)
	monitor.Start()
	defer monitor.Stop()

	hc := healthConfig(cfg)
	collector := metrics.NewCollector(hc, bus,
		metrics.Check{Component: metrics.ComponentBroker, Checker: health.NewProcessChecker(controller)},
		metrics.Check{
			Component: metrics.ComponentListener,
			Checker:   health.NewListenerChecker(cfg.InternalHostPort(), cfg.Internal.Username, internalPassword).WithTimeout(hc.Timeout),
		},
		metrics.Check{
			Component: metrics.ComponentTools,
			Checker: health.NewToolChecker(
				health.Tool{Name: "openssl", Binary: cfg.Tools.OpenSSL, VersionArgs: []string{"version"}},
				health.Tool{Name: "mosquitto_passwd", Binary: cfg.Tools.Passwd},
			).WithTimeout(hc.Timeout),
		},
	)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(api.Options{
		Store:      store,
		Pipeline:   recon,
		Broker:     controller,
		Sessions:   sessions,
		Stats:      aggregator,
		Events:     bus,
		LogFile:    cfg.LogFile,
		LogLines:   cfg.API.LogLines,
		StagingDir: cfg.StagingDir,
		Auth:       cfg.API.Auth,
		Version:    Version,
	})

	logger.Info().
		Str("staging", cfg.StagingDir).
		Str("secure", cfg.SecureDir).
		Str("listen", cfg.API.Listen).
		Msg("Mosquitto Manager started")

	if err := server.Serve(ctx, cfg.API.Listen); err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

// newReconciler wires the pipeline to the deployment described by cfg
func newReconciler(cfg *config.Config, store storage.Store, controller reconciler.BrokerController, internalPassword string, pub events.Publisher) *reconciler.Reconciler {
	syncer := security.NewSyncer(cfg.StagingDir, cfg.SecureDir, security.Owner{
		UID: cfg.Broker.UID,
		GID: cfg.Broker.GID,
	})

	certs := security.NewCertGenerator(cfg.CertDir())
	certs.Binary = cfg.Tools.OpenSSL
	certs.Days = cfg.Tools.CertValidityDays

	return reconciler.NewReconciler(
		reconciler.Config{
			StagingDir: cfg.StagingDir,
			Paths: generator.Paths{
				PasswordFile:    syncer.SecurePasswordFile(),
				ACLDir:          syncer.SecureACLDir(),
				InternalAddress: cfg.Internal.Address,
				InternalPort:    cfg.Internal.Port,
			},
			Bootstrap: reconciler.Bootstrap{
				Username: cfg.Bootstrap.Username,
				Password: cfg.Bootstrap.Password,
			},
			Internal: generator.Credential{
				Username: cfg.Internal.Username,
				Password: internalPassword,
			},
		},
		store,
		syncer,
		controller,
		&broker.PasswdTool{Binary: cfg.Tools.Passwd},
		certs,
		pub,
	)
}

func healthConfig(cfg *config.Config) health.Config {
	hc := health.DefaultConfig()
	if cfg.Health.Interval > 0 {
		hc.Interval = cfg.Health.Interval
	}
	if cfg.Health.Timeout > 0 {
		hc.Timeout = cfg.Health.Timeout
	}
	if cfg.Health.Retries > 0 {
		hc.Retries = cfg.Health.Retries
	}
	return hc
}
