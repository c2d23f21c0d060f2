package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rezn-project/rezn/internal/api"
	"github.com/rezn-project/rezn/internal/apply"
	"github.com/rezn-project/rezn/internal/config"
	"github.com/rezn-project/rezn/internal/crypto"
	"github.com/rezn-project/rezn/internal/gateway"
	"github.com/rezn-project/rezn/internal/metrics"
	"github.com/rezn-project/rezn/internal/reconcile"
	"github.com/rezn-project/rezn/internal/secrets"
	"github.com/rezn-project/rezn/internal/stats"
	"github.com/rezn-project/rezn/internal/store"
)

const version = "0.1.0"

const (
	httpReadTimeout  = 30 * time.Second
	httpWriteTimeout = 30 * time.Second
	httpIdleTimeout  = 60 * time.Second
	shutdownTimeout  = 10 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "reznd [kv-path]",
		Short:   "rezn node daemon",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kvPath := ""
			if len(args) > 0 {
				kvPath = args[0]
			}
			return run(kvPath)
		},
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nodeManager owns the node's long-lived components and coordinates
// startup and graceful shutdown.
type nodeManager struct {
	log *logrus.Entry

	kv         *store.Store
	httpServer *http.Server

	coordinator *reconcile.Coordinator
	ingester    *stats.Ingester

	reconcileStop chan struct{}
	statsStop     chan struct{}
	serverErrors  chan error
}

func run(kvPathArg string) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	log := logger.WithField("request_id", uuid.NewString())

	cfg, err := config.Load(kvPathArg)
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return err
	}

	nm := &nodeManager{
		log:           log,
		reconcileStop: make(chan struct{}),
		statsStop:     make(chan struct{}),
		serverErrors:  make(chan error, 1),
	}

	if err := nm.initialize(cfg); err != nil {
		log.WithError(err).Error("reznd failed to initialize")
		return err
	}
	defer nm.kv.Close()

	nm.start(cfg)

	log.WithFields(logrus.Fields{
		"bind_addr": cfg.BindAddr,
		"version":   version,
	}).Info("reznd is ready")

	return nm.waitForShutdown()
}

func (nm *nodeManager) initialize(cfg *config.Config) error {
	kv, err := store.Open(cfg.KVPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	nm.kv = kv

	identity, err := crypto.LoadOrGenerate(cfg.AgeIdentityPath)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	m := metrics.New()

	secretStore := secrets.New(kv, identity, m)
	gatewayClient := gateway.New(cfg.GatewayBaseURL)
	applyEngine := apply.New(kv, nm.log, m)
	reconciler := reconcile.New(kv, gatewayClient, nm.log, m)
	nm.coordinator = reconcile.NewCoordinator(reconciler, cfg.ReconcileInterval, nm.log)

	fanout := stats.NewFanOut(m)
	nm.ingester = stats.NewIngester(cfg.StatsWSURL, fanout, nm.log)

	server := api.New(api.Deps{
		KV:          kv,
		ApplyEngine: applyEngine,
		Coordinator: nm.coordinator,
		Secrets:     secretStore,
		Ingester:    nm.ingester,
		FanOut:      fanout,
		Log:         nm.log,
		Metrics:     m,
	})

	nm.httpServer = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      server.Router(),
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
	}

	return nil
}

func (nm *nodeManager) start(cfg *config.Config) {
	go nm.coordinator.Run(nm.reconcileStop)
	go nm.ingester.Run(nm.statsStop)

	go func() {
		nm.log.WithField("addr", nm.httpServer.Addr).Info("starting HTTP server")
		if err := nm.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nm.serverErrors <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
}

func (nm *nodeManager) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		nm.log.Info("received shutdown signal")
	case err := <-nm.serverErrors:
		nm.log.WithError(err).Error("server error")
		nm.shutdown()
		return err
	}

	return nm.shutdown()
}

func (nm *nodeManager) shutdown() error {
	nm.log.Info("shutting down")

	close(nm.reconcileStop)
	close(nm.statsStop)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := nm.httpServer.Shutdown(ctx); err != nil {
		nm.log.WithError(err).Error("HTTP server shutdown failed")
		return fmt.Errorf("HTTP shutdown: %w", err)
	}

	nm.log.Info("reznd stopped")
	return nil
}
