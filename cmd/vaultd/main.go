package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/manager"
	"github.com/luxfi/log"
	"github.com/shopspring/decimal"

	"github.com/rokusk/lyra-vaults/pkg/api"
	"github.com/rokusk/lyra-vaults/pkg/events"
	"github.com/rokusk/lyra-vaults/pkg/feed"
	"github.com/rokusk/lyra-vaults/pkg/metrics"
	"github.com/rokusk/lyra-vaults/pkg/store"
	"github.com/rokusk/lyra-vaults/pkg/vault"
)

const (
	defaultDataDir = ".lyra-vaultd"
	defaultPort    = 8080
	defaultWSPort  = 8081
)

type Config struct {
	// Paths
	DataDir  string
	LogLevel string

	// Network
	HTTPPort    int
	WSPort      int
	MetricsPort int

	// Vault
	Asset         string
	Decimals      uint
	Cap           string
	Operator      string
	FeeRecipient  string
	RoundDuration time.Duration
	RoundCooldown time.Duration

	// Integrations
	NATSUrl        string
	SnapshotPeriod time.Duration

	// Features
	EnableMetrics bool
}

type VaultNode struct {
	config    *Config
	db        database.Database
	store     *store.Store
	vault     *vault.Vault
	rpcServer *api.JSONRPCServer
	feed      *feed.Server
	publisher *events.Publisher
	metrics   *metrics.VaultMetrics
	logger    log.Logger

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewVaultNode(config *Config) (*VaultNode, error) {
	level, _ := log.ToLevel(config.LogLevel)
	logger := log.NewTestLogger(level)
	logger.Info("Initializing vault node")

	dataPath := filepath.Join(os.Getenv("HOME"), config.DataDir)
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// BadgerDB first, memory fallback
	dbManager := manager.NewManager(dataPath, nil)

	dbConfig := manager.DefaultBadgerDBConfig("badgerdb")
	dbConfig.Namespace = "vaultd"

	db, err := dbManager.New(dbConfig)
	if err != nil {
		logger.Warn("Failed to open BadgerDB", "error", err)
		memConfig := manager.DefaultMemoryConfig()
		db, err = dbManager.New(memConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		logger.Info("Using in-memory database")
	} else {
		logger.Info("BadgerDB initialized", "path", filepath.Join(dataPath, "badgerdb"))
	}

	vaultStore := store.New(db, logger)

	// The daemon trades through the configurable mock strategy until a live
	// strategy integration is wired in.
	strategy := vault.NewMockStrategy()

	v, err := vaultStore.Load(strategy)
	if err != nil {
		if err != database.ErrNotFound {
			return nil, fmt.Errorf("failed to load vault state: %w", err)
		}
		logger.Info("No previous state found, starting fresh")

		cap, parseErr := decimal.NewFromString(config.Cap)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid cap %q: %w", config.Cap, parseErr)
		}
		v = vault.New(vault.Params{
			Decimals:      uint8(config.Decimals),
			Cap:           cap.Shift(int32(config.Decimals)).BigInt(),
			Asset:         config.Asset,
			RoundDuration: config.RoundDuration,
			RoundCooldown: config.RoundCooldown,
		}, config.FeeRecipient)
		if err := v.SetStrategy(strategy); err != nil {
			return nil, err
		}
	} else {
		logger.Info("Resumed vault state", "round", v.VaultState().Round)
	}

	rpcServer := api.NewJSONRPCServer(v, config.Operator, logger)

	feedServer := feed.NewServer(v, logger)
	rpcServer.AddNotifier(feedServer)

	var publisher *events.Publisher
	if config.NATSUrl != "" {
		publisher, err = events.Connect(config.NATSUrl, uint8(config.Decimals), logger)
		if err != nil {
			logger.Warn("NATS unavailable, events disabled", "error", err)
		} else {
			rpcServer.AddNotifier(publisher)
		}
	}

	var vaultMetrics *metrics.VaultMetrics
	if config.EnableMetrics {
		vaultMetrics, err = metrics.NewVaultMetrics("lyra_vault", uint8(config.Decimals))
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &VaultNode{
		config:    config,
		db:        db,
		store:     vaultStore,
		vault:     v,
		rpcServer: rpcServer,
		feed:      feedServer,
		publisher: publisher,
		metrics:   vaultMetrics,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (n *VaultNode) Start() error {
	n.logger.Info("Starting vault node",
		"asset", n.config.Asset,
		"operator", n.config.Operator,
		"httpPort", n.config.HTTPPort,
		"wsPort", n.config.WSPort,
		"round", n.vault.VaultState().Round)

	n.feed.Run()

	n.wg.Add(1)
	go n.runRPCServer()

	n.wg.Add(1)
	go n.runFeedServer()

	if n.metrics != nil {
		if err := n.metrics.StartServer(fmt.Sprintf("%d", n.config.MetricsPort)); err != nil {
			return err
		}
		go n.metrics.CollectSystemMetrics(n.ctx)

		n.wg.Add(1)
		go n.refreshMetrics()
	}

	n.wg.Add(1)
	go n.snapshotWorker()

	return nil
}

func (n *VaultNode) runRPCServer() {
	defer n.wg.Done()

	mux := http.NewServeMux()
	mux.Handle("/rpc", n.rpcServer)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "healthy",
			"round":  n.vault.VaultState().Round,
			"asset":  n.config.Asset,
		})
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", n.config.HTTPPort),
		Handler: mux,
	}

	go func() {
		<-n.ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	n.logger.Info("JSON-RPC server started", "port", n.config.HTTPPort, "endpoint", "/rpc")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		n.logger.Error("JSON-RPC server error", "error", err)
	}
}

func (n *VaultNode) runFeedServer() {
	defer n.wg.Done()

	if err := n.feed.Start(n.config.WSPort); err != nil {
		n.logger.Error("Feed server error", "error", err)
	}
}

func (n *VaultNode) refreshMetrics() {
	defer n.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.metrics.UpdateVaultState(n.vault)
		}
	}
}

func (n *VaultNode) snapshotWorker() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.SnapshotPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if err := n.store.Save(n.vault); err != nil {
				n.logger.Error("Failed to save vault state", "error", err)
			}
		}
	}
}

func (n *VaultNode) Shutdown() {
	n.logger.Info("Shutting down vault node...")

	n.cancel()
	n.feed.Stop()
	n.wg.Wait()

	// Final snapshot before the database closes
	if err := n.store.Save(n.vault); err != nil {
		n.logger.Error("Failed to save final snapshot", "error", err)
	}

	if n.publisher != nil {
		if err := n.publisher.Close(); err != nil {
			n.logger.Warn("Failed to drain NATS connection", "error", err)
		}
	}

	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info("Vault node shutdown complete")
}

func main() {
	config := &Config{
		DataDir: defaultDataDir,
	}

	flag.StringVar(&config.DataDir, "data-dir", defaultDataDir, "Data directory (relative to $HOME)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.IntVar(&config.HTTPPort, "http-port", defaultPort, "HTTP API port")
	flag.IntVar(&config.WSPort, "ws-port", defaultWSPort, "WebSocket feed port")
	flag.IntVar(&config.MetricsPort, "metrics-port", 9090, "Prometheus metrics port")

	flag.StringVar(&config.Asset, "asset", "sETH", "Underlying asset symbol")
	flag.UintVar(&config.Decimals, "decimals", 18, "Share token decimals")
	flag.StringVar(&config.Cap, "cap", "5000", "Deposit cap in whole asset units")
	flag.StringVar(&config.Operator, "operator", "operator", "Operator account for round control")
	flag.StringVar(&config.FeeRecipient, "fee-recipient", "fee-recipient", "Fee recipient account")
	flag.DurationVar(&config.RoundDuration, "round-duration", vault.DefaultRoundDuration, "Round duration for fee proration")
	flag.DurationVar(&config.RoundCooldown, "round-cooldown", vault.DefaultRoundCooldown, "Cooldown between round close and next start")

	flag.StringVar(&config.NATSUrl, "nats", "", "NATS server URL (empty disables event publishing)")
	snapshotPeriod := flag.Duration("snapshot-period", 30*time.Second, "Interval between state snapshots")

	flag.BoolVar(&config.EnableMetrics, "enable-metrics", true, "Enable Prometheus metrics")

	flag.Parse()

	config.LogLevel = *logLevel
	config.SnapshotPeriod = *snapshotPeriod

	rootLogger := log.Root()
	rootLogger.Info("Lyra Vaults daemon")
	rootLogger.Info("System information",
		"platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		"cpus", runtime.NumCPU(),
		"dataDir", filepath.Join(os.Getenv("HOME"), config.DataDir))

	node, err := NewVaultNode(config)
	if err != nil {
		rootLogger.Crit("Failed to create node", "error", err)
		os.Exit(1)
	}

	if err := node.Start(); err != nil {
		rootLogger.Crit("Failed to start node", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	rootLogger.Info("Received shutdown signal", "signal", sig)

	node.Shutdown()
}
