package metrics

import (
	"context"
	"math/big"
	"net/http"
	"runtime"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/rokusk/lyra-vaults/pkg/vault"
)

// VaultMetrics exposes vault accounting and activity counters to Prometheus.
type VaultMetrics struct {
	namespace string
	registry  *prometheus.Registry
	logger    log.Logger
	decimals  uint8

	// Round accounting gauges
	round            prometheus.Gauge
	pricePerShare    prometheus.Gauge
	totalBalance     prometheus.Gauge
	totalSupply      prometheus.Gauge
	totalPending     prometheus.Gauge
	lockedAmount     prometheus.Gauge
	queuedWithdrawal prometheus.Gauge

	// Activity counters
	depositsTotal    prometheus.Counter
	withdrawalsTotal prometheus.Counter
	tradesTotal      prometheus.Counter
	roundsTotal      prometheus.Counter
	feesCollected    prometheus.Counter

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
}

// NewVaultMetrics creates and registers the vault metric set.
func NewVaultMetrics(namespace string, decimals uint8) (*VaultMetrics, error) {
	logger := log.Root().New("module", "metrics")
	logger.Info("Initializing vault metrics")

	registry := prometheus.NewRegistry()

	m := &VaultMetrics{
		namespace: namespace,
		registry:  registry,
		logger:    logger,
		decimals:  decimals,

		round: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round",
			Help:      "Current round number",
		}),

		pricePerShare: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_per_share",
			Help:      "Current price per share in asset units",
		}),

		totalBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_balance",
			Help:      "Total asset value held and deployed",
		}),

		totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_supply",
			Help:      "Outstanding share supply",
		}),

		totalPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_pending",
			Help:      "Deposits pending in the current round",
		}),

		lockedAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locked_amount",
			Help:      "Asset committed to the strategy this round",
		}),

		queuedWithdrawal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_withdraw_shares",
			Help:      "Shares queued for withdrawal",
		}),

		depositsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "Total deposits accepted",
		}),

		withdrawalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_completed_total",
			Help:      "Total withdrawals completed",
		}),

		tradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Total trades executed",
		}),

		roundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_completed_total",
			Help:      "Total rounds closed",
		}),

		feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_collected",
			Help:      "Cumulative fees collected in asset units",
		}),

		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Current memory usage in bytes",
		}),

		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_count",
			Help:      "Current number of goroutines",
		}),
	}

	registry.MustRegister(
		m.round,
		m.pricePerShare,
		m.totalBalance,
		m.totalSupply,
		m.totalPending,
		m.lockedAmount,
		m.queuedWithdrawal,
		m.depositsTotal,
		m.withdrawalsTotal,
		m.tradesTotal,
		m.roundsTotal,
		m.feesCollected,
		m.memoryUsage,
		m.goroutines,
	)

	logger.Info("Vault metrics initialized successfully")
	return m, nil
}

// Handler returns the Prometheus scrape handler.
func (m *VaultMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts Prometheus metrics server
func (m *VaultMetrics) StartServer(port string) error {
	m.logger.Info("Starting Prometheus metrics server", "port", port)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			m.logger.Error("Metrics server failed", "error", err)
		}
	}()

	m.logger.Info("Prometheus metrics available",
		"endpoint", "http://localhost:"+port+"/metrics")

	return nil
}

// UpdateVaultState refreshes the accounting gauges from the vault.
func (m *VaultMetrics) UpdateVaultState(v *vault.Vault) {
	st := v.VaultState()
	m.round.Set(float64(st.Round))
	m.pricePerShare.Set(m.toFloat(v.PricePerShare()))
	m.totalBalance.Set(m.toFloat(v.TotalBalance()))
	m.totalSupply.Set(m.toFloat(v.TotalSupply()))
	m.totalPending.Set(m.toFloat(st.TotalPending))
	m.lockedAmount.Set(m.toFloat(st.LockedAmount))
	m.queuedWithdrawal.Set(m.toFloat(st.QueuedWithdrawShares))
}

// RecordDeposit records an accepted deposit
func (m *VaultMetrics) RecordDeposit() {
	m.depositsTotal.Inc()
}

// RecordWithdrawal records a completed withdrawal
func (m *VaultMetrics) RecordWithdrawal() {
	m.withdrawalsTotal.Inc()
}

// RecordTrade records an executed trade
func (m *VaultMetrics) RecordTrade() {
	m.tradesTotal.Inc()
}

// RecordRoundClosed records a round close and the fees it collected.
func (m *VaultMetrics) RecordRoundClosed(res *vault.CloseResult) {
	m.roundsTotal.Inc()
	fees := m.toFloat(res.PerformanceFee) + m.toFloat(res.ManagementFee)
	if fees > 0 {
		m.feesCollected.Add(fees)
	}
}

// CollectSystemMetrics collects system-level metrics
func (m *VaultMetrics) CollectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			m.memoryUsage.Set(float64(memStats.Alloc))
			m.goroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// toFloat renders base units as whole-asset floats for gauge export. Gauges
// trade precision for scrapeability; exact values stay in the engine.
func (m *VaultMetrics) toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -int32(m.decimals)).InexactFloat64()
}
