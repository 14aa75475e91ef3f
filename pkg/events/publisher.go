// Package events publishes vault lifecycle events to NATS.
package events

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/luxfi/log"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/rokusk/lyra-vaults/pkg/vault"
)

// Subjects for vault events.
const (
	SubjectRoundClosed  = "vault.round.closed"
	SubjectRoundStarted = "vault.round.started"
	SubjectTrade        = "vault.trade"
)

// conn is the slice of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher pushes vault events onto NATS subjects. It implements the RPC
// layer's Notifier. Publishing is fire-and-forget: a broker hiccup is logged,
// never surfaced to the vault operation that triggered it.
type Publisher struct {
	nc       conn
	logger   log.Logger
	decimals uint8
}

// Connect dials NATS and returns a publisher.
func Connect(url string, decimals uint8, logger log.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("Connected to NATS", "url", url)
	return NewPublisher(nc, decimals, logger), nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(nc conn, decimals uint8, logger log.Logger) *Publisher {
	return &Publisher{nc: nc, logger: logger, decimals: decimals}
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}

// RoundClosedEvent is published on vault.round.closed.
type RoundClosedEvent struct {
	Round          uint32 `json:"round"`
	PricePerShare  string `json:"pricePerShare"`
	PnL            string `json:"pnl"`
	PerformanceFee string `json:"performanceFee"`
	ManagementFee  string `json:"managementFee"`
	Timestamp      int64  `json:"timestamp"`
}

// RoundStartedEvent is published on vault.round.started.
type RoundStartedEvent struct {
	Round        uint32 `json:"round"`
	LockedAmount string `json:"lockedAmount"`
	MintedShares string `json:"mintedShares"`
	Timestamp    int64  `json:"timestamp"`
}

// TradeEvent is published on vault.trade.
type TradeEvent struct {
	TargetID   uint64 `json:"targetId"`
	Collateral string `json:"collateral"`
	Premium    string `json:"premium"`
	Timestamp  int64  `json:"timestamp"`
}

// RoundClosed implements the RPC Notifier.
func (p *Publisher) RoundClosed(res *vault.CloseResult) {
	p.publish(SubjectRoundClosed, RoundClosedEvent{
		Round:          res.Round,
		PricePerShare:  p.render(res.PricePerShare),
		PnL:            p.render(res.PnL),
		PerformanceFee: p.render(res.PerformanceFee),
		ManagementFee:  p.render(res.ManagementFee),
		Timestamp:      time.Now().Unix(),
	})
}

// RoundStarted implements the RPC Notifier.
func (p *Publisher) RoundStarted(res *vault.StartResult) {
	p.publish(SubjectRoundStarted, RoundStartedEvent{
		Round:        res.Round,
		LockedAmount: p.render(res.LockedAmount),
		MintedShares: p.render(res.MintedShares),
		Timestamp:    time.Now().Unix(),
	})
}

// TradeExecuted implements the RPC Notifier.
func (p *Publisher) TradeExecuted(res *vault.TradeResult) {
	p.publish(SubjectTrade, TradeEvent{
		TargetID:   res.TargetID,
		Collateral: p.render(res.Collateral),
		Premium:    p.render(res.Premium),
		Timestamp:  time.Now().Unix(),
	})
}

func (p *Publisher) publish(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish event", "subject", subject, "error", err)
		return
	}
	p.logger.Debug("Published event", "subject", subject)
}

func (p *Publisher) render(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(p.decimals)).String()
}
