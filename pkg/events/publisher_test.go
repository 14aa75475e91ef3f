package events

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokusk/lyra-vaults/pkg/vault"
)

type fakeConn struct {
	published map[string][][]byte
	err       error
	drained   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{published: make(map[string][][]byte)}
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published[subject] = append(f.published[subject], data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func newTestPublisher(t *testing.T) (*Publisher, *fakeConn) {
	t.Helper()
	nc := newFakeConn()
	level, _ := log.ToLevel("debug")
	return NewPublisher(nc, 18, log.NewTestLogger(level)), nc
}

func TestPublisher_RoundClosed(t *testing.T) {
	p, nc := newTestPublisher(t)

	p.RoundClosed(&vault.CloseResult{
		Round:          2,
		PricePerShare:  big.NewInt(1_050_000_000_000_000_000),
		PnL:            big.NewInt(100_000_000_000_000_000),
		PerformanceFee: big.NewInt(2_000_000_000_000_000),
		ManagementFee:  big.NewInt(0),
	})

	require.Len(t, nc.published[SubjectRoundClosed], 1)
	var event RoundClosedEvent
	require.NoError(t, json.Unmarshal(nc.published[SubjectRoundClosed][0], &event))
	assert.Equal(t, uint32(2), event.Round)
	assert.Equal(t, "1.05", event.PricePerShare)
	assert.Equal(t, "0.1", event.PnL)
	assert.Equal(t, "0.002", event.PerformanceFee)
	assert.Equal(t, "0", event.ManagementFee)
	assert.NotZero(t, event.Timestamp)
}

func TestPublisher_RoundStarted(t *testing.T) {
	p, nc := newTestPublisher(t)

	p.RoundStarted(&vault.StartResult{
		Round:        3,
		LockedAmount: big.NewInt(1_575_000_000_000_000_000),
		MintedShares: big.NewInt(2_000_000_000_000_000_000),
	})

	require.Len(t, nc.published[SubjectRoundStarted], 1)
	var event RoundStartedEvent
	require.NoError(t, json.Unmarshal(nc.published[SubjectRoundStarted][0], &event))
	assert.Equal(t, uint32(3), event.Round)
	assert.Equal(t, "1.575", event.LockedAmount)
	assert.Equal(t, "2", event.MintedShares)
}

func TestPublisher_Trade(t *testing.T) {
	p, nc := newTestPublisher(t)

	p.TradeExecuted(&vault.TradeResult{
		TargetID:   7,
		Collateral: big.NewInt(1_000_000_000_000_000_000),
		Premium:    big.NewInt(100_000_000_000_000_000),
	})

	require.Len(t, nc.published[SubjectTrade], 1)
	var event TradeEvent
	require.NoError(t, json.Unmarshal(nc.published[SubjectTrade][0], &event))
	assert.Equal(t, uint64(7), event.TargetID)
	assert.Equal(t, "1", event.Collateral)
	assert.Equal(t, "0.1", event.Premium)
}

func TestPublisher_BrokerErrorIsSwallowed(t *testing.T) {
	p, nc := newTestPublisher(t)
	nc.err = errors.New("broker gone")

	// Must not panic or propagate.
	p.RoundClosed(&vault.CloseResult{Round: 1, PricePerShare: big.NewInt(1)})
	assert.Empty(t, nc.published)
}

func TestPublisher_Close(t *testing.T) {
	p, nc := newTestPublisher(t)
	require.NoError(t, p.Close())
	assert.True(t, nc.drained)
}
