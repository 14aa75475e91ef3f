package vault

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetManagementFee_ProratesToRound(t *testing.T) {
	v, _, _ := newTestVault(t)

	annual := big.NewInt(1 * FeeMultiplier) // 1% a year
	require.NoError(t, v.SetManagementFee(annual))

	// weekly rounds: annual * 7/365
	want := new(big.Int).Mul(annual, big.NewInt(7))
	want.Quo(want, big.NewInt(365))
	assert.Equal(t, want, v.ManagementFee())
}

func TestSetFees_Validation(t *testing.T) {
	v, _, _ := newTestVault(t)

	ceiling := big.NewInt(100 * FeeMultiplier)
	assert.ErrorIs(t, v.SetManagementFee(ceiling), ErrInvalidFee)
	assert.ErrorIs(t, v.SetPerformanceFee(ceiling), ErrInvalidFee)
	assert.ErrorIs(t, v.SetManagementFee(big.NewInt(-1)), ErrInvalidFee)
	assert.ErrorIs(t, v.SetPerformanceFee(nil), ErrInvalidFee)

	require.NoError(t, v.SetPerformanceFee(big.NewInt(2 * FeeMultiplier)))
	assert.Equal(t, big.NewInt(2*FeeMultiplier), v.PerformanceFee())
}

func TestSetFeeRecipient(t *testing.T) {
	v, _, _ := newTestVault(t)

	assert.ErrorIs(t, v.SetFeeRecipient(""), ErrInvalidRecipient)
	require.NoError(t, v.SetFeeRecipient("treasury"))
	assert.Equal(t, "treasury", v.FeeRecipient())
	assert.ErrorIs(t, v.SetFeeRecipient("treasury"), ErrRecipientUnchanged)
}

func TestSetCap(t *testing.T) {
	v, _, _ := newTestVault(t)

	assert.ErrorIs(t, v.SetCap(big.NewInt(0)), ErrInvalidCap)
	assert.ErrorIs(t, v.SetCap(nil), ErrInvalidCap)
	require.NoError(t, v.SetCap(amt("50")))
	assert.Equal(t, amt("50"), v.Params().Cap)
}

func TestCloseRound_NoFeesOnIdleCapital(t *testing.T) {
	v, _, _ := newTestVault(t)
	require.NoError(t, v.SetPerformanceFee(big.NewInt(2 * FeeMultiplier)))
	require.NoError(t, v.SetManagementFee(big.NewInt(1 * FeeMultiplier)))

	// Round 1 holds only pending deposits; nothing was at work, so no fees.
	require.NoError(t, v.Deposit("depositor", amt("1")))
	_, err := v.CloseRound()
	require.NoError(t, err)

	assert.Equal(t, int64(0), v.FeesPaid("fee-recipient").Int64())
}

func TestCloseRound_ChargesFees(t *testing.T) {
	v, strategy, clock := newTestVault(t)

	performanceFee := big.NewInt(2 * FeeMultiplier) // 2%
	managementFee := big.NewInt(1 * FeeMultiplier)  // 1% a year
	require.NoError(t, v.SetPerformanceFee(performanceFee))
	require.NoError(t, v.SetManagementFee(managementFee))

	require.NoError(t, v.Deposit("depositor", amt("1")))
	rollover(t, v, clock)

	premium := amt("0.01")
	strategy.SetTradeRequest(TradeRequest{Size: amt("1"), MinPremium: premium}, nil)
	strategy.SetCollateral(amt("1"))
	strategy.SetPremium(premium)
	_, err := v.Trade()
	require.NoError(t, err)
	strategy.SetSettlement(amt("1"))
	_, err = v.Settle(0)
	require.NoError(t, err)

	res, err := v.CloseRound()
	require.NoError(t, err)

	denominator := big.NewInt(100 * FeeMultiplier)

	wantPerf := new(big.Int).Mul(premium, performanceFee)
	wantPerf.Quo(wantPerf, denominator)
	assert.Equal(t, wantPerf, res.PerformanceFee)

	base := amt("1.01")
	wantMgmt := new(big.Int).Mul(base, v.ManagementFee())
	wantMgmt.Quo(wantMgmt, denominator)
	assert.Equal(t, wantMgmt, res.ManagementFee)

	wantTotal := new(big.Int).Add(wantPerf, wantMgmt)
	assert.Equal(t, wantTotal, v.FeesPaid("fee-recipient"))

	// Fees reduce the value behind the shares.
	wantValue := new(big.Int).Sub(base, wantTotal)
	assert.Equal(t, wantValue, v.TotalBalance())
}

func TestRoundFees_NoPerformanceFeeOnLoss(t *testing.T) {
	v, _, _ := newTestVault(t)
	require.NoError(t, v.SetPerformanceFee(big.NewInt(20 * FeeMultiplier)))

	perf, mgmt := v.roundFees(amt("-0.5"), amt("1"))
	assert.Equal(t, int64(0), perf.Int64())
	assert.Equal(t, int64(0), mgmt.Int64())
}

func TestRoundFees_CappedByLiquidity(t *testing.T) {
	v, _, _ := newTestVault(t)
	require.NoError(t, v.SetPerformanceFee(big.NewInt(90 * FeeMultiplier)))

	// P&L far above the working base: the fee clamps at what exists.
	perf, mgmt := v.roundFees(amt("100"), amt("1"))
	total := new(big.Int).Add(perf, mgmt)
	assert.True(t, total.Cmp(amt("1")) <= 0)
}
