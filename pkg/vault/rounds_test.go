package vault

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrade_BeforeFirstRoundStarted(t *testing.T) {
	v, _, _ := newTestVault(t)
	require.NoError(t, v.Deposit("depositor", amt("1")))

	_, err := v.Trade()
	assert.ErrorIs(t, err, ErrRoundClosed)
}

func TestStartNextRound_WithoutClose(t *testing.T) {
	v, _, _ := newTestVault(t)

	_, err := v.StartNextRound()
	assert.ErrorIs(t, err, ErrRoundOpened)
}

func TestStartNextRound_Cooldown(t *testing.T) {
	v, _, clock := newTestVault(t)

	_, err := v.CloseRound()
	require.NoError(t, err)

	_, err = v.StartNextRound()
	assert.ErrorIs(t, err, ErrCooldownNotElapsed)

	clock.advance(23 * time.Hour)
	_, err = v.StartNextRound()
	assert.ErrorIs(t, err, ErrCooldownNotElapsed)

	clock.advance(2 * time.Hour)
	res, err := v.StartNextRound()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), res.Round)
}

func TestCloseRound_Twice(t *testing.T) {
	v, _, _ := newTestVault(t)

	_, err := v.CloseRound()
	require.NoError(t, err)
	_, err = v.CloseRound()
	assert.ErrorIs(t, err, ErrRoundClosed)
}

func TestCloseRound_OpenPosition(t *testing.T) {
	v, strategy, clock := newTestVault(t)
	require.NoError(t, v.Deposit("depositor", amt("1")))
	rollover(t, v, clock)

	strategy.SetOpenPosition(true)
	_, err := v.CloseRound()
	assert.ErrorIs(t, err, ErrActivePosition)

	strategy.SetOpenPosition(false)
	_, err = v.CloseRound()
	require.NoError(t, err)
}

func TestRound_MonotonicIncrement(t *testing.T) {
	v, _, clock := newTestVault(t)
	strategy := NewMockStrategy()
	require.NoError(t, v.SetStrategy(strategy))

	for want := uint32(2); want <= 6; want++ {
		_, err := v.CloseRound()
		require.NoError(t, err)
		clock.advance(25 * time.Hour)
		res, err := v.StartNextRound()
		require.NoError(t, err)
		assert.Equal(t, want, res.Round)
		assert.Equal(t, want, v.VaultState().Round)
	}
	assert.Equal(t, []uint32{2, 3, 4, 5, 6}, strategy.StartedRounds())
}

func TestTrade_WhileClosed(t *testing.T) {
	v, _, clock := newTestVault(t)
	require.NoError(t, v.Deposit("depositor", amt("1")))
	rollover(t, v, clock)

	_, err := v.CloseRound()
	require.NoError(t, err)
	_, err = v.Trade()
	assert.ErrorIs(t, err, ErrRoundClosed)
}

func TestTrade_ChecksAndEffects(t *testing.T) {
	v, strategy, clock := newTestVault(t)
	require.NoError(t, v.Deposit("depositor", amt("2")))
	rollover(t, v, clock)

	strategy.SetTradeRequest(TradeRequest{Size: amt("1"), MinPremium: amt("0.1")}, nil)
	strategy.SetCollateral(amt("1"))

	// Premium below the strategy's floor.
	strategy.SetPremium(amt("0.05"))
	_, err := v.Trade()
	assert.ErrorIs(t, err, ErrPremiumTooLow)

	// Post-trade safety check fails.
	strategy.SetPremium(amt("0.1"))
	strategy.SetPostCheck(false)
	_, err = v.Trade()
	assert.ErrorIs(t, err, ErrBadTrade)
	strategy.SetPostCheck(true)

	// Collateral beyond the locked amount can never go through.
	strategy.SetCollateral(amt("3"))
	_, err = v.Trade()
	assert.ErrorIs(t, err, ErrBadTrade)
	assert.Equal(t, amt("2"), v.VaultState().LockedAmountLeft)

	strategy.SetCollateral(amt("1"))
	res, err := v.Trade()
	require.NoError(t, err)
	assert.Equal(t, amt("1"), res.Collateral)
	assert.Equal(t, amt("0.1"), res.Premium)

	state := v.VaultState()
	assert.Equal(t, amt("1"), state.LockedAmountLeft)
	assert.Equal(t, amt("2"), state.LockedAmount)
	// Collateral went out, premium came in, deployed collateral still counts.
	assert.Equal(t, amt("2.1"), v.TotalBalance())
}

// The reference flow: two 1.0 deposits in round 1, a 0.1 premium earned
// against 1.0 collateral in round 2, a quarter of the shares queued for
// withdrawal, completed in round 3.
func TestRoundFlow_ProfitAndWithdraw(t *testing.T) {
	v, strategy, clock := newTestVault(t)

	// round 1: two pending deposits
	require.NoError(t, v.Deposit("depositor", amt("1")))
	require.NoError(t, v.DepositFor("anyone", amt("1"), "depositor"))

	res, err := v.CloseRound()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Round)
	assert.Equal(t, amt("1"), res.PricePerShare, "round 1 closes at the peg")

	clock.advance(25 * time.Hour)
	start, err := v.StartNextRound()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), start.Round)
	assert.Equal(t, amt("2"), start.MintedShares)
	assert.Equal(t, amt("2"), start.LockedAmount)

	// round 2: both deposits are now worth two shares held by the vault
	balances := v.ShareBalances("depositor")
	assert.Equal(t, amt("2"), balances.HeldByVault)

	// queue a quarter of the shares in two same-round calls
	require.NoError(t, v.InitiateWithdraw("depositor", amt("0.25")))
	require.NoError(t, v.InitiateWithdraw("depositor", amt("0.25")))
	w := v.WithdrawalOf("depositor")
	assert.Equal(t, uint32(2), w.Round)
	assert.Equal(t, amt("0.5"), w.Shares)
	assert.Equal(t, amt("1.5"), v.BalanceOf("depositor"))

	// trade: 1.0 collateral out, 0.1 premium in
	strategy.SetTradeRequest(TradeRequest{Size: amt("1"), MinPremium: amt("0.1")}, nil)
	strategy.SetCollateral(amt("1"))
	strategy.SetPremium(amt("0.1"))
	_, err = v.Trade()
	require.NoError(t, err)

	// option expires worthless, collateral comes back
	strategy.SetSettlement(amt("1"))
	payout, err := v.Settle(0)
	require.NoError(t, err)
	assert.Equal(t, amt("1"), payout)

	// cannot complete while the receipt's round is still running
	_, err = v.CompleteWithdraw("depositor")
	assert.ErrorIs(t, err, ErrRoundInProgress)

	res, err = v.CloseRound()
	require.NoError(t, err)
	assert.Equal(t, amt("0.1"), res.PnL)
	assert.Equal(t, amt("1.05"), res.PricePerShare)

	clock.advance(25 * time.Hour)
	start, err = v.StartNextRound()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), start.Round)
	// the withdrawal reserve stays out of the next round's locked capital
	assert.Equal(t, amt("1.575"), start.LockedAmount)

	// round 3: the old withdrawal must complete before a new one opens
	err = v.InitiateWithdraw("depositor", amt("0.1"))
	assert.ErrorIs(t, err, ErrExistingWithdrawal)

	paid, err := v.CompleteWithdraw("depositor")
	require.NoError(t, err)
	// depositAmount/2 + premium/4
	assert.Equal(t, amt("0.525"), paid)

	assert.Equal(t, int64(0), v.WithdrawalOf("depositor").Shares.Int64())
	assert.Equal(t, int64(0), v.VaultState().QueuedWithdrawShares.Int64())
	assert.Equal(t, amt("1.5"), v.TotalSupply(), "escrowed shares were burned")
}

// Depositing before a profitable round must be worth strictly more than the
// same nominal deposit made after it.
func TestRoundScopedPremium(t *testing.T) {
	v, strategy, clock := newTestVault(t)

	require.NoError(t, v.Deposit("early", amt("1")))
	rollover(t, v, clock)

	// round 2: "late" deposits while the round earns a premium
	require.NoError(t, v.Deposit("late", amt("1")))

	strategy.SetTradeRequest(TradeRequest{Size: amt("1"), MinPremium: amt("0.1")}, nil)
	strategy.SetCollateral(amt("1"))
	strategy.SetPremium(amt("0.1"))
	_, err := v.Trade()
	require.NoError(t, err)
	strategy.SetSettlement(amt("1"))
	_, err = v.Settle(0)
	require.NoError(t, err)

	rollover(t, v, clock)

	earlyValue := v.AccountVaultBalance("early")
	lateValue := v.AccountVaultBalance("late")
	assert.Equal(t, 1, earlyValue.Cmp(lateValue),
		"early %s should be worth more than late %s", earlyValue, lateValue)
	assert.Equal(t, 1, v.Shares("early").Cmp(v.Shares("late")))
}

// Total shares priced at the closing price must account for the vault's
// working value, within one unit of dust per account.
func TestConservationAcrossRounds(t *testing.T) {
	v, strategy, clock := newTestVault(t)

	deposits := map[string]*big.Int{
		"a": amt("1.000000000000000003"),
		"b": amt("0.999999999999999997"),
		"c": amt("2.500000000000000001"),
	}
	for account, amount := range deposits {
		require.NoError(t, v.Deposit(account, amount))
	}
	rollover(t, v, clock)

	strategy.SetTradeRequest(TradeRequest{Size: amt("1"), MinPremium: amt("0.07")}, nil)
	strategy.SetCollateral(amt("1"))
	strategy.SetPremium(amt("0.07"))
	_, err := v.Trade()
	require.NoError(t, err)
	strategy.SetSettlement(amt("1"))
	_, err = v.Settle(0)
	require.NoError(t, err)

	res, err := v.CloseRound()
	require.NoError(t, err)

	supply := new(big.Int).Sub(v.totalSupply, v.payableShares)
	valued, err := SharesToAsset(supply, res.PricePerShare, 18)
	require.NoError(t, err)

	working := v.lockedFunds()
	diff := new(big.Int).Sub(working, valued)
	assert.True(t, diff.Sign() >= 0, "shares can never claim more than the vault holds")

	// Price truncation loses at most one base unit per whole share, plus one
	// per account for the per-claim conversions.
	tolerance := new(big.Int).Quo(supply, assetUnit(18))
	tolerance.Add(tolerance, big.NewInt(int64(len(deposits))+1))
	assert.True(t, diff.Cmp(tolerance) <= 0, "dust %s exceeds tolerance %s", diff, tolerance)
}

func TestCloseRound_PullsResidualFunds(t *testing.T) {
	v, strategy, clock := newTestVault(t)
	require.NoError(t, v.Deposit("depositor", amt("1")))
	rollover(t, v, clock)

	strategy.SetTradeRequest(TradeRequest{Size: amt("1"), MinPremium: new(big.Int)}, nil)
	strategy.SetCollateral(amt("1"))
	strategy.SetPremium(amt("0.02"))
	_, err := v.Trade()
	require.NoError(t, err)

	// No explicit settle: the close pulls the funds back instead.
	strategy.SetReturnFunds(amt("1"))
	res, err := v.CloseRound()
	require.NoError(t, err)
	assert.Equal(t, amt("0.02"), res.PnL)
	assert.Equal(t, amt("1.02"), v.TotalBalance())
}
