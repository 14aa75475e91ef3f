package vault

import (
	"fmt"
	"math/big"
)

// CloseRound settles the current round: pulls residual funds back from the
// strategy, assesses fees, records the round's price-per-share and earmarks
// the asset owed to queued withdrawals. Deposits that arrived this round are
// priced here but minted into supply at the next rollover.
//
// Fees are assessed before pending deposits fold in: capital that earned
// nothing this round owes nothing.
func (v *Vault) CloseRound() (*CloseResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.roundClosed {
		return nil, ErrRoundClosed
	}
	if v.strategy != nil {
		if v.strategy.HasOpenPosition() {
			return nil, ErrActivePosition
		}
		returned, err := v.strategy.ClearPositionsAndReturnFunds()
		if err != nil {
			return nil, fmt.Errorf("clear positions: %w", err)
		}
		if returned != nil && returned.Sign() > 0 {
			v.assetBalance.Add(v.assetBalance, returned)
		}
		v.deployedCollateral.SetInt64(0)
	}

	base := v.lockedFunds()
	pnl := new(big.Int).Sub(base, v.state.LockedAmount)
	perfFee, mgmtFee := v.roundFees(pnl, base)

	fees := new(big.Int).Add(perfFee, mgmtFee)
	if fees.Sign() > 0 {
		v.assetBalance.Sub(v.assetBalance, fees)
		base.Sub(base, fees)
		if v.feeRecipient != "" {
			paid, ok := v.feesPaid[v.feeRecipient]
			if !ok {
				paid = new(big.Int)
				v.feesPaid[v.feeRecipient] = paid
			}
			paid.Add(paid, fees)
		}
	}

	// Price the closing round. Queued shares already priced in earlier
	// rounds keep their own price, so both they and their reserve stay out
	// of the ratio.
	var price *big.Int
	supply := new(big.Int).Sub(v.totalSupply, v.payableShares)
	if supply.Sign() <= 0 {
		price = assetUnit(v.params.Decimals)
	} else {
		price = new(big.Int).Mul(base, assetUnit(v.params.Decimals))
		price.Quo(price, supply)
	}
	v.roundPricePerShare[v.state.Round] = price

	// Shares queued this round become payable at the new price.
	newlyPayable := new(big.Int).Sub(v.state.QueuedWithdrawShares, v.payableShares)
	if newlyPayable.Sign() > 0 {
		owed, err := SharesToAsset(newlyPayable, price, v.params.Decimals)
		if err != nil {
			return nil, err
		}
		v.withdrawReserve.Add(v.withdrawReserve, owed)
		v.payableShares.Set(v.state.QueuedWithdrawShares)
	}

	v.state.LastLockedAmount = bigCopy(v.state.LockedAmount)
	v.roundClosed = true
	v.roundActive = false
	v.closedAt = v.now()

	return &CloseResult{
		Round:          v.state.Round,
		PricePerShare:  bigCopy(price),
		PnL:            pnl,
		PerformanceFee: perfFee,
		ManagementFee:  mgmtFee,
	}, nil
}

// StartNextRound mints the closed round's pending deposits into share supply,
// advances the round counter and hands all free capital to the strategy. The
// cooldown since close must have elapsed.
func (v *Vault) StartNextRound() (*StartResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.roundClosed {
		return nil, ErrRoundOpened
	}
	if v.now().Sub(v.closedAt) < v.params.RoundCooldown {
		return nil, ErrCooldownNotElapsed
	}

	minted := new(big.Int)
	if v.state.TotalPending.Sign() > 0 {
		price := v.roundPricePerShare[v.state.Round]
		shares, err := AssetToShares(v.state.TotalPending, price, v.params.Decimals)
		if err != nil {
			return nil, err
		}
		supply := new(big.Int).Add(v.totalSupply, shares)
		if err := AssertUint128(supply); err != nil {
			return nil, err
		}
		v.totalSupply = supply
		v.state.TotalPending = new(big.Int)
		minted = shares
	}

	v.state.Round++

	locked := new(big.Int).Sub(v.assetBalance, v.withdrawReserve)
	if locked.Sign() < 0 {
		locked.SetInt64(0)
	}
	v.state.LockedAmount = locked
	v.state.LockedAmountLeft = bigCopy(locked)
	v.roundClosed = false
	v.roundActive = true

	if v.strategy != nil {
		v.strategy.RoundStarted(v.state.Round)
	}

	return &StartResult{
		Round:        v.state.Round,
		LockedAmount: bigCopy(locked),
		MintedShares: minted,
	}, nil
}

// Trade asks the strategy what to trade, checks the outcome and applies the
// collateral out / premium in. Only callable while a round is open; the
// bootstrap round never trades.
func (v *Vault) Trade() (*TradeResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.roundActive || v.roundClosed {
		return nil, ErrRoundClosed
	}
	if v.strategy == nil {
		return nil, ErrNoStrategy
	}

	req, err := v.strategy.RequestTrade(RoundContext{
		Round:            v.state.Round,
		LockedAmount:     bigCopy(v.state.LockedAmount),
		LockedAmountLeft: bigCopy(v.state.LockedAmountLeft),
	})
	if err != nil {
		return nil, fmt.Errorf("request trade: %w", err)
	}

	collateral, err := v.strategy.CollateralRequired(req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("collateral required: %w", err)
	}
	if collateral == nil || collateral.Sign() < 0 {
		return nil, ErrBadTrade
	}
	if collateral.Cmp(v.state.LockedAmountLeft) > 0 {
		return nil, fmt.Errorf("%w: collateral %s exceeds locked %s",
			ErrBadTrade, collateral, v.state.LockedAmountLeft)
	}

	premium := v.strategy.PremiumReceived()
	if premium == nil {
		premium = new(big.Int)
	}
	if req.MinPremium != nil && premium.Cmp(req.MinPremium) < 0 {
		return nil, ErrPremiumTooLow
	}
	if !v.strategy.PostTradeCheck() {
		return nil, ErrBadTrade
	}

	v.state.LockedAmountLeft = new(big.Int).Sub(v.state.LockedAmountLeft, collateral)
	v.deployedCollateral.Add(v.deployedCollateral, collateral)
	v.assetBalance.Sub(v.assetBalance, collateral)
	v.assetBalance.Add(v.assetBalance, premium)

	return &TradeResult{
		TargetID:   req.TargetID,
		Collateral: bigCopy(collateral),
		Premium:    bigCopy(premium),
	}, nil
}

// Settle returns an expired position's collateral from the strategy to the
// vault balance ahead of the round close.
func (v *Vault) Settle(positionID uint64) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.strategy == nil {
		return nil, ErrNoStrategy
	}
	payout, err := v.strategy.Settle(positionID)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if payout == nil || payout.Sign() <= 0 {
		return new(big.Int), nil
	}
	v.assetBalance.Add(v.assetBalance, payout)
	v.deployedCollateral.Sub(v.deployedCollateral, payout)
	if v.deployedCollateral.Sign() < 0 {
		v.deployedCollateral.SetInt64(0)
	}
	return bigCopy(payout), nil
}
