package vault

import "math/big"

// InitiateWithdraw queues numShares of the caller's minted balance for
// withdrawal. The shares move into vault custody immediately and become
// payable once the current round closes and prices them. Calls within the
// same round accumulate; a leftover receipt from an earlier round must be
// completed first.
func (v *Vault) InitiateWithdraw(account string, numShares *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if numShares == nil || numShares.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if v.roundClosed {
		// Queuing between close and rollover would reference an already
		// priced round without a funded reserve.
		return ErrRoundClosed
	}

	w := v.withdrawalFor(account)
	if w.Shares.Sign() > 0 && w.Round != v.state.Round {
		return ErrExistingWithdrawal
	}

	// Queued shares come out of the minted balance, so surface every
	// eligible share first.
	if err := v.redeemShares(account, nil); err != nil {
		return err
	}

	balance := v.balanceFor(account)
	if numShares.Cmp(balance) > 0 {
		return ErrExceedsAvailable
	}

	queued := new(big.Int).Add(w.Shares, numShares)
	if err := AssertUint128(queued); err != nil {
		return err
	}
	totalQueued := new(big.Int).Add(v.state.QueuedWithdrawShares, numShares)
	if err := AssertUint128(totalQueued); err != nil {
		return err
	}

	balance.Sub(balance, numShares)
	w.Round = v.state.Round
	w.Shares = queued
	v.state.QueuedWithdrawShares = totalQueued
	return nil
}

// CompleteWithdraw pays out a queued withdrawal at the price its round closed
// with. The escrowed shares are burned.
func (v *Vault) CompleteWithdraw(account string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	w, ok := v.withdrawals[account]
	if !ok || w.Shares.Sign() == 0 {
		return nil, ErrNotInitiated
	}
	if w.Round >= v.state.Round {
		return nil, ErrRoundInProgress
	}

	price := v.roundPricePerShare[w.Round]
	amount, err := SharesToAsset(w.Shares, price, v.params.Decimals)
	if err != nil {
		return nil, err
	}

	v.state.QueuedWithdrawShares = new(big.Int).Sub(v.state.QueuedWithdrawShares, w.Shares)
	v.payableShares.Sub(v.payableShares, w.Shares)
	v.withdrawReserve.Sub(v.withdrawReserve, amount)
	if v.withdrawReserve.Sign() < 0 {
		v.withdrawReserve.SetInt64(0)
	}
	v.totalSupply.Sub(v.totalSupply, w.Shares)
	v.assetBalance.Sub(v.assetBalance, amount)
	w.Shares = new(big.Int)

	return amount, nil
}
