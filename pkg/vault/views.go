package vault

import "math/big"

// VaultState returns a copy of the global round accounting.
func (v *Vault) VaultState() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return stateCopy(v.state)
}

// Params returns the vault configuration.
func (v *Vault) Params() Params {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p := v.params
	p.Cap = bigCopy(p.Cap)
	return p
}

// DepositReceiptOf returns a copy of the account's deposit receipt.
func (v *Vault) DepositReceiptOf(account string) DepositReceipt {
	v.mu.RLock()
	defer v.mu.RUnlock()
	receipt, ok := v.depositReceipts[account]
	if !ok {
		return DepositReceipt{Amount: new(big.Int), UnredeemedShares: new(big.Int)}
	}
	return DepositReceipt{
		Round:            receipt.Round,
		Amount:           bigCopy(receipt.Amount),
		UnredeemedShares: bigCopy(receipt.UnredeemedShares),
	}
}

// WithdrawalOf returns a copy of the account's withdrawal receipt.
func (v *Vault) WithdrawalOf(account string) WithdrawalReceipt {
	v.mu.RLock()
	defer v.mu.RUnlock()
	w, ok := v.withdrawals[account]
	if !ok {
		return WithdrawalReceipt{Shares: new(big.Int)}
	}
	return WithdrawalReceipt{Round: w.Round, Shares: bigCopy(w.Shares)}
}

// BalanceOf returns the account's minted, transferable share balance.
func (v *Vault) BalanceOf(account string) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if balance, ok := v.balances[account]; ok {
		return bigCopy(balance)
	}
	return new(big.Int)
}

// TotalSupply returns the outstanding share supply, including unredeemed and
// escrowed shares.
func (v *Vault) TotalSupply() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return bigCopy(v.totalSupply)
}

// TotalBalance returns the vault's total asset value: asset on hand plus
// collateral deployed with the strategy.
func (v *Vault) TotalBalance() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Add(v.assetBalance, v.deployedCollateral)
}

// Shares returns the account's total claim in shares: minted balance plus
// unredeemed value at its recorded price. A still-unpriced pending deposit
// contributes nothing.
func (v *Vault) Shares(account string) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	balance := new(big.Int)
	if b, ok := v.balances[account]; ok {
		balance.Set(b)
	}
	return balance.Add(balance, v.unredeemedOf(account))
}

// ShareBalances splits the account's claim between its minted balance and
// the unredeemed value still held by the vault.
func (v *Vault) ShareBalances(account string) ShareBalance {
	v.mu.RLock()
	defer v.mu.RUnlock()
	held := new(big.Int)
	if b, ok := v.balances[account]; ok {
		held.Set(b)
	}
	return ShareBalance{HeldByAccount: held, HeldByVault: v.unredeemedOf(account)}
}

// PricePerShare returns the live price: the recorded price while the round
// sits closed, the initial one-asset-per-share peg while no shares exist, and
// total value over supply otherwise.
func (v *Vault) PricePerShare() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pricePerShare()
}

// RoundPrice returns the recorded price for a closed round, or nil.
func (v *Vault) RoundPrice(round uint32) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if price, ok := v.roundPricePerShare[round]; ok {
		return bigCopy(price)
	}
	return nil
}

// AccountVaultBalance values the account's total claim in the underlying
// asset at the live price.
func (v *Vault) AccountVaultBalance(account string) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	shares := new(big.Int)
	if b, ok := v.balances[account]; ok {
		shares.Set(b)
	}
	shares.Add(shares, v.unredeemedOf(account))
	amount, err := SharesToAsset(shares, v.pricePerShare(), v.params.Decimals)
	if err != nil {
		return new(big.Int)
	}
	return amount
}

// FeesPaid returns the cumulative fees transferred to a recipient.
func (v *Vault) FeesPaid(recipient string) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if paid, ok := v.feesPaid[recipient]; ok {
		return bigCopy(paid)
	}
	return new(big.Int)
}

// FeeRecipient returns the current fee recipient.
func (v *Vault) FeeRecipient() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.feeRecipient
}

// unredeemedOf values an account's receipt in shares without mutating it.
// Lock held.
func (v *Vault) unredeemedOf(account string) *big.Int {
	receipt, ok := v.depositReceipts[account]
	if !ok {
		return new(big.Int)
	}
	unredeemed := bigCopy(receipt.UnredeemedShares)
	if receipt.Amount.Sign() == 0 {
		return unredeemed
	}
	price := v.roundPricePerShare[receipt.Round]
	if price == nil {
		return unredeemed
	}
	shares, err := AssetToShares(receipt.Amount, price, v.params.Decimals)
	if err != nil {
		return unredeemed
	}
	return unredeemed.Add(unredeemed, shares)
}

// lockedFunds is the asset value at work this round: everything on hand that
// is neither an unpriced pending deposit nor reserved for priced withdrawals.
// Lock held.
func (v *Vault) lockedFunds() *big.Int {
	funds := new(big.Int).Set(v.assetBalance)
	funds.Sub(funds, v.state.TotalPending)
	funds.Sub(funds, v.withdrawReserve)
	if funds.Sign() < 0 {
		funds.SetInt64(0)
	}
	return funds
}

// pricePerShare computes the live price. Lock held.
func (v *Vault) pricePerShare() *big.Int {
	if v.roundClosed {
		if price, ok := v.roundPricePerShare[v.state.Round]; ok {
			return bigCopy(price)
		}
	}
	supply := new(big.Int).Sub(v.totalSupply, v.payableShares)
	if supply.Sign() <= 0 {
		return assetUnit(v.params.Decimals)
	}
	value := new(big.Int).Add(v.assetBalance, v.deployedCollateral)
	value.Sub(value, v.state.TotalPending)
	value.Sub(value, v.withdrawReserve)
	if value.Sign() <= 0 {
		return new(big.Int)
	}
	value.Mul(value, assetUnit(v.params.Decimals))
	return value.Quo(value, supply)
}
