// Package vault implements a round-based pooled-capital vault. Depositors
// pool a single underlying asset, the pool is deployed into an external
// strategy for one round at a time, and profit or loss settles back into a
// price-per-share at round boundaries. Deposits made during an open round are
// pending until the round closes and prices them; minting into a depositor's
// transferable balance happens lazily on their next interaction, so a round
// close never iterates over accounts.
package vault

import (
	"math/big"
	"sync"
	"time"
)

// Vault is the engine state. Every public operation takes the lock for its
// whole duration, so an operation either fully applies or has no effect and
// no caller observes a half-updated state.
type Vault struct {
	mu sync.RWMutex

	params Params
	state  State

	// roundPricePerShare is written exactly once per round, at close.
	roundPricePerShare map[uint32]*big.Int

	depositReceipts map[string]*DepositReceipt
	withdrawals     map[string]*WithdrawalReceipt

	// Minted, transferable share balances. Unredeemed and escrowed shares
	// live in totalSupply but not in any account balance.
	balances    map[string]*big.Int
	totalSupply *big.Int

	// assetBalance is the underlying asset on hand. deployedCollateral is
	// out with the strategy mid-round. withdrawReserve is earmarked for
	// priced withdrawal receipts and never locked into a new round;
	// payableShares is the queued-share portion already priced.
	assetBalance       *big.Int
	deployedCollateral *big.Int
	withdrawReserve    *big.Int
	payableShares      *big.Int

	strategy Strategy

	feeRecipient   string
	managementFee  *big.Int // per-round rate, FeeMultiplier units
	performanceFee *big.Int
	feesPaid       map[string]*big.Int

	roundActive bool
	roundClosed bool
	closedAt    time.Time

	now func() time.Time
}

// New creates a vault in round 1 with no priced shares. The first round only
// collects deposits; trading begins once the operator closes it and starts
// the next one.
func New(params Params, feeRecipient string) *Vault {
	if params.RoundDuration <= 0 {
		params.RoundDuration = DefaultRoundDuration
	}
	if params.RoundCooldown <= 0 {
		params.RoundCooldown = DefaultRoundCooldown
	}
	params.Cap = bigCopy(params.Cap)

	return &Vault{
		params: params,
		state: State{
			Round:                1,
			LockedAmount:         new(big.Int),
			LockedAmountLeft:     new(big.Int),
			TotalPending:         new(big.Int),
			QueuedWithdrawShares: new(big.Int),
			LastLockedAmount:     new(big.Int),
		},
		roundPricePerShare: make(map[uint32]*big.Int),
		depositReceipts:    make(map[string]*DepositReceipt),
		withdrawals:        make(map[string]*WithdrawalReceipt),
		balances:           make(map[string]*big.Int),
		totalSupply:        new(big.Int),
		assetBalance:       new(big.Int),
		deployedCollateral: new(big.Int),
		withdrawReserve:    new(big.Int),
		payableShares:      new(big.Int),
		feeRecipient:       feeRecipient,
		managementFee:      new(big.Int),
		performanceFee:     new(big.Int),
		feesPaid:           make(map[string]*big.Int),
		now:                time.Now,
	}
}

// Deposit credits the caller's own receipt.
func (v *Vault) Deposit(account string, amount *big.Int) error {
	return v.DepositFor(account, amount, account)
}

// DepositFor pulls amount of the underlying from the caller and credits the
// beneficiary's deposit receipt. The amount stays pending until the current
// round closes and prices it.
func (v *Vault) DepositFor(from string, amount *big.Int, beneficiary string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from == "" || beneficiary == "" {
		return ErrInvalidRecipient
	}

	total := new(big.Int).Add(v.assetBalance, v.deployedCollateral)
	total.Add(total, amount)
	if v.params.Cap != nil && v.params.Cap.Sign() > 0 && total.Cmp(v.params.Cap) > 0 {
		return ErrCapExceeded
	}

	receipt := v.receiptFor(beneficiary)
	if err := v.collapseReceipt(receipt); err != nil {
		return err
	}
	receipt.Round = v.state.Round

	newAmount := new(big.Int).Add(receipt.Amount, amount)
	if err := AssertUint104(newAmount); err != nil {
		return err
	}
	newPending := new(big.Int).Add(v.state.TotalPending, amount)
	if err := AssertUint128(newPending); err != nil {
		return err
	}

	receipt.Amount = newAmount
	v.state.TotalPending = newPending
	v.assetBalance.Add(v.assetBalance, amount)
	return nil
}

// MaxRedeem mints every eligible unredeemed share to the account's
// transferable balance. It is a no-op, not a failure, when nothing is
// eligible.
func (v *Vault) MaxRedeem(account string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.redeemShares(account, nil)
}

// Redeem mints numShares of the account's eligible unredeemed value into its
// transferable balance.
func (v *Vault) Redeem(account string, numShares *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if numShares == nil || numShares.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return v.redeemShares(account, numShares)
}

// redeemShares collapses the account's receipt and moves shares from vault
// custody into the account balance. numShares == nil means "everything".
// Lock held.
func (v *Vault) redeemShares(account string, numShares *big.Int) error {
	receipt := v.receiptFor(account)
	if err := v.collapseReceipt(receipt); err != nil {
		return err
	}

	if numShares == nil {
		numShares = bigCopy(receipt.UnredeemedShares)
		if numShares.Sign() == 0 {
			return nil
		}
	}
	if numShares.Cmp(receipt.UnredeemedShares) > 0 {
		return ErrExceedsAvailable
	}

	receipt.UnredeemedShares = new(big.Int).Sub(receipt.UnredeemedShares, numShares)
	balance := v.balanceFor(account)
	balance.Add(balance, numShares)
	return nil
}

// Transfer moves minted shares between accounts. Pending, unredeemed and
// escrowed value cannot be transferred.
func (v *Vault) Transfer(from, to string, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == "" {
		return ErrInvalidRecipient
	}
	balance := v.balanceFor(from)
	if amount.Cmp(balance) > 0 {
		return ErrExceedsAvailable
	}
	balance.Sub(balance, amount)
	v.balanceFor(to).Add(v.balanceFor(to), amount)
	return nil
}

// receiptFor returns the account's receipt, creating an empty one on first
// interaction. Lock held.
func (v *Vault) receiptFor(account string) *DepositReceipt {
	receipt, ok := v.depositReceipts[account]
	if !ok {
		receipt = &DepositReceipt{
			Round:            v.state.Round,
			Amount:           new(big.Int),
			UnredeemedShares: new(big.Int),
		}
		v.depositReceipts[account] = receipt
	}
	return receipt
}

func (v *Vault) withdrawalFor(account string) *WithdrawalReceipt {
	w, ok := v.withdrawals[account]
	if !ok {
		w = &WithdrawalReceipt{Shares: new(big.Int)}
		v.withdrawals[account] = w
	}
	return w
}

func (v *Vault) balanceFor(account string) *big.Int {
	balance, ok := v.balances[account]
	if !ok {
		balance = new(big.Int)
		v.balances[account] = balance
	}
	return balance
}

// collapseReceipt folds a priced pending amount into unredeemed shares. A
// receipt is priced as soon as its round's price-per-share has been recorded.
// Lock held.
func (v *Vault) collapseReceipt(receipt *DepositReceipt) error {
	if receipt.Amount.Sign() == 0 {
		return nil
	}
	price := v.roundPricePerShare[receipt.Round]
	if price == nil {
		return nil // still pending
	}
	shares, err := AssetToShares(receipt.Amount, price, v.params.Decimals)
	if err != nil {
		return err
	}
	unredeemed := new(big.Int).Add(receipt.UnredeemedShares, shares)
	if err := AssertUint128(unredeemed); err != nil {
		return err
	}
	receipt.UnredeemedShares = unredeemed
	receipt.Amount = new(big.Int)
	receipt.Round = v.state.Round
	return nil
}
