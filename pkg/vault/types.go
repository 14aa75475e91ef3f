package vault

import (
	"math/big"
	"time"
)

// Default round timing. The duration prorates the annual management fee; the
// cooldown keeps a closed round from rolling over in the same breath, which
// would let an operator reprice shares inside a single burst of activity.
const (
	DefaultRoundDuration = 7 * 24 * time.Hour
	DefaultRoundCooldown = 24 * time.Hour
)

// Params is the rarely-changed vault configuration.
type Params struct {
	// Decimals is the share token precision; one share is 10^Decimals units.
	Decimals uint8 `json:"decimals"`
	// Cap is the maximum total asset value the vault accepts.
	Cap *big.Int `json:"cap"`
	// Asset identifies the single accepted underlying asset.
	Asset string `json:"asset"`

	RoundDuration time.Duration `json:"roundDuration"`
	RoundCooldown time.Duration `json:"roundCooldown"`
}

// State is the global round accounting, mutated only by the round controller.
type State struct {
	// Round starts at 1 and only ever increases by exactly one.
	Round uint32 `json:"round"`
	// LockedAmount is the asset committed to the strategy for this round.
	LockedAmount *big.Int `json:"lockedAmount"`
	// LockedAmountLeft is the portion of LockedAmount not yet consumed by
	// trades. It never goes negative.
	LockedAmountLeft *big.Int `json:"lockedAmountLeft"`
	// TotalPending is the sum of deposits made this round, not yet priced.
	TotalPending *big.Int `json:"totalPending"`
	// QueuedWithdrawShares is the total of shares queued for withdrawal and
	// not yet paid out.
	QueuedWithdrawShares *big.Int `json:"queuedWithdrawShares"`
	// LastLockedAmount is LockedAmount from the prior round.
	LastLockedAmount *big.Int `json:"lastLockedAmount"`
}

// DepositReceipt tracks a single depositor's claim that has not been minted
// into their transferable balance. While Round is the current round, Amount
// is pending and has no price. Once that round's price is recorded the amount
// is logically shares and collapses into UnredeemedShares on the next
// interaction.
type DepositReceipt struct {
	Round            uint32   `json:"round"`
	Amount           *big.Int `json:"amount"`
	UnredeemedShares *big.Int `json:"unredeemedShares"`
}

// WithdrawalReceipt tracks a single depositor's queued withdrawal. Shares
// accumulate across calls within the same round; a receipt from an earlier
// round must be completed before a new one can be opened.
type WithdrawalReceipt struct {
	Round  uint32   `json:"round"`
	Shares *big.Int `json:"shares"`
}

// ShareBalance splits an account's claim between shares already minted to the
// account and value still held by the vault on its behalf.
type ShareBalance struct {
	HeldByAccount *big.Int `json:"heldByAccount"`
	HeldByVault   *big.Int `json:"heldByVault"`
}

// CloseResult reports the settlement of a closed round.
type CloseResult struct {
	Round          uint32   `json:"round"`
	PricePerShare  *big.Int `json:"pricePerShare"`
	PnL            *big.Int `json:"pnl"`
	PerformanceFee *big.Int `json:"performanceFee"`
	ManagementFee  *big.Int `json:"managementFee"`
}

// StartResult reports a round rollover.
type StartResult struct {
	Round        uint32   `json:"round"`
	LockedAmount *big.Int `json:"lockedAmount"`
	MintedShares *big.Int `json:"mintedShares"`
}

// TradeResult reports a single executed trade.
type TradeResult struct {
	TargetID   uint64   `json:"targetId"`
	Collateral *big.Int `json:"collateral"`
	Premium    *big.Int `json:"premium"`
}

func bigCopy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func stateCopy(s State) State {
	return State{
		Round:                s.Round,
		LockedAmount:         bigCopy(s.LockedAmount),
		LockedAmountLeft:     bigCopy(s.LockedAmountLeft),
		TotalPending:         bigCopy(s.TotalPending),
		QueuedWithdrawShares: bigCopy(s.QueuedWithdrawShares),
		LastLockedAmount:     bigCopy(s.LastLockedAmount),
	}
}
