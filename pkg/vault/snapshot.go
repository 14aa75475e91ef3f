package vault

import (
	"math/big"
	"time"
)

// Snapshot is the full serializable vault state. It carries everything except
// the strategy, which is re-attached on restore.
type Snapshot struct {
	Params Params `json:"params"`
	State  State  `json:"state"`

	RoundActive bool      `json:"roundActive"`
	RoundClosed bool      `json:"roundClosed"`
	ClosedAt    time.Time `json:"closedAt"`

	TotalSupply        *big.Int `json:"totalSupply"`
	AssetBalance       *big.Int `json:"assetBalance"`
	DeployedCollateral *big.Int `json:"deployedCollateral"`
	WithdrawReserve    *big.Int `json:"withdrawReserve"`
	PayableShares      *big.Int `json:"payableShares"`

	RoundPricePerShare map[uint32]*big.Int `json:"roundPricePerShare"`

	DepositReceipts map[string]DepositReceipt    `json:"depositReceipts"`
	Withdrawals     map[string]WithdrawalReceipt `json:"withdrawals"`
	Balances        map[string]*big.Int          `json:"balances"`

	FeeRecipient   string              `json:"feeRecipient"`
	ManagementFee  *big.Int            `json:"managementFee"`
	PerformanceFee *big.Int            `json:"performanceFee"`
	FeesPaid       map[string]*big.Int `json:"feesPaid"`
}

// Snapshot captures the vault state for persistence.
func (v *Vault) Snapshot() *Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	snap := &Snapshot{
		Params:             v.params,
		State:              stateCopy(v.state),
		RoundActive:        v.roundActive,
		RoundClosed:        v.roundClosed,
		ClosedAt:           v.closedAt,
		TotalSupply:        bigCopy(v.totalSupply),
		AssetBalance:       bigCopy(v.assetBalance),
		DeployedCollateral: bigCopy(v.deployedCollateral),
		WithdrawReserve:    bigCopy(v.withdrawReserve),
		PayableShares:      bigCopy(v.payableShares),
		RoundPricePerShare: make(map[uint32]*big.Int, len(v.roundPricePerShare)),
		DepositReceipts:    make(map[string]DepositReceipt, len(v.depositReceipts)),
		Withdrawals:        make(map[string]WithdrawalReceipt, len(v.withdrawals)),
		Balances:           make(map[string]*big.Int, len(v.balances)),
		FeeRecipient:       v.feeRecipient,
		ManagementFee:      bigCopy(v.managementFee),
		PerformanceFee:     bigCopy(v.performanceFee),
		FeesPaid:           make(map[string]*big.Int, len(v.feesPaid)),
	}
	snap.Params.Cap = bigCopy(v.params.Cap)

	for round, price := range v.roundPricePerShare {
		snap.RoundPricePerShare[round] = bigCopy(price)
	}
	for account, receipt := range v.depositReceipts {
		snap.DepositReceipts[account] = DepositReceipt{
			Round:            receipt.Round,
			Amount:           bigCopy(receipt.Amount),
			UnredeemedShares: bigCopy(receipt.UnredeemedShares),
		}
	}
	for account, w := range v.withdrawals {
		snap.Withdrawals[account] = WithdrawalReceipt{Round: w.Round, Shares: bigCopy(w.Shares)}
	}
	for account, balance := range v.balances {
		snap.Balances[account] = bigCopy(balance)
	}
	for recipient, paid := range v.feesPaid {
		snap.FeesPaid[recipient] = bigCopy(paid)
	}
	return snap
}

// FromSnapshot rebuilds a vault from a persisted snapshot.
func FromSnapshot(snap *Snapshot, strategy Strategy) *Vault {
	v := New(snap.Params, snap.FeeRecipient)
	v.strategy = strategy

	v.state = stateCopy(snap.State)
	v.roundActive = snap.RoundActive
	v.roundClosed = snap.RoundClosed
	v.closedAt = snap.ClosedAt
	v.totalSupply = bigCopy(snap.TotalSupply)
	v.assetBalance = bigCopy(snap.AssetBalance)
	v.deployedCollateral = bigCopy(snap.DeployedCollateral)
	v.withdrawReserve = bigCopy(snap.WithdrawReserve)
	v.payableShares = bigCopy(snap.PayableShares)
	v.managementFee = bigCopy(snap.ManagementFee)
	v.performanceFee = bigCopy(snap.PerformanceFee)

	for round, price := range snap.RoundPricePerShare {
		v.roundPricePerShare[round] = bigCopy(price)
	}
	for account, receipt := range snap.DepositReceipts {
		v.depositReceipts[account] = &DepositReceipt{
			Round:            receipt.Round,
			Amount:           bigCopy(receipt.Amount),
			UnredeemedShares: bigCopy(receipt.UnredeemedShares),
		}
	}
	for account, w := range snap.Withdrawals {
		v.withdrawals[account] = &WithdrawalReceipt{Round: w.Round, Shares: bigCopy(w.Shares)}
	}
	for account, balance := range snap.Balances {
		v.balances[account] = bigCopy(balance)
	}
	for recipient, paid := range snap.FeesPaid {
		v.feesPaid[recipient] = bigCopy(paid)
	}
	return v
}
