package vault

import (
	"math/big"
	"time"
)

// Fee rates are percentages scaled by FeeMultiplier: 2% is 2 * FeeMultiplier.
const FeeMultiplier = 1_000_000

var feeDenominator = big.NewInt(100 * FeeMultiplier)

// SetManagementFee sets the annual management fee rate. The stored rate is
// prorated to one round, e.g. annual * 7/365 for weekly rounds.
func (v *Vault) SetManagementFee(annual *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if annual == nil || annual.Sign() < 0 || annual.Cmp(feeDenominator) >= 0 {
		return ErrInvalidFee
	}
	perRound := new(big.Int).Mul(annual, big.NewInt(int64(v.params.RoundDuration/time.Second)))
	perRound.Quo(perRound, big.NewInt(int64(365*24*time.Hour/time.Second)))
	v.managementFee = perRound
	return nil
}

// ManagementFee returns the per-round management fee rate.
func (v *Vault) ManagementFee() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return bigCopy(v.managementFee)
}

// SetPerformanceFee sets the fee rate charged on a round's positive P&L.
func (v *Vault) SetPerformanceFee(fee *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if fee == nil || fee.Sign() < 0 || fee.Cmp(feeDenominator) >= 0 {
		return ErrInvalidFee
	}
	v.performanceFee = bigCopy(fee)
	return nil
}

// PerformanceFee returns the performance fee rate.
func (v *Vault) PerformanceFee() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return bigCopy(v.performanceFee)
}

// SetFeeRecipient changes where round fees are sent.
func (v *Vault) SetFeeRecipient(recipient string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if recipient == "" {
		return ErrInvalidRecipient
	}
	if recipient == v.feeRecipient {
		return ErrRecipientUnchanged
	}
	v.feeRecipient = recipient
	return nil
}

// SetCap changes the maximum total asset value the vault accepts.
func (v *Vault) SetCap(cap *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if cap == nil || cap.Sign() <= 0 {
		return ErrInvalidCap
	}
	v.params.Cap = bigCopy(cap)
	return nil
}

// SetStrategy swaps the trading collaborator. Pure interface substitution;
// the vault keeps no state about the old one.
func (v *Vault) SetStrategy(s Strategy) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s == nil {
		return ErrNoStrategy
	}
	v.strategy = s
	return nil
}

// roundFees computes the performance and management fee for a closing round.
// Performance fee applies to positive P&L only; management fee applies to the
// capital that was at work. Their sum never exceeds what the vault actually
// holds. Lock held.
func (v *Vault) roundFees(pnl, base *big.Int) (perfFee, mgmtFee *big.Int) {
	perfFee = new(big.Int)
	mgmtFee = new(big.Int)
	if base.Sign() <= 0 {
		return perfFee, mgmtFee
	}

	if pnl.Sign() > 0 && v.performanceFee.Sign() > 0 {
		perfFee.Mul(pnl, v.performanceFee)
		perfFee.Quo(perfFee, feeDenominator)
	}
	if v.managementFee.Sign() > 0 {
		mgmtFee.Mul(base, v.managementFee)
		mgmtFee.Quo(mgmtFee, feeDenominator)
	}

	if perfFee.Cmp(base) > 0 {
		perfFee.Set(base)
		mgmtFee.SetInt64(0)
		return perfFee, mgmtFee
	}
	rest := new(big.Int).Sub(base, perfFee)
	if mgmtFee.Cmp(rest) > 0 {
		mgmtFee.Set(rest)
	}
	return perfFee, mgmtFee
}
