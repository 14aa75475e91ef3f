// Package store persists vault state to a luxfi database backend.
//
// State is written as granular keys so per-account records can be read
// without deserializing the whole vault: round prices, deposit receipts,
// withdrawal receipts, share balances and fee tallies each live under their
// own prefix, with the scalar round accounting under a single meta key.
package store

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/log"

	"github.com/rokusk/lyra-vaults/pkg/vault"
)

const (
	metaKey = "vault:meta"

	receiptPrefix    = "receipt:"
	withdrawalPrefix = "withdrawal:"
	balancePrefix    = "balance:"
	pricePrefix      = "pps:"
	feesPrefix       = "fees:"
)

// meta holds everything in a snapshot that is not a per-account map.
type meta struct {
	Params vault.Params `json:"params"`
	State  vault.State  `json:"state"`

	RoundActive bool      `json:"roundActive"`
	RoundClosed bool      `json:"roundClosed"`
	ClosedAt    time.Time `json:"closedAt"`

	TotalSupply        *big.Int `json:"totalSupply"`
	AssetBalance       *big.Int `json:"assetBalance"`
	DeployedCollateral *big.Int `json:"deployedCollateral"`
	WithdrawReserve    *big.Int `json:"withdrawReserve"`
	PayableShares      *big.Int `json:"payableShares"`

	FeeRecipient   string   `json:"feeRecipient"`
	ManagementFee  *big.Int `json:"managementFee"`
	PerformanceFee *big.Int `json:"performanceFee"`
}

// Store reads and writes vault snapshots.
type Store struct {
	db     database.Database
	logger log.Logger
}

func New(db database.Database, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Save writes the vault's current state in a single batch.
func (s *Store) Save(v *vault.Vault) error {
	snap := v.Snapshot()

	batch := s.db.NewBatch()
	defer batch.Reset()

	m := meta{
		Params:             snap.Params,
		State:              snap.State,
		RoundActive:        snap.RoundActive,
		RoundClosed:        snap.RoundClosed,
		ClosedAt:           snap.ClosedAt,
		TotalSupply:        snap.TotalSupply,
		AssetBalance:       snap.AssetBalance,
		DeployedCollateral: snap.DeployedCollateral,
		WithdrawReserve:    snap.WithdrawReserve,
		PayableShares:      snap.PayableShares,
		FeeRecipient:       snap.FeeRecipient,
		ManagementFee:      snap.ManagementFee,
		PerformanceFee:     snap.PerformanceFee,
	}
	if err := putJSON(batch, metaKey, m); err != nil {
		return err
	}

	for round, price := range snap.RoundPricePerShare {
		key := pricePrefix + strconv.FormatUint(uint64(round), 10)
		if err := putJSON(batch, key, price); err != nil {
			return err
		}
	}
	for account, receipt := range snap.DepositReceipts {
		if err := putJSON(batch, receiptPrefix+account, receipt); err != nil {
			return err
		}
	}
	for account, w := range snap.Withdrawals {
		if err := putJSON(batch, withdrawalPrefix+account, w); err != nil {
			return err
		}
	}
	for account, balance := range snap.Balances {
		if err := putJSON(batch, balancePrefix+account, balance); err != nil {
			return err
		}
	}
	for recipient, paid := range snap.FeesPaid {
		if err := putJSON(batch, feesPrefix+recipient, paid); err != nil {
			return err
		}
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.logger.Debug("Saved vault state",
		"round", snap.State.Round,
		"accounts", len(snap.DepositReceipts),
		"bytes", batch.Size())
	return nil
}

// Load rebuilds a vault from the database and attaches the strategy.
// Returns database.ErrNotFound if nothing has been saved yet.
func (s *Store) Load(strategy vault.Strategy) (*vault.Vault, error) {
	raw, err := s.db.Get([]byte(metaKey))
	if err != nil {
		return nil, err
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode vault meta: %w", err)
	}

	snap := &vault.Snapshot{
		Params:             m.Params,
		State:              m.State,
		RoundActive:        m.RoundActive,
		RoundClosed:        m.RoundClosed,
		ClosedAt:           m.ClosedAt,
		TotalSupply:        m.TotalSupply,
		AssetBalance:       m.AssetBalance,
		DeployedCollateral: m.DeployedCollateral,
		WithdrawReserve:    m.WithdrawReserve,
		PayableShares:      m.PayableShares,
		FeeRecipient:       m.FeeRecipient,
		ManagementFee:      m.ManagementFee,
		PerformanceFee:     m.PerformanceFee,
		RoundPricePerShare: make(map[uint32]*big.Int),
		DepositReceipts:    make(map[string]vault.DepositReceipt),
		Withdrawals:        make(map[string]vault.WithdrawalReceipt),
		Balances:           make(map[string]*big.Int),
		FeesPaid:           make(map[string]*big.Int),
	}

	err = s.scanPrefix(pricePrefix, func(suffix string, value []byte) error {
		round, err := strconv.ParseUint(suffix, 10, 32)
		if err != nil {
			return fmt.Errorf("bad round key %q: %w", suffix, err)
		}
		price := new(big.Int)
		if err := json.Unmarshal(value, price); err != nil {
			return err
		}
		snap.RoundPricePerShare[uint32(round)] = price
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scanPrefix(receiptPrefix, func(account string, value []byte) error {
		var receipt vault.DepositReceipt
		if err := json.Unmarshal(value, &receipt); err != nil {
			return err
		}
		snap.DepositReceipts[account] = receipt
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scanPrefix(withdrawalPrefix, func(account string, value []byte) error {
		var w vault.WithdrawalReceipt
		if err := json.Unmarshal(value, &w); err != nil {
			return err
		}
		snap.Withdrawals[account] = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scanPrefix(balancePrefix, func(account string, value []byte) error {
		balance := new(big.Int)
		if err := json.Unmarshal(value, balance); err != nil {
			return err
		}
		snap.Balances[account] = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.scanPrefix(feesPrefix, func(recipient string, value []byte) error {
		paid := new(big.Int)
		if err := json.Unmarshal(value, paid); err != nil {
			return err
		}
		snap.FeesPaid[recipient] = paid
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loaded vault state",
		"round", snap.State.Round,
		"accounts", len(snap.DepositReceipts))
	return vault.FromSnapshot(snap, strategy), nil
}

// DepositReceipt reads a single account's deposit receipt without loading the
// full vault.
func (s *Store) DepositReceipt(account string) (vault.DepositReceipt, error) {
	var receipt vault.DepositReceipt
	raw, err := s.db.Get([]byte(receiptPrefix + account))
	if err != nil {
		return receipt, err
	}
	err = json.Unmarshal(raw, &receipt)
	return receipt, err
}

// RoundPrice reads a recorded round price.
func (s *Store) RoundPrice(round uint32) (*big.Int, error) {
	raw, err := s.db.Get([]byte(pricePrefix + strconv.FormatUint(uint64(round), 10)))
	if err != nil {
		return nil, err
	}
	price := new(big.Int)
	if err := json.Unmarshal(raw, price); err != nil {
		return nil, err
	}
	return price, nil
}

func (s *Store) scanPrefix(prefix string, fn func(suffix string, value []byte) error) error {
	it := s.db.NewIteratorWithPrefix([]byte(prefix))
	defer it.Release()
	for it.Next() {
		suffix := strings.TrimPrefix(string(it.Key()), prefix)
		if err := fn(suffix, it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func putJSON(batch database.Batch, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return batch.Put([]byte(key), raw)
}
