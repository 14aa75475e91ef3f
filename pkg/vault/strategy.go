package vault

import (
	"math/big"
	"sync"
)

// RoundContext is the capital picture handed to the strategy when the vault
// asks it what to trade.
type RoundContext struct {
	Round            uint32
	LockedAmount     *big.Int
	LockedAmountLeft *big.Int
}

// TradeRequest is the strategy's answer: what to trade and the premium floor
// it is willing to accept.
type TradeRequest struct {
	Size       *big.Int
	MinPremium *big.Int
	TargetID   uint64
}

// Strategy is the external trading collaborator. The vault only enforces
// capital limits; sizing, pricing and position management live behind this
// interface and the concrete implementation can be swapped by the operator.
type Strategy interface {
	// RequestTrade decides what to trade for the given round context.
	RequestTrade(ctx RoundContext) (TradeRequest, error)
	// CollateralRequired reports the asset the trade target consumes.
	CollateralRequired(targetID uint64) (*big.Int, error)
	// PremiumReceived reports the premium collected, in the vault asset.
	PremiumReceived() *big.Int
	// PostTradeCheck validates the outcome of the last trade.
	PostTradeCheck() bool
	// HasOpenPosition gates round close: a round cannot close while the
	// strategy still holds an unsettled position.
	HasOpenPosition() bool
	// ClearPositionsAndReturnFunds returns any residual asset the strategy
	// holds back to the vault at round close.
	ClearPositionsAndReturnFunds() (*big.Int, error)
	// Settle returns the collateral of a single expired position.
	Settle(positionID uint64) (*big.Int, error)
	// RoundStarted notifies the strategy that a new round has begun.
	RoundStarted(round uint32)
}

// MockStrategy is a scriptable Strategy for tests and for running a vault
// before a real strategy is attached. Every response is settable.
type MockStrategy struct {
	mu sync.Mutex

	tradeRequest TradeRequest
	tradeErr     error
	collateral   *big.Int
	premium      *big.Int
	postCheck    bool
	openPosition bool
	returnFunds  *big.Int
	settlement   *big.Int

	startedRounds []uint32
}

// NewMockStrategy returns a strategy that trades nothing and passes every
// check.
func NewMockStrategy() *MockStrategy {
	return &MockStrategy{
		tradeRequest: TradeRequest{Size: new(big.Int), MinPremium: new(big.Int)},
		collateral:   new(big.Int),
		premium:      new(big.Int),
		postCheck:    true,
		returnFunds:  new(big.Int),
		settlement:   new(big.Int),
	}
}

func (s *MockStrategy) SetTradeRequest(req TradeRequest, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeRequest = req
	s.tradeErr = err
}

func (s *MockStrategy) SetCollateral(amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collateral = bigCopy(amount)
}

func (s *MockStrategy) SetPremium(amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.premium = bigCopy(amount)
}

func (s *MockStrategy) SetPostCheck(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postCheck = ok
}

func (s *MockStrategy) SetOpenPosition(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPosition = open
}

func (s *MockStrategy) SetReturnFunds(amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returnFunds = bigCopy(amount)
}

func (s *MockStrategy) SetSettlement(amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlement = bigCopy(amount)
}

func (s *MockStrategy) RequestTrade(RoundContext) (TradeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradeRequest, s.tradeErr
}

func (s *MockStrategy) CollateralRequired(uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bigCopy(s.collateral), nil
}

func (s *MockStrategy) PremiumReceived() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bigCopy(s.premium)
}

func (s *MockStrategy) PostTradeCheck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postCheck
}

func (s *MockStrategy) HasOpenPosition() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openPosition
}

func (s *MockStrategy) ClearPositionsAndReturnFunds() (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	funds := s.returnFunds
	s.returnFunds = new(big.Int)
	return funds, nil
}

func (s *MockStrategy) Settle(uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payout := s.settlement
	s.settlement = new(big.Int)
	return payout, nil
}

func (s *MockStrategy) RoundStarted(round uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedRounds = append(s.startedRounds, round)
}

// StartedRounds returns the rounds this strategy has been notified about.
func (s *MockStrategy) StartedRounds() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint32, len(s.startedRounds))
	copy(out, s.startedRounds)
	return out
}
