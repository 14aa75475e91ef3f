package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/luxfi/log"
	"github.com/shopspring/decimal"

	"github.com/rokusk/lyra-vaults/pkg/vault"
)

// Notifier receives round lifecycle and trade events as the RPC layer applies
// them. Both the websocket feed and the NATS publisher implement this.
type Notifier interface {
	RoundClosed(*vault.CloseResult)
	RoundStarted(*vault.StartResult)
	TradeExecuted(*vault.TradeResult)
}

// JSONRPCServer handles JSON-RPC 2.0 requests against a single vault.
// Operator methods check the request's "from" against the configured
// operator account.
type JSONRPCServer struct {
	vault     *vault.Vault
	operator  string
	logger    log.Logger
	notifiers []Notifier
}

// NewJSONRPCServer creates a new JSON-RPC server
func NewJSONRPCServer(v *vault.Vault, operator string, logger log.Logger) *JSONRPCServer {
	return &JSONRPCServer{
		vault:    v,
		operator: operator,
		logger:   logger,
	}
}

// AddNotifier registers an event sink. Not safe to call once serving.
func (s *JSONRPCServer) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements error interface
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC Error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
	Unauthorized   = -32000
)

// ServeHTTP implements http.Handler
func (s *JSONRPCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, nil, ParseError, "Parse error")
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendError(w, req.ID, InvalidRequest, "Invalid Request")
		return
	}

	result, err := s.handleMethod(req.Method, req.Params)
	if err != nil {
		rpcErr, ok := err.(*RPCError)
		if !ok {
			rpcErr = &RPCError{Code: InternalError, Message: err.Error()}
		}
		s.sendError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}

	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *JSONRPCServer) handleMethod(method string, params json.RawMessage) (interface{}, error) {
	switch method {
	// Depositor methods
	case "vault_deposit":
		return s.deposit(params)
	case "vault_depositFor":
		return s.depositFor(params)
	case "vault_redeem":
		return s.redeem(params)
	case "vault_maxRedeem":
		return s.maxRedeem(params)
	case "vault_initiateWithdraw":
		return s.initiateWithdraw(params)
	case "vault_completeWithdraw":
		return s.completeWithdraw(params)
	case "vault_transferShares":
		return s.transferShares(params)

	// Operator methods
	case "vault_closeRound":
		return s.closeRound(params)
	case "vault_startNextRound":
		return s.startNextRound(params)
	case "vault_trade":
		return s.trade(params)
	case "vault_settle":
		return s.settle(params)
	case "vault_setCap":
		return s.setCap(params)
	case "vault_setManagementFee":
		return s.setManagementFee(params)
	case "vault_setPerformanceFee":
		return s.setPerformanceFee(params)
	case "vault_setFeeRecipient":
		return s.setFeeRecipient(params)

	// View methods
	case "vault_state":
		return s.state(params)
	case "vault_depositReceipt":
		return s.depositReceipt(params)
	case "vault_withdrawal":
		return s.withdrawal(params)
	case "vault_shareBalances":
		return s.shareBalances(params)
	case "vault_shares":
		return s.shares(params)
	case "vault_pricePerShare":
		return s.pricePerShare(params)
	case "vault_accountVaultBalance":
		return s.accountVaultBalance(params)
	case "vault_ping":
		return "pong", nil

	default:
		return nil, &RPCError{Code: MethodNotFound, Message: "Method not found"}
	}
}

type accountAmountParams struct {
	From        string `json:"from"`
	Amount      string `json:"amount"`
	Beneficiary string `json:"beneficiary,omitempty"`
	To          string `json:"to,omitempty"`
}

func (s *JSONRPCServer) deposit(params json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	amount, err := s.parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Deposit(p.From, amount); err != nil {
		return nil, err
	}
	s.logger.Info("Deposit accepted", "account", p.From, "amount", p.Amount)
	return s.receiptResult(p.From), nil
}

func (s *JSONRPCServer) depositFor(params json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	amount, err := s.parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.vault.DepositFor(p.From, amount, p.Beneficiary); err != nil {
		return nil, err
	}
	s.logger.Info("Deposit accepted",
		"account", p.From, "beneficiary", p.Beneficiary, "amount", p.Amount)
	return s.receiptResult(p.Beneficiary), nil
}

func (s *JSONRPCServer) redeem(params json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	shares, err := s.parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Redeem(p.From, shares); err != nil {
		return nil, err
	}
	return s.balancesResult(p.From), nil
}

func (s *JSONRPCServer) maxRedeem(params json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	if err := s.vault.MaxRedeem(p.From); err != nil {
		return nil, err
	}
	return s.balancesResult(p.From), nil
}

func (s *JSONRPCServer) initiateWithdraw(params json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	shares, err := s.parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.vault.InitiateWithdraw(p.From, shares); err != nil {
		return nil, err
	}
	w := s.vault.WithdrawalOf(p.From)
	return map[string]interface{}{
		"round":  w.Round,
		"shares": s.renderAmount(w.Shares),
		"status": "queued",
	}, nil
}

func (s *JSONRPCServer) completeWithdraw(params json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	paid, err := s.vault.CompleteWithdraw(p.From)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Withdrawal completed", "account", p.From, "paid", s.renderAmount(paid))
	return map[string]interface{}{
		"paid":   s.renderAmount(paid),
		"status": "completed",
	}, nil
}

func (s *JSONRPCServer) transferShares(params json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	shares, err := s.parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Transfer(p.From, p.To, shares); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"from":   s.renderAmount(s.vault.BalanceOf(p.From)),
		"to":     s.renderAmount(s.vault.BalanceOf(p.To)),
		"status": "transferred",
	}, nil
}

type operatorParams struct {
	From       string `json:"from"`
	Value      string `json:"value,omitempty"`
	PositionID uint64 `json:"positionId,omitempty"`
}

func (s *JSONRPCServer) requireOperator(from string) error {
	if from != s.operator {
		return &RPCError{Code: Unauthorized, Message: "Operator only"}
	}
	return nil
}

func (s *JSONRPCServer) closeRound(params json.RawMessage) (interface{}, error) {
	var p operatorParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	if err := s.requireOperator(p.From); err != nil {
		return nil, err
	}
	res, err := s.vault.CloseRound()
	if err != nil {
		return nil, err
	}
	s.logger.Info("Round closed",
		"round", res.Round,
		"pricePerShare", s.renderAmount(res.PricePerShare),
		"pnl", s.renderAmount(res.PnL))
	for _, n := range s.notifiers {
		n.RoundClosed(res)
	}
	return map[string]interface{}{
		"round":          res.Round,
		"pricePerShare":  s.renderAmount(res.PricePerShare),
		"pnl":            s.renderAmount(res.PnL),
		"performanceFee": s.renderAmount(res.PerformanceFee),
		"managementFee":  s.renderAmount(res.ManagementFee),
	}, nil
}

func (s *JSONRPCServer) startNextRound(params json.RawMessage) (interface{}, error) {
	var p operatorParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	if err := s.requireOperator(p.From); err != nil {
		return nil, err
	}
	res, err := s.vault.StartNextRound()
	if err != nil {
		return nil, err
	}
	s.logger.Info("Round started",
		"round", res.Round,
		"lockedAmount", s.renderAmount(res.LockedAmount),
		"mintedShares", s.renderAmount(res.MintedShares))
	for _, n := range s.notifiers {
		n.RoundStarted(res)
	}
	return map[string]interface{}{
		"round":        res.Round,
		"lockedAmount": s.renderAmount(res.LockedAmount),
		"mintedShares": s.renderAmount(res.MintedShares),
	}, nil
}

func (s *JSONRPCServer) trade(params json.RawMessage) (interface{}, error) {
	var p operatorParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	if err := s.requireOperator(p.From); err != nil {
		return nil, err
	}
	res, err := s.vault.Trade()
	if err != nil {
		return nil, err
	}
	s.logger.Info("Trade executed",
		"targetId", res.TargetID,
		"collateral", s.renderAmount(res.Collateral),
		"premium", s.renderAmount(res.Premium))
	for _, n := range s.notifiers {
		n.TradeExecuted(res)
	}
	return map[string]interface{}{
		"targetId":   res.TargetID,
		"collateral": s.renderAmount(res.Collateral),
		"premium":    s.renderAmount(res.Premium),
	}, nil
}

func (s *JSONRPCServer) settle(params json.RawMessage) (interface{}, error) {
	var p operatorParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	if err := s.requireOperator(p.From); err != nil {
		return nil, err
	}
	payout, err := s.vault.Settle(p.PositionID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"positionId": p.PositionID,
		"payout":     s.renderAmount(payout),
	}, nil
}

func (s *JSONRPCServer) setCap(params json.RawMessage) (interface{}, error) {
	return s.operatorSetter(params, func(value *big.Int) error {
		return s.vault.SetCap(value)
	})
}

func (s *JSONRPCServer) setManagementFee(params json.RawMessage) (interface{}, error) {
	return s.operatorSetter(params, func(value *big.Int) error {
		return s.vault.SetManagementFee(value)
	})
}

func (s *JSONRPCServer) setPerformanceFee(params json.RawMessage) (interface{}, error) {
	return s.operatorSetter(params, func(value *big.Int) error {
		return s.vault.SetPerformanceFee(value)
	})
}

func (s *JSONRPCServer) setFeeRecipient(params json.RawMessage) (interface{}, error) {
	var p struct {
		From      string `json:"from"`
		Recipient string `json:"recipient"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	if err := s.requireOperator(p.From); err != nil {
		return nil, err
	}
	if err := s.vault.SetFeeRecipient(p.Recipient); err != nil {
		return nil, err
	}
	return map[string]interface{}{"recipient": p.Recipient, "status": "updated"}, nil
}

// operatorSetter handles the setters whose single argument is a raw integer
// value: the cap in base units, fee rates in FeeMultiplier units.
func (s *JSONRPCServer) operatorSetter(params json.RawMessage, apply func(*big.Int) error) (interface{}, error) {
	var p operatorParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	if err := s.requireOperator(p.From); err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(p.Value, 10)
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid value"}
	}
	if err := apply(value); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "updated"}, nil
}

type accountParams struct {
	Account string `json:"account"`
	Round   uint32 `json:"round,omitempty"`
}

func (s *JSONRPCServer) state(params json.RawMessage) (interface{}, error) {
	st := s.vault.VaultState()
	p := s.vault.Params()
	return map[string]interface{}{
		"round":                st.Round,
		"asset":                p.Asset,
		"cap":                  s.renderAmount(p.Cap),
		"lockedAmount":         s.renderAmount(st.LockedAmount),
		"lockedAmountLeft":     s.renderAmount(st.LockedAmountLeft),
		"totalPending":         s.renderAmount(st.TotalPending),
		"queuedWithdrawShares": s.renderAmount(st.QueuedWithdrawShares),
		"lastLockedAmount":     s.renderAmount(st.LastLockedAmount),
		"totalBalance":         s.renderAmount(s.vault.TotalBalance()),
		"totalSupply":          s.renderAmount(s.vault.TotalSupply()),
		"timestamp":            time.Now().Unix(),
	}, nil
}

func (s *JSONRPCServer) depositReceipt(params json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	return s.receiptResult(p.Account), nil
}

func (s *JSONRPCServer) withdrawal(params json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	w := s.vault.WithdrawalOf(p.Account)
	return map[string]interface{}{
		"round":  w.Round,
		"shares": s.renderAmount(w.Shares),
	}, nil
}

func (s *JSONRPCServer) shareBalances(params json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	return s.balancesResult(p.Account), nil
}

func (s *JSONRPCServer) shares(params json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	return map[string]interface{}{
		"shares": s.renderAmount(s.vault.Shares(p.Account)),
	}, nil
}

func (s *JSONRPCServer) pricePerShare(params json.RawMessage) (interface{}, error) {
	var p accountParams
	json.Unmarshal(params, &p)

	if p.Round > 0 {
		price := s.vault.RoundPrice(p.Round)
		if price == nil {
			return nil, &RPCError{Code: InternalError, Message: "Round not priced"}
		}
		return map[string]interface{}{
			"round": p.Round,
			"price": s.renderAmount(price),
		}, nil
	}
	return map[string]interface{}{
		"price": s.renderAmount(s.vault.PricePerShare()),
	}, nil
}

func (s *JSONRPCServer) accountVaultBalance(params json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	return map[string]interface{}{
		"balance": s.renderAmount(s.vault.AccountVaultBalance(p.Account)),
	}, nil
}

func (s *JSONRPCServer) receiptResult(account string) map[string]interface{} {
	receipt := s.vault.DepositReceiptOf(account)
	return map[string]interface{}{
		"round":            receipt.Round,
		"amount":           s.renderAmount(receipt.Amount),
		"unredeemedShares": s.renderAmount(receipt.UnredeemedShares),
	}
}

func (s *JSONRPCServer) balancesResult(account string) map[string]interface{} {
	balances := s.vault.ShareBalances(account)
	return map[string]interface{}{
		"heldByAccount": s.renderAmount(balances.HeldByAccount),
		"heldByVault":   s.renderAmount(balances.HeldByVault),
	}
}

// parseAmount converts a human decimal string into base units.
func (s *JSONRPCServer) parseAmount(str string) (*big.Int, error) {
	d, err := decimal.NewFromString(str)
	if err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid amount"}
	}
	return d.Shift(int32(s.vault.Params().Decimals)).BigInt(), nil
}

// renderAmount converts base units back into a human decimal string.
func (s *JSONRPCServer) renderAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(s.vault.Params().Decimals)).String()
}

func (s *JSONRPCServer) sendError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
		ID: id,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// StartJSONRPCServer starts the JSON-RPC server
func StartJSONRPCServer(ctx context.Context, port int, server *JSONRPCServer, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/", server)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	logger.Info("JSON-RPC server started", "port", port)
	return httpServer.ListenAndServe()
}
