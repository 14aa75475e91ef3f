package metrics

import (
	"io"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokusk/lyra-vaults/pkg/vault"
)

func scrape(t *testing.T, m *VaultMetrics) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestVaultMetrics_Scrape(t *testing.T) {
	m, err := NewVaultMetrics("lyra_vault", 18)
	require.NoError(t, err)

	v := vault.New(vault.Params{Decimals: 18, Cap: big.NewInt(1e18), Asset: "sETH"}, "fee-recipient")
	require.NoError(t, v.Deposit("alice", big.NewInt(5e17)))

	m.UpdateVaultState(v)
	m.RecordDeposit()
	m.RecordTrade()
	m.RecordWithdrawal()

	body := scrape(t, m)
	assert.Contains(t, body, "lyra_vault_round 1")
	assert.Contains(t, body, "lyra_vault_price_per_share 1")
	assert.Contains(t, body, "lyra_vault_total_pending 0.5")
	assert.Contains(t, body, "lyra_vault_deposits_total 1")
	assert.Contains(t, body, "lyra_vault_trades_executed_total 1")
	assert.Contains(t, body, "lyra_vault_withdrawals_completed_total 1")
}

func TestVaultMetrics_RoundClosed(t *testing.T) {
	m, err := NewVaultMetrics("lyra_vault", 18)
	require.NoError(t, err)

	m.RecordRoundClosed(&vault.CloseResult{
		Round:          2,
		PricePerShare:  big.NewInt(1e18),
		PnL:            big.NewInt(1e17),
		PerformanceFee: big.NewInt(2e15),
		ManagementFee:  big.NewInt(1e15),
	})

	body := scrape(t, m)
	assert.Contains(t, body, "lyra_vault_rounds_completed_total 1")
	assert.Contains(t, body, "lyra_vault_fees_collected 0.003")
}
