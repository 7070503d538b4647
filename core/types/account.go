package types

import "math/big"

// Account holds the fungible balances tracked by the ledger: XV, the native
// collateral coin, and XVD, the USD-pegged debt token minted against it.
// Amounts are denominated in wei (18 decimals) and expressed as big integers
// to match on-chain precision.
type Account struct {
	Nonce      uint64   `json:"nonce"`
	BalanceXV  *big.Int `json:"balanceXV"`
	BalanceXVD *big.Int `json:"balanceXVD"`
}

// EnsureDefaults populates nil balance fields so encoding and arithmetic are
// safe on freshly created accounts.
func (a *Account) EnsureDefaults() {
	if a.BalanceXV == nil {
		a.BalanceXV = big.NewInt(0)
	}
	if a.BalanceXVD == nil {
		a.BalanceXVD = big.NewInt(0)
	}
}
