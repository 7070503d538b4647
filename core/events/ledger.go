package events

import (
	"math/big"
	"strconv"

	"xvfi/core/types"
	"xvfi/crypto"
)

const (
	// TypeCollateralDeposited is emitted when collateral enters the vault.
	TypeCollateralDeposited = "ledger.collateralDeposited"
	// TypeCollateralRedeemed is emitted when collateral is released from the vault.
	TypeCollateralRedeemed = "ledger.collateralRedeemed"
	// TypeDebtMinted is emitted when debt tokens are minted against collateral.
	TypeDebtMinted = "ledger.debtMinted"
	// TypeDebtBurned is emitted when minted debt is repaid and burned.
	TypeDebtBurned = "ledger.debtBurned"
	// TypeLiquidated is emitted when a liquidator covers an insolvent account.
	TypeLiquidated = "ledger.liquidated"
	// TypeStakeLocked is emitted when an asset and principal enter staking custody.
	TypeStakeLocked = "ledger.stakeLocked"
	// TypeStakeClaimed is emitted when accrued staking rewards are paid out.
	TypeStakeClaimed = "ledger.stakeClaimed"
	// TypeStakeUnlocked is emitted when staked principal leaves custody.
	TypeStakeUnlocked = "ledger.stakeUnlocked"
)

// CollateralDeposited records a collateral deposit credited to an account.
type CollateralDeposited struct {
	Account crypto.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

// Event converts the structured payload into a broadcastable event.
func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{Type: TypeCollateralDeposited, Attributes: map[string]string{
		"account": e.Account.String(),
		"amount":  formatAmount(e.Amount),
	}}
}

// CollateralRedeemed records collateral released from the vault.
type CollateralRedeemed struct {
	Account   crypto.Address
	Recipient crypto.Address
	Amount    *big.Int
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

func (e CollateralRedeemed) Event() *types.Event {
	return &types.Event{Type: TypeCollateralRedeemed, Attributes: map[string]string{
		"account":   e.Account.String(),
		"recipient": e.Recipient.String(),
		"amount":    formatAmount(e.Amount),
	}}
}

// DebtMinted records debt tokens minted against deposited collateral.
type DebtMinted struct {
	Account crypto.Address
	Amount  *big.Int
}

func (DebtMinted) EventType() string { return TypeDebtMinted }

func (e DebtMinted) Event() *types.Event {
	return &types.Event{Type: TypeDebtMinted, Attributes: map[string]string{
		"account": e.Account.String(),
		"amount":  formatAmount(e.Amount),
	}}
}

// DebtBurned records minted debt repaid on behalf of an account.
type DebtBurned struct {
	Account crypto.Address
	Payer   crypto.Address
	Amount  *big.Int
}

func (DebtBurned) EventType() string { return TypeDebtBurned }

func (e DebtBurned) Event() *types.Event {
	return &types.Event{Type: TypeDebtBurned, Attributes: map[string]string{
		"account": e.Account.String(),
		"payer":   e.Payer.String(),
		"amount":  formatAmount(e.Amount),
	}}
}

// Liquidated records a liquidation covering part of an insolvent account.
type Liquidated struct {
	Liquidator  crypto.Address
	Account     crypto.Address
	DebtCovered *big.Int
	Seized      *big.Int
}

func (Liquidated) EventType() string { return TypeLiquidated }

func (e Liquidated) Event() *types.Event {
	return &types.Event{Type: TypeLiquidated, Attributes: map[string]string{
		"liquidator":  e.Liquidator.String(),
		"account":     e.Account.String(),
		"debtCovered": formatAmount(e.DebtCovered),
		"seized":      formatAmount(e.Seized),
	}}
}

// StakeLocked records a locked asset and principal entering staking custody.
type StakeLocked struct {
	Staker    crypto.Address
	AssetID   uint64
	Principal *big.Int
	LockUpEnd uint64
}

func (StakeLocked) EventType() string { return TypeStakeLocked }

func (e StakeLocked) Event() *types.Event {
	return &types.Event{Type: TypeStakeLocked, Attributes: map[string]string{
		"staker":    e.Staker.String(),
		"assetId":   strconv.FormatUint(e.AssetID, 10),
		"principal": formatAmount(e.Principal),
		"lockUpEnd": strconv.FormatUint(e.LockUpEnd, 10),
	}}
}

// StakeClaimed records a staking reward payout.
type StakeClaimed struct {
	Staker crypto.Address
	Reward *big.Int
}

func (StakeClaimed) EventType() string { return TypeStakeClaimed }

func (e StakeClaimed) Event() *types.Event {
	return &types.Event{Type: TypeStakeClaimed, Attributes: map[string]string{
		"staker": e.Staker.String(),
		"reward": formatAmount(e.Reward),
	}}
}

// StakeUnlocked records principal leaving custody, with the asset released
// when the record is fully drained.
type StakeUnlocked struct {
	Staker        crypto.Address
	AssetID       uint64
	Principal     *big.Int
	Reward        *big.Int
	AssetReleased bool
}

func (StakeUnlocked) EventType() string { return TypeStakeUnlocked }

func (e StakeUnlocked) Event() *types.Event {
	return &types.Event{Type: TypeStakeUnlocked, Attributes: map[string]string{
		"staker":        e.Staker.String(),
		"assetId":       strconv.FormatUint(e.AssetID, 10),
		"principal":     formatAmount(e.Principal),
		"reward":        formatAmount(e.Reward),
		"assetReleased": strconv.FormatBool(e.AssetReleased),
	}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
