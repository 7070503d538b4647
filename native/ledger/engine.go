package ledger

import (
	"math/big"
	"sync"
	"time"

	"xvfi/core/events"
	"xvfi/core/types"
	"xvfi/crypto"
	nativecommon "xvfi/native/common"
)

const moduleName = "ledger"

type engineState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
	GetPosition(addr crypto.Address) (*Position, error)
	PutPosition(addr crypto.Address, position *Position) error
	GetStakes(addr crypto.Address) ([]*StakeRecord, error)
	PutStakes(addr crypto.Address, records []*StakeRecord) error
	StakeOwner(assetID uint64) (crypto.Address, bool, error)
	SetStakeOwner(assetID uint64, owner crypto.Address) error
	ClearStakeOwner(assetID uint64) error
}

// DebtToken is the fungible XVD collaborator. Implementations must fail on
// underflow or missing balance rather than wrapping.
type DebtToken interface {
	Mint(to crypto.Address, amount *big.Int) error
	Burn(from crypto.Address, amount *big.Int) error
	Transfer(from, to crypto.Address, amount *big.Int) error
	TransferFrom(spender, from, to crypto.Address, amount *big.Int) error
	Approve(owner, spender crypto.Address, amount *big.Int) error
	Allowance(owner, spender crypto.Address) (*big.Int, error)
	BalanceOf(addr crypto.Address) (*big.Int, error)
}

// AssetRegistry is the NFT-like collaborator holding the lockable assets.
type AssetRegistry interface {
	OwnerOf(id uint64) (crypto.Address, error)
	Transfer(from, to crypto.Address, id uint64) error
}

// Engine orchestrates the collateral, debt and staking state transitions. It
// exclusively owns the position and stake stores; every public mutating
// operation runs under one exclusive lock so the sequential contract holds on
// multi-threaded hosts, and all validations precede the first state write so
// a failed operation leaves no partial effects.
type Engine struct {
	mu sync.Mutex

	state    engineState
	token    DebtToken
	registry AssetRegistry
	feed     *FeedAdapter
	emitter  events.Emitter
	roles    RolePolicy
	pauses   nativecommon.PauseView

	collateralVault crypto.Address
	stakingVault    crypto.Address
	params          Params
	nowFn           func() int64
}

// NewEngine constructs a ledger engine configured with the module custody
// addresses and runtime parameters.
func NewEngine(collateralVault, stakingVault crypto.Address, params Params) *Engine {
	return &Engine{
		collateralVault: collateralVault,
		stakingVault:    stakingVault,
		params:          params.Clone(),
		emitter:         events.NoopEmitter{},
		nowFn:           func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken configures the debt token collaborator.
func (e *Engine) SetToken(token DebtToken) { e.token = token }

// SetRegistry configures the locked-asset registry collaborator.
func (e *Engine) SetRegistry(registry AssetRegistry) { e.registry = registry }

// SetFeed configures the validated price feed adapter.
func (e *Engine) SetFeed(feed *FeedAdapter) { e.feed = feed }

// SetRoles wires the authorization policy consulted by privileged operations.
func (e *Engine) SetRoles(roles RolePolicy) { e.roles = roles }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Params returns a copy of the current runtime parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.Clone()
}

// UpdateParams replaces the runtime parameters. Restricted to RoleAdmin.
func (e *Engine) UpdateParams(caller crypto.Address, params Params) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.roles == nil || !e.roles.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	e.params = params.Clone()
	return nil
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.token == nil {
		return ErrNilToken
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// --- Collateral & debt facade ---

// DepositCollateral locks XV collateral for the user inside the vault.
func (e *Engine) DepositCollateral(user crypto.Address, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deposit(user, amount)
}

// MintDebt mints XVD against the user's collateral, rejecting the whole
// operation when the resulting health factor would drop below 1.0.
func (e *Engine) MintDebt(user crypto.Address, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mint(user, amount)
}

// DepositAndMint performs deposit then mint as one atomic operation. Both
// steps are validated against the projected position, including the combined
// health factor, before the first state write so a rejection leaves nothing
// applied.
func (e *Engine) DepositAndMint(user crypto.Address, depositAmount, mintAmount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if user.IsZero() {
		return ErrInvalidAddress
	}
	if depositAmount == nil || depositAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if mintAmount == nil || mintAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.params.MinimumDeposit != nil && depositAmount.Cmp(e.params.MinimumDeposit) < 0 {
		return ErrBelowMinimumDeposit
	}
	userAcc, err := e.loadAccount(user)
	if err != nil {
		return err
	}
	if userAcc.BalanceXV.Cmp(depositAmount) < 0 {
		return ErrInsufficientBalance
	}
	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	price, err := e.latestPrice()
	if err != nil {
		return err
	}
	projectedCollateral := new(big.Int).Add(position.Collateral, depositAmount)
	projectedMinted := new(big.Int).Add(position.Minted, mintAmount)
	if healthFactor(projectedMinted, usdValue(price, projectedCollateral)).Cmp(minHealthFactor) < 0 {
		return ErrHealthFactorBroken
	}

	if err := e.deposit(user, depositAmount); err != nil {
		return err
	}
	return e.mint(user, mintAmount)
}

// RedeemCollateral releases collateral to the recipient while ensuring the
// remaining position stays healthy.
func (e *Engine) RedeemCollateral(user, recipient crypto.Address, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redeem(user, recipient, amount)
}

// BurnDebt repays minted debt on behalf of an account, pulling the tokens
// from the payer first. A payer other than the account must have approved the
// account for at least the burned amount.
func (e *Engine) BurnDebt(onBehalfOf, payer crypto.Address, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.burn(onBehalfOf, payer, amount)
}

// ApproveDebt records the owner's authorization for the spender to pull XVD
// on their behalf, as BurnDebt requires for third-party payers. A zero amount
// revokes the authorization.
func (e *Engine) ApproveDebt(owner, spender crypto.Address, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if owner.IsZero() || spender.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.token.Approve(owner, spender, amount); err != nil {
		return ErrTransferFailed
	}
	return nil
}

// RedeemForBurn burns debt first, then redeems collateral, so the closing
// health check reflects the reduced debt. Both steps are validated before the
// first state write; a rejected redeem never leaves the burn applied.
func (e *Engine) RedeemForBurn(user crypto.Address, collateralAmount, debtAmount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if user.IsZero() {
		return ErrInvalidAddress
	}
	if collateralAmount == nil || collateralAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if debtAmount == nil || debtAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	if position.Minted.Cmp(debtAmount) < 0 {
		return ErrInsufficientDebt
	}
	if position.Collateral.Cmp(collateralAmount) < 0 {
		return ErrInsufficientCollateral
	}
	balance, err := e.token.BalanceOf(user)
	if err != nil {
		return err
	}
	if balance.Cmp(debtAmount) < 0 {
		return ErrInsufficientBalance
	}
	vaultAcc, err := e.loadAccount(e.collateralVault)
	if err != nil {
		return err
	}
	if vaultAcc.BalanceXV.Cmp(collateralAmount) < 0 {
		return ErrTransferFailed
	}
	remainingMinted := new(big.Int).Sub(position.Minted, debtAmount)
	if remainingMinted.Sign() > 0 {
		price, err := e.latestPrice()
		if err != nil {
			return err
		}
		remainingCollateral := new(big.Int).Sub(position.Collateral, collateralAmount)
		if healthFactor(remainingMinted, usdValue(price, remainingCollateral)).Cmp(minHealthFactor) < 0 {
			return ErrHealthFactorBroken
		}
	}

	if err := e.burn(user, user, debtAmount); err != nil {
		return err
	}
	return e.redeem(user, user, collateralAmount)
}

func (e *Engine) deposit(user crypto.Address, amount *big.Int) error {
	if user.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.params.MinimumDeposit != nil && amount.Cmp(e.params.MinimumDeposit) < 0 {
		return ErrBelowMinimumDeposit
	}

	userAcc, err := e.loadAccount(user)
	if err != nil {
		return err
	}
	if userAcc.BalanceXV.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	vaultAcc, err := e.loadAccount(e.collateralVault)
	if err != nil {
		return err
	}
	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}

	userAcc.BalanceXV = new(big.Int).Sub(userAcc.BalanceXV, amount)
	vaultAcc.BalanceXV = new(big.Int).Add(vaultAcc.BalanceXV, amount)
	position.Collateral = new(big.Int).Add(position.Collateral, amount)

	if err := e.state.PutAccount(user, userAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.collateralVault, vaultAcc); err != nil {
		return err
	}
	if err := e.state.PutPosition(user, position); err != nil {
		return err
	}

	e.emit(events.CollateralDeposited{Account: user, Amount: clone(amount)})
	return nil
}

func (e *Engine) mint(user crypto.Address, amount *big.Int) error {
	if user.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	price, err := e.latestPrice()
	if err != nil {
		return err
	}

	projected := new(big.Int).Add(position.Minted, amount)
	collateralUsd := usdValue(price, position.Collateral)
	if healthFactor(projected, collateralUsd).Cmp(minHealthFactor) < 0 {
		return ErrHealthFactorBroken
	}

	if err := e.token.Mint(user, amount); err != nil {
		return ErrTransferFailed
	}
	position.Minted = projected
	if err := e.state.PutPosition(user, position); err != nil {
		return err
	}

	e.emit(events.DebtMinted{Account: user, Amount: clone(amount)})
	return nil
}

func (e *Engine) redeem(user, recipient crypto.Address, amount *big.Int) error {
	if user.IsZero() || recipient.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	if position.Collateral.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}

	remaining := new(big.Int).Sub(position.Collateral, amount)
	if position.Minted.Sign() > 0 {
		price, err := e.latestPrice()
		if err != nil {
			return err
		}
		if healthFactor(position.Minted, usdValue(price, remaining)).Cmp(minHealthFactor) < 0 {
			return ErrHealthFactorBroken
		}
	}

	vaultAcc, err := e.loadAccount(e.collateralVault)
	if err != nil {
		return err
	}
	if vaultAcc.BalanceXV.Cmp(amount) < 0 {
		return ErrTransferFailed
	}
	recipientAcc, err := e.loadAccount(recipient)
	if err != nil {
		return err
	}

	vaultAcc.BalanceXV = new(big.Int).Sub(vaultAcc.BalanceXV, amount)
	recipientAcc.BalanceXV = new(big.Int).Add(recipientAcc.BalanceXV, amount)
	position.Collateral = remaining

	if err := e.state.PutAccount(e.collateralVault, vaultAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(recipient, recipientAcc); err != nil {
		return err
	}
	if err := e.state.PutPosition(user, position); err != nil {
		return err
	}

	e.emit(events.CollateralRedeemed{Account: user, Recipient: recipient, Amount: clone(amount)})
	return nil
}

func (e *Engine) burn(onBehalfOf, payer crypto.Address, amount *big.Int) error {
	if onBehalfOf.IsZero() || payer.IsZero() {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	position, err := e.ensurePosition(onBehalfOf)
	if err != nil {
		return err
	}
	if position.Minted.Cmp(amount) < 0 {
		return ErrInsufficientDebt
	}
	payerBalance, err := e.token.BalanceOf(payer)
	if err != nil {
		return err
	}
	if payerBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	thirdParty := !payer.Equal(onBehalfOf)
	if thirdParty {
		allowance, err := e.token.Allowance(payer, onBehalfOf)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
	}

	if thirdParty {
		if err := e.token.TransferFrom(onBehalfOf, payer, e.collateralVault, amount); err != nil {
			return ErrTransferFailed
		}
		if err := e.token.Burn(e.collateralVault, amount); err != nil {
			return ErrTransferFailed
		}
	} else if err := e.token.Burn(payer, amount); err != nil {
		return ErrTransferFailed
	}
	position.Minted = new(big.Int).Sub(position.Minted, amount)
	if err := e.state.PutPosition(onBehalfOf, position); err != nil {
		return err
	}

	e.emit(events.DebtBurned{Account: onBehalfOf, Payer: payer, Amount: clone(amount)})
	return nil
}

// Liquidate lets a third party cover part of an insolvent account's debt in
// exchange for the equivalent collateral plus a 10% bonus. The liquidated
// account's resulting health factor is not re-verified: partial liquidations
// may leave it under-collateralized. Known limitation.
func (e *Engine) Liquidate(liquidator, user crypto.Address, debtToCover *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if liquidator.IsZero() || user.IsZero() {
		return ErrInvalidAddress
	}
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return ErrInvalidAmount
	}

	position, err := e.ensurePosition(user)
	if err != nil {
		return err
	}
	price, err := e.latestPrice()
	if err != nil {
		return err
	}
	if healthFactor(position.Minted, usdValue(price, position.Collateral)).Cmp(minHealthFactor) >= 0 {
		return ErrHealthFactorOk
	}
	if position.Minted.Cmp(debtToCover) < 0 {
		return ErrInsufficientDebt
	}

	covered := tokenAmountFromUsd(price, debtToCover)
	bonus := new(big.Int).Mul(covered, liquidationBonus)
	bonus.Quo(bonus, liquidationPrecision)
	seized := new(big.Int).Add(covered, bonus)
	if position.Collateral.Cmp(seized) < 0 {
		return ErrInsufficientCollateral
	}

	liquidatorBalance, err := e.token.BalanceOf(liquidator)
	if err != nil {
		return err
	}
	if liquidatorBalance.Cmp(debtToCover) < 0 {
		return ErrInsufficientBalance
	}

	vaultAcc, err := e.loadAccount(e.collateralVault)
	if err != nil {
		return err
	}
	if vaultAcc.BalanceXV.Cmp(seized) < 0 {
		return ErrTransferFailed
	}
	liquidatorAcc, err := e.loadAccount(liquidator)
	if err != nil {
		return err
	}

	if err := e.token.Burn(liquidator, debtToCover); err != nil {
		return ErrTransferFailed
	}

	vaultAcc.BalanceXV = new(big.Int).Sub(vaultAcc.BalanceXV, seized)
	liquidatorAcc.BalanceXV = new(big.Int).Add(liquidatorAcc.BalanceXV, seized)
	position.Collateral = new(big.Int).Sub(position.Collateral, seized)
	position.Minted = new(big.Int).Sub(position.Minted, debtToCover)

	if err := e.state.PutAccount(e.collateralVault, vaultAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(liquidator, liquidatorAcc); err != nil {
		return err
	}
	if err := e.state.PutPosition(user, position); err != nil {
		return err
	}

	e.emit(events.Liquidated{
		Liquidator:  liquidator,
		Account:     user,
		DebtCovered: clone(debtToCover),
		Seized:      seized,
	})
	return nil
}

// --- Read-only queries ---

// AccountInfo reports the minted debt and the USD value of deposited
// collateral at the latest validated price.
func (e *Engine) AccountInfo(user crypto.Address) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, nil, err
	}
	price, err := e.latestPrice()
	if err != nil {
		return nil, nil, err
	}
	return clone(position.Minted), usdValue(price, position.Collateral), nil
}

// HealthFactorOf computes the user's current health factor; debt-free
// accounts report the max sentinel.
func (e *Engine) HealthFactorOf(user crypto.Address) (*big.Int, error) {
	minted, collateralUsd, err := e.AccountInfo(user)
	if err != nil {
		return nil, err
	}
	return healthFactor(minted, collateralUsd), nil
}

// CollateralOf returns the user's deposited collateral balance.
func (e *Engine) CollateralOf(user crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, err
	}
	return clone(position.Collateral), nil
}

// MintedOf returns the user's outstanding minted debt.
func (e *Engine) MintedOf(user crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	position, err := e.ensurePosition(user)
	if err != nil {
		return nil, err
	}
	return clone(position.Minted), nil
}

// --- helpers ---

func (e *Engine) latestPrice() (*big.Int, error) {
	if e.feed == nil {
		return nil, ErrNilFeed
	}
	return e.feed.LatestPrice()
}

func (e *Engine) ensurePosition(addr crypto.Address) (*Position, error) {
	position, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{Address: addr}
	}
	if position.Collateral == nil {
		position.Collateral = big.NewInt(0)
	}
	if position.Minted == nil {
		position.Minted = big.NewInt(0)
	}
	return position, nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.EnsureDefaults()
	return acc, nil
}
