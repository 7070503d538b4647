package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"xvfi/core/events"
	"xvfi/core/types"
	"xvfi/crypto"
	nativecommon "xvfi/native/common"
)

type mockEngineState struct {
	accounts    map[string]*types.Account
	positions   map[string]*Position
	stakes      map[string][]*StakeRecord
	stakeOwners map[uint64]crypto.Address
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		accounts:    make(map[string]*types.Account),
		positions:   make(map[string]*Position),
		stakes:      make(map[string][]*StakeRecord),
		stakeOwners: make(map[uint64]crypto.Address),
	}
}

func (m *mockEngineState) key(addr crypto.Address) string {
	return string(addr.Bytes())
}

func (m *mockEngineState) GetAccount(addr crypto.Address) (*types.Account, error) {
	if acc, ok := m.accounts[m.key(addr)]; ok {
		acc.EnsureDefaults()
		return acc, nil
	}
	return nil, nil
}

func (m *mockEngineState) PutAccount(addr crypto.Address, account *types.Account) error {
	m.accounts[m.key(addr)] = account
	return nil
}

func (m *mockEngineState) GetPosition(addr crypto.Address) (*Position, error) {
	if position, ok := m.positions[m.key(addr)]; ok {
		return position, nil
	}
	return nil, nil
}

func (m *mockEngineState) PutPosition(addr crypto.Address, position *Position) error {
	m.positions[m.key(addr)] = position
	return nil
}

func (m *mockEngineState) GetStakes(addr crypto.Address) ([]*StakeRecord, error) {
	return m.stakes[m.key(addr)], nil
}

func (m *mockEngineState) PutStakes(addr crypto.Address, records []*StakeRecord) error {
	if len(records) == 0 {
		delete(m.stakes, m.key(addr))
		return nil
	}
	m.stakes[m.key(addr)] = records
	return nil
}

func (m *mockEngineState) StakeOwner(assetID uint64) (crypto.Address, bool, error) {
	owner, ok := m.stakeOwners[assetID]
	return owner, ok, nil
}

func (m *mockEngineState) SetStakeOwner(assetID uint64, owner crypto.Address) error {
	m.stakeOwners[assetID] = owner
	return nil
}

func (m *mockEngineState) ClearStakeOwner(assetID uint64) error {
	delete(m.stakeOwners, assetID)
	return nil
}

// testToken keeps XVD balances on the mock state's accounts so engine moves
// and token moves observe the same books.
type testToken struct {
	state      *mockEngineState
	allowances map[string]*big.Int
}

func (t *testToken) allowanceKey(owner, spender crypto.Address) string {
	return string(owner.Bytes()) + "/" + string(spender.Bytes())
}

func (t *testToken) account(addr crypto.Address) *types.Account {
	acc, ok := t.state.accounts[t.state.key(addr)]
	if !ok {
		acc = &types.Account{}
		t.state.accounts[t.state.key(addr)] = acc
	}
	acc.EnsureDefaults()
	return acc
}

func (t *testToken) Mint(to crypto.Address, amount *big.Int) error {
	acc := t.account(to)
	acc.BalanceXVD = new(big.Int).Add(acc.BalanceXVD, amount)
	return nil
}

func (t *testToken) Burn(from crypto.Address, amount *big.Int) error {
	acc := t.account(from)
	if acc.BalanceXVD.Cmp(amount) < 0 {
		return errors.New("burn exceeds balance")
	}
	acc.BalanceXVD = new(big.Int).Sub(acc.BalanceXVD, amount)
	return nil
}

func (t *testToken) Transfer(from, to crypto.Address, amount *big.Int) error {
	fromAcc := t.account(from)
	if fromAcc.BalanceXVD.Cmp(amount) < 0 {
		return errors.New("transfer exceeds balance")
	}
	toAcc := t.account(to)
	fromAcc.BalanceXVD = new(big.Int).Sub(fromAcc.BalanceXVD, amount)
	toAcc.BalanceXVD = new(big.Int).Add(toAcc.BalanceXVD, amount)
	return nil
}

func (t *testToken) TransferFrom(spender, from, to crypto.Address, amount *big.Int) error {
	allowance, _ := t.Allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return errors.New("transfer exceeds allowance")
	}
	if err := t.Transfer(from, to, amount); err != nil {
		return err
	}
	t.allowances[t.allowanceKey(from, spender)] = new(big.Int).Sub(allowance, amount)
	return nil
}

func (t *testToken) Approve(owner, spender crypto.Address, amount *big.Int) error {
	t.allowances[t.allowanceKey(owner, spender)] = new(big.Int).Set(amount)
	return nil
}

func (t *testToken) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	allowance, ok := t.allowances[t.allowanceKey(owner, spender)]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowance), nil
}

func (t *testToken) BalanceOf(addr crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(t.account(addr).BalanceXVD), nil
}

type testRegistry struct {
	owners map[uint64]crypto.Address
}

func (r *testRegistry) OwnerOf(id uint64) (crypto.Address, error) {
	owner, ok := r.owners[id]
	if !ok {
		return crypto.Address{}, errors.New("asset not found")
	}
	return owner, nil
}

func (r *testRegistry) Transfer(from, to crypto.Address, id uint64) error {
	owner, ok := r.owners[id]
	if !ok {
		return errors.New("asset not found")
	}
	if !owner.Equal(from) {
		return errors.New("not owner")
	}
	r.owners[id] = to
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(prefix, raw)
}

func wei(xv int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(xv), precision)
}

// price8 builds an 8-decimal oracle answer for a whole-dollar price.
func price8(usd int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(usd), big.NewInt(100_000_000))
}

type testHarness struct {
	engine   *Engine
	state    *mockEngineState
	token    *testToken
	registry *testRegistry
	feed     *ManualFeed
	emitter  *captureEmitter

	collateralVault crypto.Address
	stakingVault    crypto.Address
	now             int64
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		state:           newMockEngineState(),
		collateralVault: makeAddress(crypto.ModulePrefix, 0x01),
		stakingVault:    makeAddress(crypto.ModulePrefix, 0x02),
		now:             1_700_000_000,
	}
	h.token = &testToken{state: h.state, allowances: make(map[string]*big.Int)}
	h.registry = &testRegistry{owners: make(map[uint64]crypto.Address)}
	h.feed = NewManualFeed()
	h.emitter = &captureEmitter{}

	params := Params{
		MinimumDeposit:       big.NewInt(1),
		StakingRatePerSecond: big.NewInt(0),
		LockUpPeriodSeconds:  0,
	}
	h.engine = NewEngine(h.collateralVault, h.stakingVault, params)
	h.engine.SetState(h.state)
	h.engine.SetToken(h.token)
	h.engine.SetRegistry(h.registry)
	h.engine.SetEmitter(h.emitter)
	h.engine.SetNowFunc(func() int64 { return h.now })

	adapter := NewFeedAdapter(h.feed, 0)
	adapter.SetNowFunc(func() int64 { return h.now })
	h.engine.SetFeed(adapter)
	return h
}

func (h *testHarness) setPrice(answer *big.Int) {
	h.feed.Set(answer, uint64(h.now))
}

func (h *testHarness) fund(addr crypto.Address, xv *big.Int) {
	h.state.accounts[h.state.key(addr)] = &types.Account{BalanceXV: new(big.Int).Set(xv)}
}

func (h *testHarness) position(addr crypto.Address) *Position {
	position := h.state.positions[h.state.key(addr)]
	if position == nil {
		t := &Position{Address: addr, Collateral: big.NewInt(0), Minted: big.NewInt(0)}
		return t
	}
	return position
}

func TestDepositCollateralMovesFunds(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositCollateral(user, wei(7)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	userAcc := h.state.accounts[h.state.key(user)]
	if userAcc.BalanceXV.Cmp(wei(3)) != 0 {
		t.Fatalf("unexpected user balance: %s", userAcc.BalanceXV)
	}
	vaultAcc := h.state.accounts[h.state.key(h.collateralVault)]
	if vaultAcc.BalanceXV.Cmp(wei(7)) != 0 {
		t.Fatalf("unexpected vault balance: %s", vaultAcc.BalanceXV)
	}
	if h.position(user).Collateral.Cmp(wei(7)) != 0 {
		t.Fatalf("unexpected position collateral: %s", h.position(user).Collateral)
	}
	if len(h.emitter.events) != 1 || h.emitter.events[0].EventType() != events.TypeCollateralDeposited {
		t.Fatalf("expected deposit event, got %v", h.emitter.events)
	}
}

func TestDepositValidation(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))

	if err := h.engine.DepositCollateral(user, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := h.engine.DepositCollateral(crypto.Address{}, wei(1)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if err := h.engine.DepositCollateral(user, wei(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	h.engine.params.MinimumDeposit = wei(2)
	if err := h.engine.DepositCollateral(user, wei(1)); !errors.Is(err, ErrBelowMinimumDeposit) {
		t.Fatalf("expected ErrBelowMinimumDeposit, got %v", err)
	}
}

func TestMintWithinHealthFactor(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositCollateral(user, wei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.MintDebt(user, wei(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	balance, err := h.token.BalanceOf(user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wei(10_000)) != 0 {
		t.Fatalf("unexpected debt balance: %s", balance)
	}

	// 10 XV at $3000 is $30000; 50% threshold against 10000 debt is 1.5.
	health, err := h.engine.HealthFactorOf(user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	expected := new(big.Int).Mul(big.NewInt(15), mustBigInt("100000000000000000"))
	if health.Cmp(expected) != 0 {
		t.Fatalf("unexpected health factor: %s, want %s", health, expected)
	}
}

func TestMintBreakingHealthFactorFails(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositCollateral(user, wei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.MintDebt(user, wei(16_000)); !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected ErrHealthFactorBroken, got %v", err)
	}

	balance, err := h.token.BalanceOf(user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected no minted debt after rejection, got %s", balance)
	}
	if h.position(user).Minted.Sign() != 0 {
		t.Fatalf("expected position minted to stay zero, got %s", h.position(user).Minted)
	}
}

func TestDepositAndMintAtomic(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(15_000)); err != nil {
		t.Fatalf("deposit and mint: %v", err)
	}
	if h.position(user).Minted.Cmp(wei(15_000)) != 0 {
		t.Fatalf("unexpected minted: %s", h.position(user).Minted)
	}
}

func TestDepositAndMintRejectionLeavesNoDeposit(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(16_000)); !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected ErrHealthFactorBroken, got %v", err)
	}
	if h.position(user).Collateral.Sign() != 0 {
		t.Fatalf("expected no collateral recorded, got %s", h.position(user).Collateral)
	}
	userAcc := h.state.accounts[h.state.key(user)]
	if userAcc.BalanceXV.Cmp(wei(10)) != 0 {
		t.Fatalf("expected user balance untouched, got %s", userAcc.BalanceXV)
	}
	if len(h.emitter.events) != 0 {
		t.Fatalf("expected no events after rejection, got %v", h.emitter.events)
	}
}

func TestRedeemKeepsPositionHealthy(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(10_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Dropping below 2x coverage of the 10000 debt must fail.
	if err := h.engine.RedeemCollateral(user, user, wei(4)); !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected ErrHealthFactorBroken, got %v", err)
	}
	if err := h.engine.RedeemCollateral(user, user, wei(3)); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	userAcc := h.state.accounts[h.state.key(user)]
	if userAcc.BalanceXV.Cmp(wei(3)) != 0 {
		t.Fatalf("unexpected user balance after redeem: %s", userAcc.BalanceXV)
	}
	if h.position(user).Collateral.Cmp(wei(7)) != 0 {
		t.Fatalf("unexpected remaining collateral: %s", h.position(user).Collateral)
	}
	if err := h.engine.RedeemCollateral(user, user, wei(8)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
}

func TestBurnReducesDebt(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(10_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := h.engine.BurnDebt(user, user, wei(4_000)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if h.position(user).Minted.Cmp(wei(6_000)) != 0 {
		t.Fatalf("unexpected minted after burn: %s", h.position(user).Minted)
	}
	balance, _ := h.token.BalanceOf(user)
	if balance.Cmp(wei(6_000)) != 0 {
		t.Fatalf("unexpected balance after burn: %s", balance)
	}
	if err := h.engine.BurnDebt(user, user, wei(7_000)); !errors.Is(err, ErrInsufficientDebt) {
		t.Fatalf("expected ErrInsufficientDebt, got %v", err)
	}
}

func TestRedeemForBurnClosesPosition(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(10_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Burning the full debt first makes the full-collateral redeem legal.
	if err := h.engine.RedeemForBurn(user, wei(10), wei(10_000)); err != nil {
		t.Fatalf("redeem for burn: %v", err)
	}
	position := h.position(user)
	if position.Collateral.Sign() != 0 || position.Minted.Sign() != 0 {
		t.Fatalf("expected closed position, got collateral=%s minted=%s", position.Collateral, position.Minted)
	}
	userAcc := h.state.accounts[h.state.key(user)]
	if userAcc.BalanceXV.Cmp(wei(10)) != 0 {
		t.Fatalf("expected collateral returned, got %s", userAcc.BalanceXV)
	}
}

func TestRedeemForBurnRejectionLeavesDebtIntact(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(10_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Asking for more collateral than deposited must not burn the debt.
	if err := h.engine.RedeemForBurn(user, wei(11), wei(10_000)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	position := h.position(user)
	if position.Minted.Cmp(wei(10_000)) != 0 {
		t.Fatalf("expected debt intact, got %s", position.Minted)
	}
	if position.Collateral.Cmp(wei(10)) != 0 {
		t.Fatalf("expected collateral intact, got %s", position.Collateral)
	}
	balance, _ := h.token.BalanceOf(user)
	if balance.Cmp(wei(10_000)) != 0 {
		t.Fatalf("expected debt tokens intact, got %s", balance)
	}

	// A redeem that would break the remaining position must roll back too.
	if err := h.engine.RedeemForBurn(user, wei(9), wei(1_000)); !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected ErrHealthFactorBroken, got %v", err)
	}
	if h.position(user).Minted.Cmp(wei(10_000)) != 0 {
		t.Fatalf("expected debt intact after health rejection, got %s", h.position(user).Minted)
	}
}

func TestBurnByThirdPartyRequiresAllowance(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	payer := makeAddress(crypto.XVPrefix, 0x20)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(10_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := h.token.Mint(payer, wei(4_000)); err != nil {
		t.Fatalf("fund payer: %v", err)
	}

	if err := h.engine.BurnDebt(user, payer, wei(4_000)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	payerBalance, _ := h.token.BalanceOf(payer)
	if payerBalance.Cmp(wei(4_000)) != 0 {
		t.Fatalf("expected payer funds untouched, got %s", payerBalance)
	}

	if err := h.engine.ApproveDebt(payer, user, wei(4_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := h.engine.BurnDebt(user, payer, wei(4_000)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if h.position(user).Minted.Cmp(wei(6_000)) != 0 {
		t.Fatalf("unexpected minted after burn: %s", h.position(user).Minted)
	}
	payerBalance, _ = h.token.BalanceOf(payer)
	if payerBalance.Sign() != 0 {
		t.Fatalf("expected payer tokens consumed, got %s", payerBalance)
	}
	allowance, _ := h.token.Allowance(payer, user)
	if allowance.Sign() != 0 {
		t.Fatalf("expected allowance consumed, got %s", allowance)
	}
}

func TestStalePriceRejectsMint(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositCollateral(user, wei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	h.now += int64(StalenessTimeout.Seconds()) + 1
	if err := h.engine.MintDebt(user, wei(1_000)); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestLiquidateSeizesCollateralWithBonus(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	liquidator := makeAddress(crypto.XVPrefix, 0x20)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(10_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := h.token.Mint(liquidator, wei(5_000)); err != nil {
		t.Fatalf("fund liquidator: %v", err)
	}

	// At $1800 the position is worth $18000, health factor 0.9.
	h.setPrice(price8(1800))

	if err := h.engine.Liquidate(liquidator, user, wei(5_000)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// 5000 USD at $1800 is 2.777... XV; plus the 10% bonus.
	covered := tokenAmountFromUsd(price8(1800), wei(5_000))
	bonus := new(big.Int).Quo(new(big.Int).Mul(covered, big.NewInt(10)), big.NewInt(100))
	seized := new(big.Int).Add(covered, bonus)

	liquidatorAcc := h.state.accounts[h.state.key(liquidator)]
	if liquidatorAcc.BalanceXV.Cmp(seized) != 0 {
		t.Fatalf("unexpected liquidator collateral: %s, want %s", liquidatorAcc.BalanceXV, seized)
	}
	if liquidatorAcc.BalanceXVD.Sign() != 0 {
		t.Fatalf("expected liquidator debt tokens burned, got %s", liquidatorAcc.BalanceXVD)
	}
	position := h.position(user)
	if position.Minted.Cmp(wei(5_000)) != 0 {
		t.Fatalf("unexpected remaining debt: %s", position.Minted)
	}
	expectedCollateral := new(big.Int).Sub(wei(10), seized)
	if position.Collateral.Cmp(expectedCollateral) != 0 {
		t.Fatalf("unexpected remaining collateral: %s, want %s", position.Collateral, expectedCollateral)
	}
}

func TestLiquidateHealthyAccountFails(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	liquidator := makeAddress(crypto.XVPrefix, 0x20)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(10_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := h.engine.Liquidate(liquidator, user, wei(1_000)); !errors.Is(err, ErrHealthFactorOk) {
		t.Fatalf("expected ErrHealthFactorOk, got %v", err)
	}
}

func TestLiquidateRequiresLiquidatorFunds(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	liquidator := makeAddress(crypto.XVPrefix, 0x20)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositAndMint(user, wei(10), wei(10_000)); err != nil {
		t.Fatalf("setup: %v", err)
	}
	h.setPrice(price8(1800))

	if err := h.engine.Liquidate(liquidator, user, wei(5_000)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestHealthFactorDebtFreeIsMax(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))

	if err := h.engine.DepositCollateral(user, wei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	health, err := h.engine.HealthFactorOf(user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	expected := new(uint256.Int).SetAllOne().ToBig()
	if health.Cmp(expected) != 0 {
		t.Fatalf("expected max sentinel, got %s", health)
	}
}

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestPausedModuleRejectsOperations(t *testing.T) {
	h := newTestHarness(t)
	user := makeAddress(crypto.XVPrefix, 0x10)
	h.fund(user, wei(10))
	h.setPrice(price8(3000))
	h.engine.SetPauses(pauseMap{"ledger": true})

	if err := h.engine.DepositCollateral(user, wei(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected pause rejection, got %v", err)
	}

	h.engine.SetPauses(pauseMap{"ledger": false})
	if err := h.engine.DepositCollateral(user, wei(1)); err != nil {
		t.Fatalf("unpause should allow deposits: %v", err)
	}
}

func TestUpdateParamsRequiresAdmin(t *testing.T) {
	h := newTestHarness(t)
	admin := makeAddress(crypto.XVPrefix, 0x30)
	stranger := makeAddress(crypto.XVPrefix, 0x31)
	h.engine.SetRoles(StaticRoles{RoleAdmin: {admin}})

	next := Params{MinimumDeposit: wei(1), StakingRatePerSecond: big.NewInt(5), LockUpPeriodSeconds: 60}
	if err := h.engine.UpdateParams(stranger, next); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.UpdateParams(admin, next); err != nil {
		t.Fatalf("update params: %v", err)
	}
	if h.engine.Params().LockUpPeriodSeconds != 60 {
		t.Fatalf("expected params updated")
	}
}
