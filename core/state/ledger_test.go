package state

import (
	"fmt"
	"math/big"
	"testing"

	"xvfi/core/types"
	"xvfi/crypto"
	"xvfi/native/ledger"
	"xvfi/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.XVPrefix, raw)
}

func TestAccountRoundTrip(t *testing.T) {
	manager := newTestManager()
	addr := makeAddress(0x01)

	account, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if account.BalanceXV.Sign() != 0 || account.BalanceXVD.Sign() != 0 {
		t.Fatalf("expected zeroed account, got %+v", account)
	}

	account.Nonce = 3
	account.BalanceXV = big.NewInt(1_000)
	account.BalanceXVD = big.NewInt(250)
	if err := manager.PutAccount(addr, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	loaded, err := manager.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if loaded.Nonce != 3 || loaded.BalanceXV.Cmp(big.NewInt(1_000)) != 0 || loaded.BalanceXVD.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected account: %+v", loaded)
	}
}

func TestPutAccountRejectsOverflow(t *testing.T) {
	manager := newTestManager()
	addr := makeAddress(0x01)

	over := new(big.Int).Lsh(big.NewInt(1), 256)
	account := &types.Account{BalanceXV: over, BalanceXVD: big.NewInt(0)}
	if err := manager.PutAccount(addr, account); err == nil {
		t.Fatalf("expected overflow rejection")
	}
	account = &types.Account{BalanceXV: big.NewInt(-1), BalanceXVD: big.NewInt(0)}
	if err := manager.PutAccount(addr, account); err == nil {
		t.Fatalf("expected negative balance rejection")
	}
}

func TestPositionRoundTrip(t *testing.T) {
	manager := newTestManager()
	addr := makeAddress(0x02)

	position, err := manager.GetPosition(addr)
	if err != nil {
		t.Fatalf("get missing position: %v", err)
	}
	if position != nil {
		t.Fatalf("expected nil for missing position, got %+v", position)
	}

	put := &ledger.Position{
		Address:    addr,
		Collateral: big.NewInt(7_000),
		Minted:     big.NewInt(1_500),
	}
	if err := manager.PutPosition(addr, put); err != nil {
		t.Fatalf("put position: %v", err)
	}
	loaded, err := manager.GetPosition(addr)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if !loaded.Address.Equal(addr) {
		t.Fatalf("unexpected address: %s", loaded.Address)
	}
	if loaded.Collateral.Cmp(big.NewInt(7_000)) != 0 || loaded.Minted.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("unexpected position: %+v", loaded)
	}
}

func TestStakesRoundTripAndClear(t *testing.T) {
	manager := newTestManager()
	addr := makeAddress(0x03)

	records := []*ledger.StakeRecord{
		{
			AssetID:       1,
			Principal:     big.NewInt(100),
			RatePerSecond: big.NewInt(5),
			LastAccrual:   1_700_000_000,
			LockUpEnd:     1_700_003_600,
		},
		{
			AssetID:       9,
			Principal:     big.NewInt(40),
			RatePerSecond: big.NewInt(5),
			LastAccrual:   1_700_000_100,
			LockUpEnd:     1_700_003_700,
		},
	}
	if err := manager.PutStakes(addr, records); err != nil {
		t.Fatalf("put stakes: %v", err)
	}

	loaded, err := manager.GetStakes(addr)
	if err != nil {
		t.Fatalf("get stakes: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected two records, got %d", len(loaded))
	}
	if loaded[0].AssetID != 1 || loaded[1].AssetID != 9 {
		t.Fatalf("expected stake order preserved: %+v", loaded)
	}
	if loaded[1].Principal.Cmp(big.NewInt(40)) != 0 || loaded[1].LockUpEnd != 1_700_003_700 {
		t.Fatalf("unexpected record: %+v", loaded[1])
	}

	if err := manager.PutStakes(addr, nil); err != nil {
		t.Fatalf("clear stakes: %v", err)
	}
	loaded, err = manager.GetStakes(addr)
	if err != nil {
		t.Fatalf("get cleared stakes: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected cleared stakes, got %d", len(loaded))
	}
}

func TestStakeOwnerIndex(t *testing.T) {
	manager := newTestManager()
	owner := makeAddress(0x04)

	if _, ok, err := manager.StakeOwner(11); err != nil || ok {
		t.Fatalf("expected missing owner, ok=%v err=%v", ok, err)
	}
	if err := manager.SetStakeOwner(11, owner); err != nil {
		t.Fatalf("set stake owner: %v", err)
	}
	got, ok, err := manager.StakeOwner(11)
	if err != nil || !ok {
		t.Fatalf("stake owner: ok=%v err=%v", ok, err)
	}
	if !got.Equal(owner) {
		t.Fatalf("unexpected owner: %s", got)
	}
	if err := manager.ClearStakeOwner(11); err != nil {
		t.Fatalf("clear stake owner: %v", err)
	}
	if _, ok, _ := manager.StakeOwner(11); ok {
		t.Fatalf("expected owner cleared")
	}
}

func TestAllowanceRoundTrip(t *testing.T) {
	manager := newTestManager()
	owner := makeAddress(0x05)
	spender := makeAddress(0x06)

	allowance, err := manager.Allowance(owner, spender)
	if err != nil {
		t.Fatalf("get missing allowance: %v", err)
	}
	if allowance.Sign() != 0 {
		t.Fatalf("expected zero allowance, got %s", allowance)
	}

	if err := manager.SetAllowance(owner, spender, big.NewInt(77)); err != nil {
		t.Fatalf("set allowance: %v", err)
	}
	allowance, _ = manager.Allowance(owner, spender)
	if allowance.Cmp(big.NewInt(77)) != 0 {
		t.Fatalf("unexpected allowance: %s", allowance)
	}

	// Reversed pair is a distinct entry.
	reversed, _ := manager.Allowance(spender, owner)
	if reversed.Sign() != 0 {
		t.Fatalf("expected zero reversed allowance, got %s", reversed)
	}

	if err := manager.SetAllowance(owner, spender, big.NewInt(0)); err != nil {
		t.Fatalf("clear allowance: %v", err)
	}
	allowance, _ = manager.Allowance(owner, spender)
	if allowance.Sign() != 0 {
		t.Fatalf("expected cleared allowance, got %s", allowance)
	}
}

func TestAssetOwnerRoundTrip(t *testing.T) {
	manager := newTestManager()
	owner := makeAddress(0x07)

	if _, ok, err := manager.AssetOwner(3); err != nil || ok {
		t.Fatalf("expected missing asset, ok=%v err=%v", ok, err)
	}
	if err := manager.SetAssetOwner(3, owner); err != nil {
		t.Fatalf("set asset owner: %v", err)
	}
	got, ok, err := manager.AssetOwner(3)
	if err != nil || !ok {
		t.Fatalf("asset owner: ok=%v err=%v", ok, err)
	}
	if !got.Equal(owner) {
		t.Fatalf("unexpected owner: %s", got)
	}
}

// wrappingDB decorates backend errors the way an instrumented driver would.
type wrappingDB struct {
	storage.Database
}

func (w wrappingDB) Get(key []byte) ([]byte, error) {
	value, err := w.Database.Get(key)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	return value, nil
}

func TestKVGetTreatsWrappedNotFoundAsMissing(t *testing.T) {
	manager := NewManager(wrappingDB{storage.NewMemDB()})

	position, err := manager.GetPosition(makeAddress(0x20))
	if err != nil {
		t.Fatalf("wrapped not-found must read as missing: %v", err)
	}
	if position != nil {
		t.Fatalf("expected nil position, got %+v", position)
	}
}

func TestGenesisAppliedFlag(t *testing.T) {
	manager := newTestManager()

	applied, err := manager.GenesisApplied()
	if err != nil || applied {
		t.Fatalf("fresh database must not be marked, applied=%v err=%v", applied, err)
	}
	if err := manager.SetGenesisApplied(); err != nil {
		t.Fatalf("set genesis applied: %v", err)
	}
	applied, err = manager.GenesisApplied()
	if err != nil || !applied {
		t.Fatalf("expected marker set, applied=%v err=%v", applied, err)
	}
}

func TestEngineRunsOnPersistentState(t *testing.T) {
	manager := newTestManager()
	vault := crypto.NewAddress(crypto.ModulePrefix, append(make([]byte, 19), 0x01))
	staking := crypto.NewAddress(crypto.ModulePrefix, append(make([]byte, 19), 0x02))
	user := makeAddress(0x10)

	if err := manager.PutAccount(user, &types.Account{BalanceXV: big.NewInt(1_000)}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	engine := ledger.NewEngine(vault, staking, ledger.Params{MinimumDeposit: big.NewInt(1)})
	engine.SetState(manager)
	engine.SetToken(noopToken{})

	feed := ledger.NewManualFeed()
	adapter := ledger.NewFeedAdapter(feed, 0)
	now := int64(1_700_000_000)
	adapter.SetNowFunc(func() int64 { return now })
	engine.SetFeed(adapter)
	engine.SetNowFunc(func() int64 { return now })
	feed.Set(big.NewInt(3_000_00000000), uint64(now))

	if err := engine.DepositCollateral(user, big.NewInt(600)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	collateral, err := engine.CollateralOf(user)
	if err != nil {
		t.Fatalf("collateral of: %v", err)
	}
	if collateral.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("unexpected collateral: %s", collateral)
	}
	account, err := manager.GetAccount(user)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.BalanceXV.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected balance: %s", account.BalanceXV)
	}
}

type noopToken struct{}

func (noopToken) Mint(crypto.Address, *big.Int) error { return nil }

func (noopToken) Burn(crypto.Address, *big.Int) error { return nil }

func (noopToken) Transfer(crypto.Address, crypto.Address, *big.Int) error { return nil }

func (noopToken) TransferFrom(crypto.Address, crypto.Address, crypto.Address, *big.Int) error {
	return nil
}

func (noopToken) Approve(crypto.Address, crypto.Address, *big.Int) error { return nil }

func (noopToken) Allowance(crypto.Address, crypto.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (noopToken) BalanceOf(crypto.Address) (*big.Int, error) { return big.NewInt(0), nil }
