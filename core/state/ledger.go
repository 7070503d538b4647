package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"xvfi/core/types"
	"xvfi/crypto"
	"xvfi/native/ledger"
)

type storedAccount struct {
	Nonce      uint64
	BalanceXV  *big.Int
	BalanceXVD *big.Int
}

type storedPosition struct {
	Collateral *big.Int
	Minted     *big.Int
}

type storedStakeRecord struct {
	AssetID       uint64
	Principal     *big.Int
	RatePerSecond *big.Int
	LastAccrual   uint64
	LockUpEnd     uint64
}

// GetAccount loads the balances tracked for the address. A missing entry
// decodes to a zeroed account rather than an error.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	var stored storedAccount
	ok, err := m.KVGet(addressKey(accountPrefix, addr), &stored)
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if ok {
		account.Nonce = stored.Nonce
		if stored.BalanceXV != nil {
			account.BalanceXV = new(big.Int).Set(stored.BalanceXV)
		}
		if stored.BalanceXVD != nil {
			account.BalanceXVD = new(big.Int).Set(stored.BalanceXVD)
		}
	}
	account.EnsureDefaults()
	return account, nil
}

// PutAccount persists the account after validating both balances fit in 256
// bits, matching the word size balances occupy on the wire.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: account must not be nil")
	}
	account.EnsureDefaults()
	if err := validateBalance("XV", account.BalanceXV); err != nil {
		return err
	}
	if err := validateBalance("XVD", account.BalanceXVD); err != nil {
		return err
	}
	stored := storedAccount{
		Nonce:      account.Nonce,
		BalanceXV:  new(big.Int).Set(account.BalanceXV),
		BalanceXVD: new(big.Int).Set(account.BalanceXVD),
	}
	return m.KVPut(addressKey(accountPrefix, addr), &stored)
}

// GetPosition loads the collateral/debt position for the address, or nil when
// none has been recorded yet.
func (m *Manager) GetPosition(addr crypto.Address) (*ledger.Position, error) {
	var stored storedPosition
	ok, err := m.KVGet(addressKey(positionPrefix, addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	position := &ledger.Position{
		Address:    addr,
		Collateral: big.NewInt(0),
		Minted:     big.NewInt(0),
	}
	if stored.Collateral != nil {
		position.Collateral = new(big.Int).Set(stored.Collateral)
	}
	if stored.Minted != nil {
		position.Minted = new(big.Int).Set(stored.Minted)
	}
	return position, nil
}

// PutPosition persists the collateral/debt position keyed by its address.
func (m *Manager) PutPosition(addr crypto.Address, position *ledger.Position) error {
	if position == nil {
		return fmt.Errorf("state: position must not be nil")
	}
	stored := storedPosition{
		Collateral: big.NewInt(0),
		Minted:     big.NewInt(0),
	}
	if position.Collateral != nil {
		if position.Collateral.Sign() < 0 {
			return fmt.Errorf("state: collateral must not be negative")
		}
		stored.Collateral = new(big.Int).Set(position.Collateral)
	}
	if position.Minted != nil {
		if position.Minted.Sign() < 0 {
			return fmt.Errorf("state: minted debt must not be negative")
		}
		stored.Minted = new(big.Int).Set(position.Minted)
	}
	return m.KVPut(addressKey(positionPrefix, addr), &stored)
}

// GetStakes loads the stake records for the address in stake order.
func (m *Manager) GetStakes(addr crypto.Address) ([]*ledger.StakeRecord, error) {
	var stored []storedStakeRecord
	ok, err := m.KVGet(addressKey(stakesPrefix, addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	records := make([]*ledger.StakeRecord, 0, len(stored))
	for _, s := range stored {
		record := &ledger.StakeRecord{
			AssetID:       s.AssetID,
			Principal:     big.NewInt(0),
			RatePerSecond: big.NewInt(0),
			LastAccrual:   s.LastAccrual,
			LockUpEnd:     s.LockUpEnd,
		}
		if s.Principal != nil {
			record.Principal = new(big.Int).Set(s.Principal)
		}
		if s.RatePerSecond != nil {
			record.RatePerSecond = new(big.Int).Set(s.RatePerSecond)
		}
		records = append(records, record)
	}
	return records, nil
}

// PutStakes replaces the stake records stored for the address. An empty slice
// clears the entry.
func (m *Manager) PutStakes(addr crypto.Address, records []*ledger.StakeRecord) error {
	key := addressKey(stakesPrefix, addr)
	if len(records) == 0 {
		return m.KVDelete(key)
	}
	stored := make([]storedStakeRecord, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		s := storedStakeRecord{
			AssetID:       record.AssetID,
			Principal:     big.NewInt(0),
			RatePerSecond: big.NewInt(0),
			LastAccrual:   record.LastAccrual,
			LockUpEnd:     record.LockUpEnd,
		}
		if record.Principal != nil {
			s.Principal = new(big.Int).Set(record.Principal)
		}
		if record.RatePerSecond != nil {
			s.RatePerSecond = new(big.Int).Set(record.RatePerSecond)
		}
		stored = append(stored, s)
	}
	return m.KVPut(key, stored)
}

// StakeOwner resolves which staker locked the asset, if any.
func (m *Manager) StakeOwner(assetID uint64) (crypto.Address, bool, error) {
	var raw []byte
	ok, err := m.KVGet(idKey(stakeOwnerPrefix, assetID), &raw)
	if err != nil || !ok {
		return crypto.Address{}, false, err
	}
	if len(raw) != 20 {
		return crypto.Address{}, false, fmt.Errorf("state: stake owner record corrupted for asset %d", assetID)
	}
	return crypto.MustNewAddress(crypto.XVPrefix, raw), true, nil
}

// SetStakeOwner records the staker that locked the asset.
func (m *Manager) SetStakeOwner(assetID uint64, owner crypto.Address) error {
	return m.KVPut(idKey(stakeOwnerPrefix, assetID), owner.Bytes())
}

// ClearStakeOwner removes the lock record for the asset.
func (m *Manager) ClearStakeOwner(assetID uint64) error {
	return m.KVDelete(idKey(stakeOwnerPrefix, assetID))
}

// Allowance loads the amount the spender may move out of the owner's balance.
func (m *Manager) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	var stored *big.Int
	ok, err := m.KVGet(pairKey(allowancePrefix, owner, spender), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored == nil {
		return big.NewInt(0), nil
	}
	return stored, nil
}

// SetAllowance persists the spender allowance. A zero amount clears the entry.
func (m *Manager) SetAllowance(owner, spender crypto.Address, amount *big.Int) error {
	key := pairKey(allowancePrefix, owner, spender)
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: allowance must not be negative")
	}
	return m.KVPut(key, amount)
}

// AssetOwner resolves the registry owner of the asset, if minted.
func (m *Manager) AssetOwner(id uint64) (crypto.Address, bool, error) {
	var raw []byte
	ok, err := m.KVGet(idKey(assetOwnerPrefix, id), &raw)
	if err != nil || !ok {
		return crypto.Address{}, false, err
	}
	if len(raw) != 20 {
		return crypto.Address{}, false, fmt.Errorf("state: asset owner record corrupted for asset %d", id)
	}
	return crypto.MustNewAddress(crypto.XVPrefix, raw), true, nil
}

// SetAssetOwner records the registry owner of the asset.
func (m *Manager) SetAssetOwner(id uint64, owner crypto.Address) error {
	return m.KVPut(idKey(assetOwnerPrefix, id), owner.Bytes())
}

func validateBalance(symbol string, amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("state: %s balance must not be nil", symbol)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: %s balance must not be negative", symbol)
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return fmt.Errorf("state: %s balance overflows 256 bits", symbol)
	}
	return nil
}

func addressKey(prefix []byte, addr crypto.Address) []byte {
	raw := addr.Bytes()
	key := make([]byte, len(prefix)+len(raw))
	copy(key, prefix)
	copy(key[len(prefix):], raw)
	return key
}

func idKey(prefix []byte, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}

func pairKey(prefix []byte, a, b crypto.Address) []byte {
	ab := a.Bytes()
	bb := b.Bytes()
	key := make([]byte, len(prefix)+len(ab)+len(bb))
	copy(key, prefix)
	copy(key[len(prefix):], ab)
	copy(key[len(prefix)+len(ab):], bb)
	return key
}
