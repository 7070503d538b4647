package ledger

import (
	"math/big"

	"xvfi/core/events"
	"xvfi/crypto"
)

// Stake locks an asset from the registry together with an XVD principal and
// snapshots the current interest rate and lock-up window into a new record.
func (e *Engine) Stake(staker crypto.Address, assetID uint64, principal *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if e.registry == nil {
		return ErrNilRegistry
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if staker.IsZero() {
		return ErrInvalidAddress
	}
	if principal == nil || principal.Sign() <= 0 {
		return ErrInvalidAmount
	}

	owner, err := e.registry.OwnerOf(assetID)
	if err != nil {
		return ErrTokenNotStaked
	}
	if !owner.Equal(staker) {
		return ErrNotOwnerOfThisToken
	}

	balance, err := e.token.BalanceOf(staker)
	if err != nil {
		return err
	}
	if balance.Cmp(principal) < 0 {
		return ErrInsufficientBalance
	}

	records, err := e.state.GetStakes(staker)
	if err != nil {
		return err
	}

	if err := e.token.Transfer(staker, e.stakingVault, principal); err != nil {
		return ErrTransferFailed
	}
	if err := e.registry.Transfer(staker, e.stakingVault, assetID); err != nil {
		return ErrTransferFailed
	}

	now := uint64(e.now())
	record := &StakeRecord{
		AssetID:       assetID,
		Principal:     clone(principal),
		RatePerSecond: clone(e.params.StakingRatePerSecond),
		LastAccrual:   now,
		LockUpEnd:     now + e.params.LockUpPeriodSeconds,
	}
	records = append(records, record)

	if err := e.state.PutStakes(staker, records); err != nil {
		return err
	}
	if err := e.state.SetStakeOwner(assetID, staker); err != nil {
		return err
	}

	e.emit(events.StakeLocked{
		Staker:    staker,
		AssetID:   assetID,
		Principal: clone(principal),
		LockUpEnd: record.LockUpEnd,
	})
	return nil
}

// Claim accrues every record linearly over the elapsed time, resets the
// accrual timestamps, and pays the summed reward out in freshly minted XVD.
func (e *Engine) Claim(staker crypto.Address) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if staker.IsZero() {
		return nil, ErrInvalidAddress
	}
	records, err := e.state.GetStakes(staker)
	if err != nil {
		return nil, err
	}

	now := uint64(e.now())
	total := big.NewInt(0)
	for _, record := range records {
		total.Add(total, accrue(record, now))
	}
	if total.Sign() == 0 {
		return nil, ErrNoRewardToClaim
	}

	if err := e.token.Mint(staker, total); err != nil {
		return nil, ErrTransferFailed
	}
	for _, record := range records {
		record.LastAccrual = now
	}
	if err := e.state.PutStakes(staker, records); err != nil {
		return nil, err
	}

	e.emit(events.StakeClaimed{Staker: staker, Reward: clone(total)})
	return total, nil
}

// Unstake withdraws principal from the matching record once the lock-up has
// passed. Accrued reward is claimed and bundled with the returned principal;
// a partial unstake restarts the lock-up window for the remainder, while a
// full unstake releases the locked asset and deletes the record.
func (e *Engine) Unstake(staker crypto.Address, assetID uint64, amount *big.Int) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.registry == nil {
		return nil, ErrNilRegistry
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if staker.IsZero() {
		return nil, ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	owner, ok, err := e.state.StakeOwner(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotStaked
	}
	if !owner.Equal(staker) {
		return nil, ErrNotOwnerOfThisToken
	}

	records, err := e.state.GetStakes(staker)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, record := range records {
		if record.AssetID == assetID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrTokenNotStaked
	}
	record := records[idx]

	if record.Principal.Cmp(amount) < 0 {
		return nil, ErrInsufficientStakedAmount
	}
	now := uint64(e.now())
	if now < record.LockUpEnd {
		return nil, ErrLockUpNotExpired
	}

	vaultBalance, err := e.token.BalanceOf(e.stakingVault)
	if err != nil {
		return nil, err
	}
	if vaultBalance.Cmp(amount) < 0 {
		return nil, ErrTransferFailed
	}

	reward := accrue(record, now)
	remaining := new(big.Int).Sub(record.Principal, amount)
	released := remaining.Sign() == 0

	if err := e.token.Transfer(e.stakingVault, staker, amount); err != nil {
		return nil, ErrTransferFailed
	}
	if reward.Sign() > 0 {
		if err := e.token.Mint(staker, reward); err != nil {
			return nil, ErrTransferFailed
		}
	}
	if released {
		if err := e.registry.Transfer(e.stakingVault, staker, assetID); err != nil {
			return nil, ErrTransferFailed
		}
		records = append(records[:idx], records[idx+1:]...)
	} else {
		record.LastAccrual = now
		record.Principal = remaining
		record.LockUpEnd = now + e.params.LockUpPeriodSeconds
	}

	if err := e.state.PutStakes(staker, records); err != nil {
		return nil, err
	}
	if released {
		if err := e.state.ClearStakeOwner(assetID); err != nil {
			return nil, err
		}
	}

	payout := new(big.Int).Add(amount, reward)
	e.emit(events.StakeUnlocked{
		Staker:        staker,
		AssetID:       assetID,
		Principal:     clone(amount),
		Reward:        reward,
		AssetReleased: released,
	})
	return payout, nil
}

// StakesOf returns copies of the staker's records in stake order.
func (e *Engine) StakesOf(staker crypto.Address) ([]*StakeRecord, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	records, err := e.state.GetStakes(staker)
	if err != nil {
		return nil, err
	}
	out := make([]*StakeRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.Clone())
	}
	return out, nil
}

// accrue computes the linear reward principal × rate × elapsed / 1e18 for a
// single record without mutating it.
func accrue(record *StakeRecord, now uint64) *big.Int {
	if record == nil || record.Principal == nil || record.RatePerSecond == nil {
		return big.NewInt(0)
	}
	if now <= record.LastAccrual {
		return big.NewInt(0)
	}
	elapsed := new(big.Int).SetUint64(now - record.LastAccrual)
	reward := new(big.Int).Mul(record.Principal, record.RatePerSecond)
	reward.Mul(reward, elapsed)
	return reward.Quo(reward, precision)
}
