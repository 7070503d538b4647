package ledger

import (
	"math/big"

	"xvfi/crypto"
)

// Position maintains the collateral and debt exposure for an individual
// account. Amounts are denominated in wei and expressed as big integers to
// match on-chain precision.
type Position struct {
	// Address is the unique account identifier within the ledger.
	Address crypto.Address
	// Collateral records the XV amount pledged as collateral.
	Collateral *big.Int
	// Minted stores the outstanding XVD debt minted against the collateral.
	Minted *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address}
	if p.Collateral != nil {
		clone.Collateral = new(big.Int).Set(p.Collateral)
	}
	if p.Minted != nil {
		clone.Minted = new(big.Int).Set(p.Minted)
	}
	return clone
}

// StakeRecord captures a locked asset plus the fungible principal accruing
// interest against it. One record exists per distinct locked asset; the
// staker is implied by the list the record lives in.
type StakeRecord struct {
	// AssetID identifies the locked asset held in staking custody.
	AssetID uint64
	// Principal is the XVD amount accruing interest.
	Principal *big.Int
	// RatePerSecond is the interest rate snapshotted when the stake was
	// created, scaled by 1e18.
	RatePerSecond *big.Int
	// LastAccrual is the unix timestamp rewards were last computed from.
	LastAccrual uint64
	// LockUpEnd is the earliest unix timestamp principal may be withdrawn.
	LockUpEnd uint64
}

// Clone returns a deep copy of the stake record.
func (r *StakeRecord) Clone() *StakeRecord {
	if r == nil {
		return nil
	}
	clone := &StakeRecord{
		AssetID:     r.AssetID,
		LastAccrual: r.LastAccrual,
		LockUpEnd:   r.LockUpEnd,
	}
	if r.Principal != nil {
		clone.Principal = new(big.Int).Set(r.Principal)
	}
	if r.RatePerSecond != nil {
		clone.RatePerSecond = new(big.Int).Set(r.RatePerSecond)
	}
	return clone
}

// Params groups the governance controlled knobs of the ledger. The solvency
// constants themselves (threshold, bonus, minimum health factor) are fixed by
// design and not part of the parameter set.
type Params struct {
	// MinimumDeposit is the smallest collateral deposit accepted, in wei.
	MinimumDeposit *big.Int
	// StakingRatePerSecond is the global interest rate snapshotted into new
	// stake records, scaled by 1e18.
	StakingRatePerSecond *big.Int
	// LockUpPeriodSeconds is the lock-up applied to new and partially
	// unstaked records.
	LockUpPeriodSeconds uint64
}

// Clone returns a deep copy of the parameter set.
func (p Params) Clone() Params {
	clone := Params{LockUpPeriodSeconds: p.LockUpPeriodSeconds}
	if p.MinimumDeposit != nil {
		clone.MinimumDeposit = new(big.Int).Set(p.MinimumDeposit)
	}
	if p.StakingRatePerSecond != nil {
		clone.StakingRatePerSecond = new(big.Int).Set(p.StakingRatePerSecond)
	}
	return clone
}

// RolePolicy answers authorization checks for privileged ledger operations.
type RolePolicy interface {
	HasRole(role string, addr crypto.Address) bool
}

// RoleAdmin grants parameter updates and oracle round submission.
const RoleAdmin = "ROLE_ADMIN"

// StaticRoles is a fixed in-memory role table satisfying RolePolicy.
type StaticRoles map[string][]crypto.Address

// HasRole reports whether the address is listed under the role.
func (r StaticRoles) HasRole(role string, addr crypto.Address) bool {
	for _, member := range r[role] {
		if member.Equal(addr) {
			return true
		}
	}
	return false
}
