package registry

import (
	"errors"

	"xvfi/crypto"
)

var (
	ErrNilState       = errors.New("asset registry: state not configured")
	ErrInvalidAddress = errors.New("asset registry: address must not be zero")
	ErrAssetNotFound  = errors.New("asset registry: asset not found")
	ErrAssetExists    = errors.New("asset registry: asset already minted")
	ErrNotOwner       = errors.New("asset registry: sender does not own asset")
)

type registryState interface {
	AssetOwner(id uint64) (crypto.Address, bool, error)
	SetAssetOwner(id uint64, owner crypto.Address) error
}

// Registry tracks ownership of the lockable assets used as staking
// collateral. It is the NFT-equivalent collaborator of the ledger engine.
type Registry struct {
	state registryState
}

// NewRegistry constructs a registry over the given state backend.
func NewRegistry(state registryState) *Registry {
	return &Registry{state: state}
}

// MintAsset records a new asset under the owner.
func (r *Registry) MintAsset(owner crypto.Address, id uint64) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	if owner.IsZero() {
		return ErrInvalidAddress
	}
	if _, exists, err := r.state.AssetOwner(id); err != nil {
		return err
	} else if exists {
		return ErrAssetExists
	}
	return r.state.SetAssetOwner(id, owner)
}

// OwnerOf resolves the current owner of an asset.
func (r *Registry) OwnerOf(id uint64) (crypto.Address, error) {
	if r == nil || r.state == nil {
		return crypto.Address{}, ErrNilState
	}
	owner, exists, err := r.state.AssetOwner(id)
	if err != nil {
		return crypto.Address{}, err
	}
	if !exists {
		return crypto.Address{}, ErrAssetNotFound
	}
	return owner, nil
}

// Transfer moves the asset between owners, failing unless from matches the
// recorded owner.
func (r *Registry) Transfer(from, to crypto.Address, id uint64) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	if to.IsZero() {
		return ErrInvalidAddress
	}
	owner, exists, err := r.state.AssetOwner(id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrAssetNotFound
	}
	if !owner.Equal(from) {
		return ErrNotOwner
	}
	return r.state.SetAssetOwner(id, to)
}
