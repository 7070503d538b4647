package ledger

import "errors"

var (
	ErrNilState                 = errors.New("ledger engine: state not configured")
	ErrNilToken                 = errors.New("ledger engine: debt token not configured")
	ErrNilRegistry              = errors.New("ledger engine: asset registry not configured")
	ErrNilFeed                  = errors.New("ledger engine: price feed not configured")
	ErrInvalidAmount            = errors.New("ledger engine: amount must be positive")
	ErrInvalidAddress           = errors.New("ledger engine: address must not be zero")
	ErrBelowMinimumDeposit      = errors.New("ledger engine: deposit below configured minimum")
	ErrInsufficientBalance      = errors.New("ledger engine: insufficient balance")
	ErrInsufficientCollateral   = errors.New("ledger engine: redeem exceeds deposited collateral")
	ErrInsufficientDebt         = errors.New("ledger engine: burn exceeds minted debt")
	ErrInsufficientAllowance    = errors.New("ledger engine: payer allowance too low")
	ErrHealthFactorBroken       = errors.New("ledger engine: health factor below minimum")
	ErrHealthFactorOk           = errors.New("ledger engine: account not eligible for liquidation")
	ErrStalePrice               = errors.New("ledger engine: oracle price stale or inconsistent")
	ErrTransferFailed           = errors.New("ledger engine: asset transfer failed")
	ErrUnauthorized             = errors.New("ledger engine: caller not authorized")
	ErrTokenNotStaked           = errors.New("ledger engine: asset not staked")
	ErrNotOwnerOfThisToken      = errors.New("ledger engine: caller is not the staker of this asset")
	ErrInsufficientStakedAmount = errors.New("ledger engine: unstake exceeds staked principal")
	ErrLockUpNotExpired         = errors.New("ledger engine: lock-up end time not passed")
	ErrNoRewardToClaim          = errors.New("ledger engine: no reward to claim")
)
