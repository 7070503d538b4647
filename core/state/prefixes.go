package state

var (
	accountPrefix    = []byte("ledger/account/")
	positionPrefix   = []byte("ledger/position/")
	stakesPrefix     = []byte("ledger/stakes/")
	stakeOwnerPrefix = []byte("ledger/stake-owner/")
	allowancePrefix  = []byte("token/allowance/")
	assetOwnerPrefix = []byte("registry/asset/")
)
