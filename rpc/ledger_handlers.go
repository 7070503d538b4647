package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"xvfi/crypto"
	"xvfi/native/common"
	"xvfi/native/ledger"
	"xvfi/observability"
)

type depositParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type depositAndMintParams struct {
	Address       string `json:"address"`
	DepositAmount string `json:"depositAmount"`
	MintAmount    string `json:"mintAmount"`
}

type redeemParams struct {
	Address   string `json:"address"`
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount"`
}

type burnParams struct {
	Address string `json:"address"`
	Payer   string `json:"payer,omitempty"`
	Amount  string `json:"amount"`
}

type approveParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type redeemForBurnParams struct {
	Address          string `json:"address"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

type liquidateParams struct {
	Liquidator  string `json:"liquidator"`
	Account     string `json:"account"`
	DebtToCover string `json:"debtToCover"`
}

type stakeParams struct {
	Staker    string `json:"staker"`
	AssetID   uint64 `json:"assetId"`
	Principal string `json:"principal"`
}

type claimParams struct {
	Staker string `json:"staker"`
}

type unstakeParams struct {
	Staker  string `json:"staker"`
	AssetID uint64 `json:"assetId"`
	Amount  string `json:"amount"`
}

type accountParams struct {
	Address string `json:"address"`
}

type submitRoundParams struct {
	Answer    string `json:"answer"`
	UpdatedAt uint64 `json:"updatedAt"`
}

type updateParamsParams struct {
	Caller               string `json:"caller"`
	MinimumDeposit       string `json:"minimumDeposit"`
	StakingRatePerSecond string `json:"stakingRatePerSecond"`
	LockUpSeconds        uint64 `json:"lockUpSeconds"`
}

type txResult struct {
	Status string `json:"status"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

type accountResult struct {
	Address       string `json:"address"`
	Collateral    string `json:"collateral"`
	Minted        string `json:"minted"`
	CollateralUsd string `json:"collateralUsd"`
	HealthFactor  string `json:"healthFactor"`
}

type stakeResult struct {
	AssetID     uint64 `json:"assetId"`
	Principal   string `json:"principal"`
	LastAccrual uint64 `json:"lastAccrual"`
	LockUpEnd   uint64 `json:"lockUpEnd"`
}

var okResult = txResult{Status: "ok"}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, amount, ok := parseAddrAmount(w, req, params.Address, params.Amount)
	if !ok {
		return
	}
	if err := s.engine.DepositCollateral(addr, amount); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, amount, ok := parseAddrAmount(w, req, params.Address, params.Amount)
	if !ok {
		return
	}
	if err := s.engine.MintDebt(addr, amount); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositAndMintParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, depositAmount, ok := parseAddrAmount(w, req, params.Address, params.DepositAmount)
	if !ok {
		return
	}
	mintAmount, ok := parseAmount(w, req, params.MintAmount)
	if !ok {
		return
	}
	if err := s.engine.DepositAndMint(addr, depositAmount, mintAmount); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleRedeem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params redeemParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, amount, ok := parseAddrAmount(w, req, params.Address, params.Amount)
	if !ok {
		return
	}
	recipient := addr
	if params.Recipient != "" {
		recipient, ok = parseAddress(w, req, params.Recipient)
		if !ok {
			return
		}
	}
	if err := s.engine.RedeemCollateral(addr, recipient, amount); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleBurn(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params burnParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, amount, ok := parseAddrAmount(w, req, params.Address, params.Amount)
	if !ok {
		return
	}
	payer := addr
	if params.Payer != "" {
		payer, ok = parseAddress(w, req, params.Payer)
		if !ok {
			return
		}
	}
	if err := s.engine.BurnDebt(addr, payer, amount); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params approveParams
	if !decodeParams(w, req, &params) {
		return
	}
	owner, ok := parseAddress(w, req, params.Owner)
	if !ok {
		return
	}
	spender, ok := parseAddress(w, req, params.Spender)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, params.Amount)
	if !ok {
		return
	}
	if err := s.engine.ApproveDebt(owner, spender, amount); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleRedeemForBurn(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params redeemForBurnParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, collateralAmount, ok := parseAddrAmount(w, req, params.Address, params.CollateralAmount)
	if !ok {
		return
	}
	debtAmount, ok := parseAmount(w, req, params.DebtAmount)
	if !ok {
		return
	}
	if err := s.engine.RedeemForBurn(addr, collateralAmount, debtAmount); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params liquidateParams
	if !decodeParams(w, req, &params) {
		return
	}
	liquidator, ok := parseAddress(w, req, params.Liquidator)
	if !ok {
		return
	}
	account, ok := parseAddress(w, req, params.Account)
	if !ok {
		return
	}
	debtToCover, ok := parseAmount(w, req, params.DebtToCover)
	if !ok {
		return
	}
	if err := s.engine.Liquidate(liquidator, account, debtToCover); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	observability.LedgerMetrics().RecordLiquidation()
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakeParams
	if !decodeParams(w, req, &params) {
		return
	}
	staker, ok := parseAddress(w, req, params.Staker)
	if !ok {
		return
	}
	principal, ok := parseAmount(w, req, params.Principal)
	if !ok {
		return
	}
	if err := s.engine.Stake(staker, params.AssetID, principal); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimParams
	if !decodeParams(w, req, &params) {
		return
	}
	staker, ok := parseAddress(w, req, params.Staker)
	if !ok {
		return
	}
	reward, err := s.engine.Claim(staker)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: reward.String()})
}

func (s *Server) handleUnstake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params unstakeParams
	if !decodeParams(w, req, &params) {
		return
	}
	staker, ok := parseAddress(w, req, params.Staker)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, params.Amount)
	if !ok {
		return
	}
	payout, err := s.engine.Unstake(staker, params.AssetID, amount)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: payout.String()})
}

func (s *Server) handleSubmitRound(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.feed == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "manual feed not enabled", nil)
		return
	}
	var params submitRoundParams
	if !decodeParams(w, req, &params) {
		return
	}
	answer, ok := parseAmount(w, req, params.Answer)
	if !ok {
		return
	}
	s.feed.Set(answer, params.UpdatedAt)
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params updateParamsParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddress(w, req, params.Caller)
	if !ok {
		return
	}
	minDeposit, ok := parseAmount(w, req, params.MinimumDeposit)
	if !ok {
		return
	}
	rate, ok := parseAmount(w, req, params.StakingRatePerSecond)
	if !ok {
		return
	}
	next := ledger.Params{
		MinimumDeposit:       minDeposit,
		StakingRatePerSecond: rate,
		LockUpPeriodSeconds:  params.LockUpSeconds,
	}
	if err := s.engine.UpdateParams(caller, next); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := parseAddress(w, req, params.Address)
	if !ok {
		return
	}
	collateral, err := s.engine.CollateralOf(addr)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	minted, collateralUsd, err := s.engine.AccountInfo(addr)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	health, err := s.engine.HealthFactorOf(addr)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, accountResult{
		Address:       addr.String(),
		Collateral:    collateral.String(),
		Minted:        minted.String(),
		CollateralUsd: collateralUsd.String(),
		HealthFactor:  health.String(),
	})
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := parseAddress(w, req, params.Address)
	if !ok {
		return
	}
	health, err := s.engine.HealthFactorOf(addr)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: health.String()})
}

func (s *Server) handleGetStakes(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimParams
	if !decodeParams(w, req, &params) {
		return
	}
	staker, ok := parseAddress(w, req, params.Staker)
	if !ok {
		return
	}
	records, err := s.engine.StakesOf(staker)
	if err != nil {
		writeLedgerError(w, req, err)
		return
	}
	out := make([]stakeResult, 0, len(records))
	for _, record := range records {
		out = append(out, stakeResult{
			AssetID:     record.AssetID,
			Principal:   record.Principal.String(),
			LastAccrual: record.LastAccrual,
			LockUpEnd:   record.LockUpEnd,
		})
	}
	writeResult(w, req.ID, out)
}

// --- helpers ---

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected a single parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, req *RPCRequest, raw string) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func parseAmount(w http.ResponseWriter, req *RPCRequest, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount must be a non-negative decimal string", raw)
		return nil, false
	}
	return amount, true
}

func parseAddrAmount(w http.ResponseWriter, req *RPCRequest, rawAddr, rawAmount string) (crypto.Address, *big.Int, bool) {
	addr, ok := parseAddress(w, req, rawAddr)
	if !ok {
		return crypto.Address{}, nil, false
	}
	amount, ok := parseAmount(w, req, rawAmount)
	if !ok {
		return crypto.Address{}, nil, false
	}
	return addr, amount, true
}

func writeLedgerError(w http.ResponseWriter, req *RPCRequest, err error) {
	status, code := http.StatusInternalServerError, codeServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidAddress),
		errors.Is(err, ledger.ErrBelowMinimumDeposit):
		status, code = http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, ledger.ErrUnauthorized):
		status, code = http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, ledger.ErrStalePrice):
		observability.LedgerMetrics().RecordStaleRound()
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrHealthFactorBroken),
		errors.Is(err, ledger.ErrHealthFactorOk),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientCollateral),
		errors.Is(err, ledger.ErrInsufficientDebt),
		errors.Is(err, ledger.ErrInsufficientAllowance),
		errors.Is(err, ledger.ErrTokenNotStaked),
		errors.Is(err, ledger.ErrNotOwnerOfThisToken),
		errors.Is(err, ledger.ErrInsufficientStakedAmount),
		errors.Is(err, ledger.ErrLockUpNotExpired),
		errors.Is(err, ledger.ErrNoRewardToClaim),
		errors.Is(err, ledger.ErrTransferFailed),
		errors.Is(err, common.ErrModulePaused):
		status = http.StatusConflict
	}
	writeError(w, status, req.ID, code, err.Error(), nil)
}
