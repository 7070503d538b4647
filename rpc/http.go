package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xvfi/native/ledger"
	"xvfi/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 32
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the ledger engine over JSON-RPC. Mutating methods require
// authentication and are rate limited per source address.
type Server struct {
	engine *ledger.Engine
	feed   *ledger.ManualFeed
	logger *slog.Logger

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	authToken    string
	jwtSecret    []byte
	nowFn        func() time.Time
}

// NewServer constructs a server bound to the engine. The manual feed is
// optional; when present the ledger_submitRound admin method is enabled.
func NewServer(engine *ledger.Engine, feed *ledger.ManualFeed, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:       engine,
		feed:         feed,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiter),
		nowFn:        time.Now,
	}
}

// SetAuthToken configures the static bearer token accepted on privileged
// methods.
func (s *Server) SetAuthToken(token string) {
	s.authToken = strings.TrimSpace(token)
}

// SetJWTSecret configures the HS256 secret accepted as an alternative to the
// static bearer token.
func (s *Server) SetJWTSecret(secret []byte) {
	s.jwtSecret = append([]byte(nil), secret...)
}

// Start serves JSON-RPC on addr until the listener fails.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")
	correlationID := uuid.NewString()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.route(recorder, r, req)

	duration := s.now().Sub(started)
	observability.LedgerMetrics().Observe(req.Method, recorder.status, duration)
	s.logger.Info("rpc request",
		"method", req.Method,
		"status", recorder.status,
		"durationMs", duration.Milliseconds(),
		"correlationId", correlationID,
		"source", clientSource(r),
	)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "ledger_deposit":
		s.mutating(w, r, req, s.handleDeposit)
	case "ledger_mint":
		s.mutating(w, r, req, s.handleMint)
	case "ledger_depositAndMint":
		s.mutating(w, r, req, s.handleDepositAndMint)
	case "ledger_redeem":
		s.mutating(w, r, req, s.handleRedeem)
	case "ledger_burn":
		s.mutating(w, r, req, s.handleBurn)
	case "ledger_approve":
		s.mutating(w, r, req, s.handleApprove)
	case "ledger_redeemForBurn":
		s.mutating(w, r, req, s.handleRedeemForBurn)
	case "ledger_liquidate":
		s.mutating(w, r, req, s.handleLiquidate)
	case "ledger_stake":
		s.mutating(w, r, req, s.handleStake)
	case "ledger_claim":
		s.mutating(w, r, req, s.handleClaim)
	case "ledger_unstake":
		s.mutating(w, r, req, s.handleUnstake)
	case "ledger_submitRound":
		s.mutating(w, r, req, s.handleSubmitRound)
	case "ledger_updateParams":
		s.mutating(w, r, req, s.handleUpdateParams)
	case "ledger_getAccount":
		s.handleGetAccount(w, r, req)
	case "ledger_healthFactor":
		s.handleHealthFactor(w, r, req)
	case "ledger_getStakes":
		s.handleGetStakes(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) mutating(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	if !s.allowSource(clientSource(r), s.now()) {
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return
	}
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" && len(s.jwtSecret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if s.authToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1 {
		return nil
	}
	if len(s.jwtSecret) > 0 && s.validJWT(token) {
		return nil
	}
	return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
}

func (s *Server) validJWT(raw string) bool {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && parsed.Valid
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.rateLimiters[source]
	if !ok {
		limiter = &rateLimiter{windowStart: now}
		s.rateLimiters[source] = limiter
	}
	if now.Sub(limiter.windowStart) >= rateLimitWindow {
		limiter.windowStart = now
		limiter.count = 0
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

func (s *Server) now() time.Time {
	if s.nowFn == nil {
		return time.Now()
	}
	return s.nowFn()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
