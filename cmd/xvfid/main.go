package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"xvfi/config"
	"xvfi/core/events"
	"xvfi/core/state"
	"xvfi/core/types"
	"xvfi/native/ledger"
	"xvfi/native/registry"
	"xvfi/native/token"
	"xvfi/observability/logging"
	"xvfi/rpc"
	"xvfi/storage"
)

const envVar = "XVFI_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("xvfid", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	debtToken := token.NewLedger(manager)
	assetRegistry := registry.NewRegistry(manager)

	if err := applyGenesis(manager, assetRegistry, cfg, logger); err != nil {
		logger.Error("failed to apply genesis", slog.Any("error", err))
		os.Exit(1)
	}

	collateralVault, stakingVault, err := cfg.VaultAddresses()
	if err != nil {
		logger.Error("failed to decode vault addresses", slog.Any("error", err))
		os.Exit(1)
	}
	params, err := cfg.LedgerParams()
	if err != nil {
		logger.Error("failed to parse ledger params", slog.Any("error", err))
		os.Exit(1)
	}
	roles, err := cfg.AdminRoles()
	if err != nil {
		logger.Error("failed to parse admin roles", slog.Any("error", err))
		os.Exit(1)
	}

	feed := ledger.NewManualFeed()
	adapter := ledger.NewFeedAdapter(feed, time.Duration(cfg.OracleMaxAgeSeconds)*time.Second)

	engine := ledger.NewEngine(collateralVault, stakingVault, params)
	engine.SetState(manager)
	engine.SetToken(debtToken)
	engine.SetRegistry(assetRegistry)
	engine.SetFeed(adapter)
	engine.SetRoles(roles)
	engine.SetEmitter(&logEmitter{logger: logger})

	server := rpc.NewServer(engine, feed, logger)
	server.SetAuthToken(cfg.RPCAuthToken)
	if secret := strings.TrimSpace(cfg.RPCJWTSecret); secret != "" {
		server.SetJWTSecret([]byte(secret))
	}

	logger.Info("xvfid starting",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("collateralVault", collateralVault.String()),
		slog.String("stakingVault", stakingVault.String()),
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// applyGenesis seeds the configured balances and lockable assets exactly once
// per database, so deposits and stakes have funds to work with on a fresh node.
func applyGenesis(manager *state.Manager, assetRegistry *registry.Registry, cfg *config.Config, logger *slog.Logger) error {
	applied, err := manager.GenesisApplied()
	if err != nil || applied {
		return err
	}
	allocations, grants, err := cfg.GenesisState()
	if err != nil {
		return err
	}
	for _, allocation := range allocations {
		account, err := manager.GetAccount(allocation.Address)
		if err != nil {
			return err
		}
		account.BalanceXV = allocation.Balance
		if err := manager.PutAccount(allocation.Address, account); err != nil {
			return err
		}
	}
	for _, grant := range grants {
		if err := assetRegistry.MintAsset(grant.Owner, grant.ID); err != nil {
			return err
		}
	}
	if err := manager.SetGenesisApplied(); err != nil {
		return err
	}
	logger.Info("genesis applied",
		slog.Int("accounts", len(allocations)),
		slog.Int("assets", len(grants)),
	)
	return nil
}

// logEmitter forwards engine events to the structured logger.
type logEmitter struct {
	logger *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		l.logger.Info(evt.EventType())
		return
	}
	payload := carrier.Event()
	if payload == nil {
		l.logger.Info(evt.EventType())
		return
	}
	args := make([]any, 0, len(payload.Attributes)*2)
	for k, v := range payload.Attributes {
		args = append(args, slog.String(k, v))
	}
	l.logger.Info(payload.Type, args...)
}
