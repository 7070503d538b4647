package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"xvfi/crypto"
	"xvfi/native/ledger"
)

// Config captures the daemon settings persisted in TOML form.
type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	NetworkName  string `toml:"NetworkName"`
	RPCAuthToken string `toml:"RPCAuthToken"`
	RPCJWTSecret string `toml:"RPCJWTSecret"`

	CollateralVault string   `toml:"CollateralVault"`
	StakingVault    string   `toml:"StakingVault"`
	AdminAddresses  []string `toml:"AdminAddresses"`

	MinimumDepositWei    string `toml:"MinimumDepositWei"`
	StakingRatePerSecond string `toml:"StakingRatePerSecond"`
	LockUpSeconds        uint64 `toml:"LockUpSeconds"`
	OracleMaxAgeSeconds  uint64 `toml:"OracleMaxAgeSeconds"`

	Genesis Genesis `toml:"Genesis"`
}

// Genesis lists the balances and lockable assets seeded into a fresh database
// the first time the daemon starts. Without it no account holds XV and no
// asset exists, so deposits and stakes could never begin.
type Genesis struct {
	Accounts []GenesisAccount `toml:"Accounts"`
	Assets   []GenesisAsset   `toml:"Assets"`
}

// GenesisAccount funds an address with an initial XV balance.
type GenesisAccount struct {
	Address      string `toml:"Address"`
	BalanceXVWei string `toml:"BalanceXVWei"`
}

// GenesisAsset mints a lockable asset to its initial owner.
type GenesisAsset struct {
	ID    uint64 `toml:"ID"`
	Owner string `toml:"Owner"`
}

// GenesisAllocation is a parsed genesis balance grant.
type GenesisAllocation struct {
	Address crypto.Address
	Balance *big.Int
}

// GenesisAssetGrant is a parsed genesis asset grant.
type GenesisAssetGrant struct {
	ID    uint64
	Owner crypto.Address
}

// Load reads the configuration from the given path, creating a populated
// default file on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded settings for the fields the daemon cannot run
// without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if strings.TrimSpace(c.RPCAuthToken) == "" && strings.TrimSpace(c.RPCJWTSecret) == "" {
		return fmt.Errorf("config: one of RPCAuthToken or RPCJWTSecret must be set")
	}
	if _, err := crypto.DecodeAddress(c.CollateralVault); err != nil {
		return fmt.Errorf("config: invalid CollateralVault: %w", err)
	}
	if _, err := crypto.DecodeAddress(c.StakingVault); err != nil {
		return fmt.Errorf("config: invalid StakingVault: %w", err)
	}
	for _, admin := range c.AdminAddresses {
		if _, err := crypto.DecodeAddress(admin); err != nil {
			return fmt.Errorf("config: invalid admin address %q: %w", admin, err)
		}
	}
	if _, err := parseWei("MinimumDepositWei", c.MinimumDepositWei); err != nil {
		return err
	}
	if _, err := parseWei("StakingRatePerSecond", c.StakingRatePerSecond); err != nil {
		return err
	}
	for _, account := range c.Genesis.Accounts {
		if _, err := crypto.DecodeAddress(account.Address); err != nil {
			return fmt.Errorf("config: invalid genesis account %q: %w", account.Address, err)
		}
		if _, err := parseWei("Genesis BalanceXVWei", account.BalanceXVWei); err != nil {
			return err
		}
	}
	seen := make(map[uint64]bool, len(c.Genesis.Assets))
	for _, asset := range c.Genesis.Assets {
		if _, err := crypto.DecodeAddress(asset.Owner); err != nil {
			return fmt.Errorf("config: invalid genesis asset owner %q: %w", asset.Owner, err)
		}
		if seen[asset.ID] {
			return fmt.Errorf("config: duplicate genesis asset id %d", asset.ID)
		}
		seen[asset.ID] = true
	}
	return nil
}

// GenesisState parses the genesis sections into allocations the daemon applies
// on first start.
func (c *Config) GenesisState() ([]GenesisAllocation, []GenesisAssetGrant, error) {
	allocations := make([]GenesisAllocation, 0, len(c.Genesis.Accounts))
	for _, account := range c.Genesis.Accounts {
		addr, err := crypto.DecodeAddress(account.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("config: invalid genesis account %q: %w", account.Address, err)
		}
		balance, err := parseWei("Genesis BalanceXVWei", account.BalanceXVWei)
		if err != nil {
			return nil, nil, err
		}
		allocations = append(allocations, GenesisAllocation{Address: addr, Balance: balance})
	}
	grants := make([]GenesisAssetGrant, 0, len(c.Genesis.Assets))
	for _, asset := range c.Genesis.Assets {
		owner, err := crypto.DecodeAddress(asset.Owner)
		if err != nil {
			return nil, nil, fmt.Errorf("config: invalid genesis asset owner %q: %w", asset.Owner, err)
		}
		grants = append(grants, GenesisAssetGrant{ID: asset.ID, Owner: owner})
	}
	return allocations, grants, nil
}

// LedgerParams converts the TOML fields into the runtime parameter set used by
// the ledger engine.
func (c *Config) LedgerParams() (ledger.Params, error) {
	minDeposit, err := parseWei("MinimumDepositWei", c.MinimumDepositWei)
	if err != nil {
		return ledger.Params{}, err
	}
	rate, err := parseWei("StakingRatePerSecond", c.StakingRatePerSecond)
	if err != nil {
		return ledger.Params{}, err
	}
	return ledger.Params{
		MinimumDeposit:       minDeposit,
		StakingRatePerSecond: rate,
		LockUpPeriodSeconds:  c.LockUpSeconds,
	}, nil
}

// AdminRoles builds the static role policy granting ROLE_ADMIN to the
// configured admin addresses.
func (c *Config) AdminRoles() (ledger.StaticRoles, error) {
	admins := make([]crypto.Address, 0, len(c.AdminAddresses))
	for _, raw := range c.AdminAddresses {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("config: invalid admin address %q: %w", raw, err)
		}
		admins = append(admins, addr)
	}
	return ledger.StaticRoles{ledger.RoleAdmin: admins}, nil
}

// VaultAddresses decodes the configured module custody addresses.
func (c *Config) VaultAddresses() (collateral, staking crypto.Address, err error) {
	collateral, err = crypto.DecodeAddress(c.CollateralVault)
	if err != nil {
		return crypto.Address{}, crypto.Address{}, fmt.Errorf("config: invalid CollateralVault: %w", err)
	}
	staking, err = crypto.DecodeAddress(c.StakingVault)
	if err != nil {
		return crypto.Address{}, crypto.Address{}, fmt.Errorf("config: invalid StakingVault: %w", err)
	}
	return collateral, staking, nil
}

// createDefault creates and saves a default configuration file. Module vault
// addresses are derived from fresh keys so every network starts with distinct
// custody accounts, and a funded dev account with one lockable asset is seeded
// so a fresh node can deposit and stake right away.
func createDefault(path string) (*Config, error) {
	collateralKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	stakingKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	devKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	collateralVault := crypto.MustNewAddress(crypto.ModulePrefix, collateralKey.PubKey().Address().Bytes())
	stakingVault := crypto.MustNewAddress(crypto.ModulePrefix, stakingKey.PubKey().Address().Bytes())
	devAccount := devKey.PubKey().Address()

	cfg := &Config{
		RPCAddress:   ":8545",
		DataDir:      "./xvfi-data",
		NetworkName:  "xvfi-local",
		RPCAuthToken: uuid.NewString(),

		CollateralVault: collateralVault.String(),
		StakingVault:    stakingVault.String(),
		AdminAddresses:  []string{devAccount.String()},

		MinimumDepositWei:    "1000000000000000",
		StakingRatePerSecond: "317097919",
		LockUpSeconds:        604800,
		OracleMaxAgeSeconds:  10800,

		Genesis: Genesis{
			Accounts: []GenesisAccount{
				{Address: devAccount.String(), BalanceXVWei: "1000000000000000000000"},
			},
			Assets: []GenesisAsset{
				{ID: 1, Owner: devAccount.String()},
			},
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func parseWei(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("config: %s must be a non-negative decimal integer, got %q", field, raw)
	}
	return value, nil
}
