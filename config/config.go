package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"lendvault/native/vault"
)

// Config is the vaultd daemon configuration. Fractions are expressed in
// basis points and converted to Q64 at the boundary.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`
	ModuleAddress  string `toml:"ModuleAddress"`
	AdminAddress   string `toml:"AdminAddress"`
	BaseToken      string `toml:"BaseToken"`
	InMemoryState  bool   `toml:"InMemoryState"`
	DevPositions   bool   `toml:"DevPositions"`
	RequestsPerMin float64 `toml:"RequestsPerMinute"`
	RequestBurst   int     `toml:"RequestBurst"`

	Risk   RiskConfig   `toml:"risk"`
	Rates  RateConfig   `toml:"rates"`
	Oracle OracleConfig `toml:"oracle"`
}

// RiskConfig mirrors vault.RiskParameters in configuration units.
type RiskConfig struct {
	MaxCollateralFactorBps     uint64 `toml:"MaxCollateralFactorBps"`
	MinLiquidationPenaltyBps   uint64 `toml:"MinLiquidationPenaltyBps"`
	MaxLiquidationPenaltyBps   uint64 `toml:"MaxLiquidationPenaltyBps"`
	ReserveFactorBps           uint64 `toml:"ReserveFactorBps"`
	ReserveProtectionFactorBps uint64 `toml:"ReserveProtectionFactorBps"`
	MaxDailyIncreaseBps        uint64 `toml:"MaxDailyIncreaseBps"`
	GlobalLendLimit            int64  `toml:"GlobalLendLimit"`
	GlobalDebtLimit            int64  `toml:"GlobalDebtLimit"`
	MinLoanSize                int64  `toml:"MinLoanSize"`
	DailyLendMin               int64  `toml:"DailyLendMin"`
	DailyDebtMin               int64  `toml:"DailyDebtMin"`
}

// RateConfig parameterises the kinked interest curve in yearly basis points.
type RateConfig struct {
	BaseYearlyBps       uint64 `toml:"BaseYearlyBps"`
	MultiplierYearlyBps uint64 `toml:"MultiplierYearlyBps"`
	JumpYearlyBps       uint64 `toml:"JumpYearlyBps"`
	KinkBps             uint64 `toml:"KinkBps"`
}

// OracleConfig bounds price feed freshness and volatility.
type OracleConfig struct {
	MaxQuoteAgeSeconds uint64 `toml:"MaxQuoteAgeSeconds"`
	MaxDeviationBps    uint64 `toml:"MaxDeviationBps"`
}

// Default returns the development configuration vaultd starts with when no
// file is present.
func Default() *Config {
	return &Config{
		ListenAddress:  "127.0.0.1:8670",
		DataDir:        "./vaultd-data",
		Environment:    "dev",
		ModuleAddress:  "0x00000000000000000000000000000000766c7431",
		BaseToken:      "0x0000000000000000000000000000000000000001",
		InMemoryState:  true,
		DevPositions:   true,
		RequestsPerMin: 600,
		RequestBurst:   30,
		Risk: RiskConfig{
			MaxCollateralFactorBps:     9_000,
			MinLiquidationPenaltyBps:   200,
			MaxLiquidationPenaltyBps:   1_000,
			ReserveFactorBps:           1_000,
			ReserveProtectionFactorBps: 100,
			MaxDailyIncreaseBps:        1_000,
			DailyLendMin:               1_000_000,
			DailyDebtMin:               1_000_000,
		},
		Rates: RateConfig{
			MultiplierYearlyBps: 400,
			JumpYearlyBps:       6_000,
			KinkBps:             8_000,
		},
		Oracle: OracleConfig{
			MaxQuoteAgeSeconds: 300,
			MaxDeviationBps:    2_000,
		},
	}
}

// Load reads the configuration file, falling back to defaults when the path
// does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency before any component is wired.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if !c.InMemoryState && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required for persistent state")
	}
	for name, value := range map[string]string{
		"ModuleAddress": c.ModuleAddress,
		"BaseToken":     c.BaseToken,
	} {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("config: %s %q is not a valid address", name, value)
		}
	}
	if c.AdminAddress != "" && !common.IsHexAddress(c.AdminAddress) {
		return fmt.Errorf("config: AdminAddress %q is not a valid address", c.AdminAddress)
	}
	r := c.Risk
	for name, bps := range map[string]uint64{
		"MaxCollateralFactorBps":     r.MaxCollateralFactorBps,
		"MinLiquidationPenaltyBps":   r.MinLiquidationPenaltyBps,
		"MaxLiquidationPenaltyBps":   r.MaxLiquidationPenaltyBps,
		"ReserveFactorBps":           r.ReserveFactorBps,
		"ReserveProtectionFactorBps": r.ReserveProtectionFactorBps,
	} {
		if bps > 10_000 {
			return fmt.Errorf("config: %s %d exceeds 10000", name, bps)
		}
	}
	if r.MinLiquidationPenaltyBps > r.MaxLiquidationPenaltyBps {
		return fmt.Errorf("config: MinLiquidationPenaltyBps %d above MaxLiquidationPenaltyBps %d",
			r.MinLiquidationPenaltyBps, r.MaxLiquidationPenaltyBps)
	}
	if r.GlobalLendLimit < 0 || r.GlobalDebtLimit < 0 || r.MinLoanSize < 0 ||
		r.DailyLendMin < 0 || r.DailyDebtMin < 0 {
		return fmt.Errorf("config: limits must not be negative")
	}
	if c.Rates.KinkBps > 10_000 {
		return fmt.Errorf("config: KinkBps %d exceeds 10000", c.Rates.KinkBps)
	}
	return nil
}

// RiskParameters converts the configured limits into engine parameters.
func (c *Config) RiskParameters() vault.RiskParameters {
	r := c.Risk
	return vault.RiskParameters{
		MaxCollateralFactorX64:     vault.FractionFromBps(r.MaxCollateralFactorBps),
		MinLiquidationPenaltyX64:   vault.FractionFromBps(r.MinLiquidationPenaltyBps),
		MaxLiquidationPenaltyX64:   vault.FractionFromBps(r.MaxLiquidationPenaltyBps),
		ReserveFactorX64:           vault.FractionFromBps(r.ReserveFactorBps),
		ReserveProtectionFactorX64: vault.FractionFromBps(r.ReserveProtectionFactorBps),
		MaxDailyIncreaseX64:        vault.FractionFromBps(r.MaxDailyIncreaseBps),
		GlobalLendLimit:            big.NewInt(r.GlobalLendLimit),
		GlobalDebtLimit:            big.NewInt(r.GlobalDebtLimit),
		MinLoanSize:                big.NewInt(r.MinLoanSize),
	}
}

// RateModel builds the configured interest curve.
func (c *Config) RateModel() *vault.KinkedRateModel {
	return vault.NewKinkedRateModel(
		vault.FractionFromBps(c.Rates.BaseYearlyBps),
		vault.FractionFromBps(c.Rates.MultiplierYearlyBps),
		vault.FractionFromBps(c.Rates.JumpYearlyBps),
		vault.FractionFromBps(c.Rates.KinkBps),
	)
}

// Module returns the parsed module address.
func (c *Config) Module() common.Address { return common.HexToAddress(c.ModuleAddress) }

// Admin returns the parsed admin address, defaulting to the module address
// when unset.
func (c *Config) Admin() common.Address {
	if c.AdminAddress == "" {
		return c.Module()
	}
	return common.HexToAddress(c.AdminAddress)
}

// Base returns the parsed base token address.
func (c *Config) Base() common.Address { return common.HexToAddress(c.BaseToken) }
