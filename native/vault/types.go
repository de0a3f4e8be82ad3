package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Market captures the global accounting state of the vault. Amounts are
// denominated in the borrowed asset and expressed as big integers; exchange
// rates and fractions are Q64 fixed point.
type Market struct {
	// DebtSharesTotal is the sum of all loans' debt shares.
	DebtSharesTotal *big.Int
	// LendSharesTotal is the vault's own share supply across all lenders.
	LendSharesTotal *big.Int
	// DebtRateX64 converts debt shares to owed assets. Monotonically
	// non-decreasing; initialised to 1.0.
	DebtRateX64 *big.Int
	// LendRateX64 converts lend shares to withdrawable assets. Only ever
	// decreases through shortfall socialisation.
	LendRateX64 *big.Int
	// LastRateUpdate records the unix timestamp of the last accrual.
	LastRateUpdate uint64
	// DailyLend and DailyDebt are the same-day growth circuit breakers for
	// new lending inflow and new debt outflow respectively.
	DailyLend DailyGate
	DailyDebt DailyGate
}

// Clone returns a deep copy of the market state.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := &Market{LastRateUpdate: m.LastRateUpdate}
	clone.DebtSharesTotal = cloneBig(m.DebtSharesTotal)
	clone.LendSharesTotal = cloneBig(m.LendSharesTotal)
	clone.DebtRateX64 = cloneBig(m.DebtRateX64)
	clone.LendRateX64 = cloneBig(m.LendRateX64)
	clone.DailyLend = m.DailyLend.Clone()
	clone.DailyDebt = m.DailyDebt.Clone()
	return clone
}

// Loan records one pledged collateral position and its claim on the global
// debt pool.
type Loan struct {
	// PositionID identifies the pledged liquidity position held in custody
	// by the vault.
	PositionID uint64
	// Owner is the address entitled to borrow against, repay and reclaim
	// this position.
	Owner common.Address
	// DebtShares is this loan's claim on the global debt pool.
	DebtShares *big.Int
	// CollateralFactorX64 is frozen at loan creation as the minimum of the
	// two collateral tokens' configured factors.
	CollateralFactorX64 *big.Int
	// Token0 and Token1 are the position's pair tokens, recorded for the
	// collateral ledger's per-token exposure accounting.
	Token0 common.Address
	Token1 common.Address
}

// Clone returns a deep copy of the loan record.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := &Loan{
		PositionID: l.PositionID,
		Owner:      l.Owner,
		Token0:     l.Token0,
		Token1:     l.Token1,
	}
	clone.DebtShares = cloneBig(l.DebtShares)
	clone.CollateralFactorX64 = cloneBig(l.CollateralFactorX64)
	return clone
}

// TokenConfig holds the risk settings and running exposure aggregate for one
// collateral-eligible token.
type TokenConfig struct {
	Token common.Address
	// CollateralFactorX64 is the fraction of this token's oracle value
	// usable as collateral. Capped by MaxCollateralFactorX64.
	CollateralFactorX64 *big.Int
	// CollateralValueLimitFactorX64 bounds the aggregate debt attributable
	// to positions using this token, relative to the total lent value. A
	// nil factor means unbounded.
	CollateralValueLimitFactorX64 *big.Int
	// TotalDebtShares aggregates the debt shares of all loans whose
	// positions include this token.
	TotalDebtShares *big.Int
}

// Clone returns a deep copy of the token configuration.
func (c *TokenConfig) Clone() *TokenConfig {
	if c == nil {
		return nil
	}
	clone := &TokenConfig{Token: c.Token}
	clone.CollateralFactorX64 = cloneBig(c.CollateralFactorX64)
	if c.CollateralValueLimitFactorX64 != nil {
		clone.CollateralValueLimitFactorX64 = new(big.Int).Set(c.CollateralValueLimitFactorX64)
	}
	clone.TotalDebtShares = cloneBig(c.TotalDebtShares)
	return clone
}

// LenderAccount tracks one lender's share balance.
type LenderAccount struct {
	Address common.Address
	Shares  *big.Int
}

// Clone returns a deep copy of the lender account.
func (a *LenderAccount) Clone() *LenderAccount {
	if a == nil {
		return nil
	}
	return &LenderAccount{Address: a.Address, Shares: cloneBig(a.Shares)}
}

// Account is a plain balance record for the single borrowed asset. The vault
// module address holds the pool's on-hand cash in one of these.
type Account struct {
	Balance *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{Balance: cloneBig(a.Balance)}
}

// RiskParameters groups the administratively controlled safety limits
// governing vault activity. Fractions are Q64.
type RiskParameters struct {
	// MaxCollateralFactorX64 caps per-token collateral factors.
	MaxCollateralFactorX64 *big.Int
	// MinLiquidationPenaltyX64 and MaxLiquidationPenaltyX64 bound the
	// penalty schedule applied during liquidation.
	MinLiquidationPenaltyX64 *big.Int
	MaxLiquidationPenaltyX64 *big.Int
	// ReserveFactorX64 is the fraction of interest spread retained as
	// protocol reserve.
	ReserveFactorX64 *big.Int
	// ReserveProtectionFactorX64 is the fraction of the total lent value
	// that must remain as reserve before owner withdrawal is permitted.
	ReserveProtectionFactorX64 *big.Int
	// MaxDailyIncreaseX64 is the fraction by which the daily gates allow
	// the pool to grow in a single calendar day.
	MaxDailyIncreaseX64 *big.Int
	// GlobalLendLimit and GlobalDebtLimit are static ceilings on the pool.
	GlobalLendLimit *big.Int
	GlobalDebtLimit *big.Int
	// MinLoanSize is the smallest debt a loan may carry without being
	// fully closed.
	MinLoanSize *big.Int
}

// Clone returns a deep copy of the risk parameters.
func (p RiskParameters) Clone() RiskParameters {
	clone := RiskParameters{}
	clone.MaxCollateralFactorX64 = cloneBig(p.MaxCollateralFactorX64)
	clone.MinLiquidationPenaltyX64 = cloneBig(p.MinLiquidationPenaltyX64)
	clone.MaxLiquidationPenaltyX64 = cloneBig(p.MaxLiquidationPenaltyX64)
	clone.ReserveFactorX64 = cloneBig(p.ReserveFactorX64)
	clone.ReserveProtectionFactorX64 = cloneBig(p.ReserveProtectionFactorX64)
	clone.MaxDailyIncreaseX64 = cloneBig(p.MaxDailyIncreaseX64)
	clone.GlobalLendLimit = cloneBig(p.GlobalLendLimit)
	clone.GlobalDebtLimit = cloneBig(p.GlobalDebtLimit)
	clone.MinLoanSize = cloneBig(p.MinLoanSize)
	return clone
}

// PositionBreakdown decomposes a pledged position into pair tokens, amounts
// and uncollected fees as reported by the external position manager.
type PositionBreakdown struct {
	Token0    common.Address
	Token1    common.Address
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
	Fees0     *big.Int
	Fees1     *big.Int
}

// PositionValue is the oracle's appraisal of a pledged position denominated
// in the borrowed asset.
type PositionValue struct {
	// Full is the total position value including uncollected fees.
	Full *big.Int
	// Fees is the value of the uncollected fee component.
	Fees *big.Int
	// Price0X64 and Price1X64 are the pair token prices used, in borrowed
	// asset per token, Q64.
	Price0X64 *big.Int
	Price1X64 *big.Int
}

// PriceOracle appraises pledged positions in the borrowed asset. It must
// return an error on misconfiguration or stale/invalid prices rather than a
// misleading value.
type PriceOracle interface {
	Value(positionID uint64) (PositionValue, error)
}

// PositionManager is the external custodian of the collateral positions. The
// vault relies on it for ownership transfer, composition breakdown and
// partial value extraction (fees first, then liquidity).
type PositionManager interface {
	OwnerOf(positionID uint64) (common.Address, error)
	Transfer(positionID uint64, from, to common.Address) error
	Breakdown(positionID uint64) (PositionBreakdown, error)
	WithdrawValue(positionID uint64, value *big.Int, recipient common.Address) error
}

// RateModel is the external interest rate curve. Rates are per second, Q64.
type RateModel interface {
	RatesPerSecondX64(availableCash, totalDebt *big.Int) (borrowRateX64, supplyRateX64 *big.Int)
}
