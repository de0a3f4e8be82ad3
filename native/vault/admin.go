package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (e *Engine) requireAdmin(caller common.Address) error {
	if caller != e.admin {
		return ErrUnauthorized
	}
	return nil
}

func validFractionX64(f *big.Int, capX64 *big.Int) bool {
	if f == nil || f.Sign() < 0 {
		return false
	}
	if capX64 != nil && f.Cmp(capX64) > 0 {
		return false
	}
	return f.Cmp(q64) <= 0
}

// SetTokenConfig configures one collateral-eligible token. The collateral
// factor must not exceed the protocol-wide maximum; invalid combinations are
// rejected, never clamped. A nil limit factor means unbounded exposure.
func (e *Engine) SetTokenConfig(caller common.Address, token common.Address, collateralFactorX64, collateralValueLimitFactorX64 *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !validFractionX64(collateralFactorX64, e.params.MaxCollateralFactorX64) {
		return ErrInvalidConfig
	}
	if collateralValueLimitFactorX64 != nil && collateralValueLimitFactorX64.Sign() < 0 {
		return ErrInvalidConfig
	}
	cfg, err := e.state.GetTokenConfig(token)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &TokenConfig{Token: token, TotalDebtShares: big.NewInt(0)}
	}
	cfg.CollateralFactorX64 = cloneBig(collateralFactorX64)
	if collateralValueLimitFactorX64 == nil {
		cfg.CollateralValueLimitFactorX64 = nil
	} else {
		cfg.CollateralValueLimitFactorX64 = new(big.Int).Set(collateralValueLimitFactorX64)
	}
	return e.state.PutTokenConfig(cfg)
}

// SetGlobalLimits updates the static pool ceilings and the minimum loan size.
func (e *Engine) SetGlobalLimits(caller common.Address, lendLimit, debtLimit, minLoanSize *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if lendLimit == nil || debtLimit == nil || minLoanSize == nil ||
		lendLimit.Sign() < 0 || debtLimit.Sign() < 0 || minLoanSize.Sign() < 0 {
		return ErrInvalidConfig
	}
	e.params.GlobalLendLimit = cloneBig(lendLimit)
	e.params.GlobalDebtLimit = cloneBig(debtLimit)
	e.params.MinLoanSize = cloneBig(minLoanSize)
	return nil
}

// SetDailyLimits updates the daily gates' minimum allowances. A forced reset
// recomputes both allowances immediately instead of waiting for the next
// calendar day.
func (e *Engine) SetDailyLimits(caller common.Address, lendMin, debtMin *big.Int, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if lendMin == nil || debtMin == nil || lendMin.Sign() < 0 || debtMin.Sign() < 0 {
		return ErrInvalidConfig
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.accrue(market); err != nil {
		return err
	}
	market.DailyLend.LimitMin = cloneBig(lendMin)
	market.DailyDebt.LimitMin = cloneBig(debtMin)
	if force {
		market.DailyLend.reset(e.now(), e.totalLent(market), e.params.MaxDailyIncreaseX64, true)
		market.DailyDebt.reset(e.now(), e.totalDebt(market), e.params.MaxDailyIncreaseX64, true)
	}
	return e.state.PutMarket(market)
}

// SetReserveFactor updates the fraction of interest spread retained as
// protocol reserve.
func (e *Engine) SetReserveFactor(caller common.Address, factorX64 *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !validFractionX64(factorX64, nil) {
		return ErrInvalidConfig
	}
	e.params.ReserveFactorX64 = cloneBig(factorX64)
	return nil
}

// SetReserveProtectionFactor updates the lender-protection buffer fraction.
func (e *Engine) SetReserveProtectionFactor(caller common.Address, factorX64 *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !validFractionX64(factorX64, nil) {
		return ErrInvalidConfig
	}
	e.params.ReserveProtectionFactorX64 = cloneBig(factorX64)
	return nil
}

// RegisterTransformer adds an agent to the transform allow-list.
func (e *Engine) RegisterTransformer(caller common.Address, transformer Transformer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if transformer == nil {
		return ErrInvalidConfig
	}
	e.transformers[transformer.Address()] = transformer
	return nil
}

// RemoveTransformer drops an agent from the transform allow-list.
func (e *Engine) RemoveTransformer(caller common.Address, agent common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	delete(e.transformers, agent)
	return nil
}

// ApproveTransformOperator lets a loan owner delegate transform initiation
// for one loan to another address.
func (e *Engine) ApproveTransformOperator(caller common.Address, positionID uint64, operator common.Address, approved bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e == nil || e.state == nil {
		return ErrNilState
	}
	loan, err := e.ensureLoan(positionID)
	if err != nil {
		return err
	}
	if caller != loan.Owner {
		return ErrUnauthorized
	}
	if approved {
		if e.approvals[positionID] == nil {
			e.approvals[positionID] = make(map[common.Address]bool)
		}
		e.approvals[positionID][operator] = true
		return nil
	}
	delete(e.approvals[positionID], operator)
	return nil
}

// Admin returns the configured administrator address.
func (e *Engine) Admin() common.Address { return e.admin }

// Params returns a copy of the current risk parameters.
func (e *Engine) Params() RiskParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.Clone()
}
