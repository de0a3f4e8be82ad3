package vault

import "math/big"

// accrue brings both exchange rates current and emits a rate-update event
// when anything changed. Idempotent within the same timestamp. The caller is
// responsible for persisting the market.
func (e *Engine) accrue(m *Market) error {
	before := cloneBig(m.DebtRateX64)
	if err := e.accrueRates(m); err != nil {
		return err
	}
	if m.DebtRateX64.Cmp(before) != 0 {
		e.emit(RatesUpdated{
			DebtRateX64: cloneBig(m.DebtRateX64),
			LendRateX64: cloneBig(m.LendRateX64),
			Timestamp:   m.LastRateUpdate,
		})
	}
	return nil
}

// accrueRates recomputes the debt and lend exchange rates from elapsed time
// and the rate model. Both ratios are non-decreasing here; only shortfall
// socialisation may cut the lend rate, elsewhere.
func (e *Engine) accrueRates(m *Market) error {
	now := e.now()
	if m.LastRateUpdate == 0 {
		m.LastRateUpdate = now
		return nil
	}
	if now <= m.LastRateUpdate {
		return nil
	}
	elapsed := now - m.LastRateUpdate
	m.LastRateUpdate = now

	if e.rateModel == nil || m.DebtSharesTotal.Sign() == 0 {
		return nil
	}

	oldDebt := e.totalDebt(m)
	available, _ := e.reserveBalances(m)
	borrowRateX64, _ := e.rateModel.RatesPerSecondX64(available, oldDebt)
	if borrowRateX64 == nil || borrowRateX64.Sign() == 0 {
		return nil
	}

	// newRate = oldRate * (1 + elapsed * borrowRate), never decreasing.
	growth := new(big.Int).Mul(borrowRateX64, new(big.Int).SetUint64(elapsed))
	m.DebtRateX64 = new(big.Int).Add(m.DebtRateX64, mulX64(m.DebtRateX64, growth, roundDown))

	newDebt := e.totalDebt(m)
	debtGrowth := new(big.Int).Sub(newDebt, oldDebt)
	if debtGrowth.Sign() <= 0 {
		return nil
	}

	// Lenders receive the growth net of the reserve factor, distributed
	// proportionally over their shares. Nothing to distribute when nothing
	// is lent.
	lendGrowth := mulX64(debtGrowth, oneMinusX64(e.params.ReserveFactorX64), roundDown)
	if lendGrowth.Sign() > 0 && m.LendSharesTotal.Sign() > 0 {
		perShare := mulDiv(lendGrowth, q64, m.LendSharesTotal, roundDown)
		m.LendRateX64 = new(big.Int).Add(m.LendRateX64, perShare)
	}
	return nil
}
