package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidationQuote is the computed outcome of liquidating one unhealthy loan.
type LiquidationQuote struct {
	// Debt is the loan's full debt at freshly accrued rates.
	Debt *big.Int
	// PenaltyX64 is the applied penalty fraction.
	PenaltyX64 *big.Int
	// LiquidationValue is the position value transferred to the liquidator.
	LiquidationValue *big.Int
	// LiquidatorCost is what the liquidator pays the pool.
	LiquidatorCost *big.Int
	// ReserveCost is the shortfall drawn from reserves and, beyond them,
	// socialised across lenders.
	ReserveCost *big.Int
}

// quoteLiquidation computes the penalty schedule of one liquidation.
//
// While the position retains at least debt*(1+maxPenalty) of value, the
// penalty interpolates linearly from the minimum (at the health threshold) to
// the maximum (at that retention floor) and the liquidator pays the full
// debt. Below the floor the liquidator takes the whole position at a
// maxPenalty discount and the remainder of the debt becomes a reserve cost.
// The boundary case uses the interpolated branch; both branches agree there.
func quoteLiquidation(debt, fullValue, collateralValue, minPenaltyX64, maxPenaltyX64 *big.Int) LiquidationQuote {
	quote := LiquidationQuote{
		Debt:        cloneBig(debt),
		ReserveCost: big.NewInt(0),
	}
	maxPenaltyValue := mulX64(debt, onePlusX64(maxPenaltyX64), roundDown)

	if fullValue.Cmp(maxPenaltyValue) >= 0 {
		// startLiquidationValue is the position value at which the loan
		// first crossed the health threshold.
		start := mulDiv(debt, fullValue, collateralValue, roundDown)
		penalty := cloneBig(maxPenaltyX64)
		if start.Cmp(maxPenaltyValue) > 0 {
			span := new(big.Int).Sub(maxPenaltyX64, minPenaltyX64)
			remaining := new(big.Int).Sub(fullValue, maxPenaltyValue)
			window := new(big.Int).Sub(start, maxPenaltyValue)
			rebate := mulDiv(span, minBig(remaining, window), window, roundDown)
			penalty = new(big.Int).Sub(penalty, rebate)
		}
		quote.PenaltyX64 = penalty
		quote.LiquidationValue = mulX64(debt, onePlusX64(penalty), roundDown)
		quote.LiquidatorCost = cloneBig(debt)
		return quote
	}

	quote.PenaltyX64 = cloneBig(maxPenaltyX64)
	quote.LiquidationValue = cloneBig(fullValue)
	quote.LiquidatorCost = mulX64(fullValue, oneMinusX64(maxPenaltyX64), roundDown)
	quote.ReserveCost = new(big.Int).Sub(debt, quote.LiquidatorCost)
	return quote
}

// Liquidate settles an unhealthy loan: the liquidator repays its cost, takes
// the computed slice of the position's value, and the loan is closed. Any
// shortfall is drawn from reserves and, beyond them, socialised by cutting
// the lend exchange rate uniformly across lenders.
func (e *Engine) Liquidate(liquidator common.Address, positionID uint64) (LiquidationQuote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var quote LiquidationQuote
	if err := e.guard(); err != nil {
		return quote, err
	}
	if e.transformedID != 0 {
		return quote, ErrTransformActive
	}
	if e.positions == nil {
		return quote, ErrNilCollaborator
	}

	// All state writes buffer in an overlay and commit after the custodian
	// releases the collateral, so a failed seizure unwinds the liquidator's
	// payment and leaves the loan intact.
	base := e.state
	overlay := newOverlayState(base)
	e.state = overlay
	defer func() { e.state = base }()

	market, err := e.ensureMarket()
	if err != nil {
		return quote, err
	}
	if err := e.accrue(market); err != nil {
		return quote, err
	}
	loan, err := e.ensureLoan(positionID)
	if err != nil {
		return quote, err
	}
	if loan.DebtShares.Sign() == 0 {
		return quote, ErrNoDebt
	}

	debt := sharesToAssets(loan.DebtShares, market.DebtRateX64, roundUp)
	healthy, value, collateralValue, err := e.checkHealthy(loan, debt)
	if err != nil {
		return quote, err
	}
	if healthy {
		return quote, ErrNotLiquidatable
	}

	quote = quoteLiquidation(debt, value.Full, collateralValue,
		e.params.MinLiquidationPenaltyX64, e.params.MaxLiquidationPenaltyX64)

	missing := big.NewInt(0)
	if quote.ReserveCost.Sign() > 0 {
		_, reserves := e.reserveBalances(market)
		missing = clampZero(new(big.Int).Sub(quote.ReserveCost, reserves))
	}

	if err := e.transferAsset(liquidator, e.moduleAddress, quote.LiquidatorCost); err != nil {
		return LiquidationQuote{}, err
	}

	if err := e.updateCollateralExposure(market, loan, loan.DebtShares, big.NewInt(0)); err != nil {
		return LiquidationQuote{}, err
	}
	market.DebtSharesTotal = new(big.Int).Sub(market.DebtSharesTotal, loan.DebtShares)

	if missing.Sign() > 0 {
		e.socialiseShortfall(market, missing)
	}

	if err := e.state.DeleteLoan(positionID); err != nil {
		return LiquidationQuote{}, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return LiquidationQuote{}, err
	}

	// Custodian calls are the steps the overlay cannot unwind; they run
	// last so a failure discards everything buffered above. The seizure
	// goes first since it is the call that can reject the value.
	if quote.LiquidationValue.Sign() > 0 {
		if err := e.positions.WithdrawValue(positionID, quote.LiquidationValue, liquidator); err != nil {
			return LiquidationQuote{}, err
		}
	}
	if err := e.positions.Transfer(positionID, e.moduleAddress, loan.Owner); err != nil {
		return LiquidationQuote{}, err
	}
	if err := overlay.Commit(); err != nil {
		return LiquidationQuote{}, err
	}
	delete(e.approvals, positionID)
	e.emit(Liquidated{
		PositionID:       positionID,
		Liquidator:       liquidator,
		LiquidatorCost:   cloneBig(quote.LiquidatorCost),
		LiquidationValue: cloneBig(quote.LiquidationValue),
		ReserveCost:      cloneBig(quote.ReserveCost),
		Missing:          cloneBig(missing),
	})
	return quote, nil
}

// socialiseShortfall absorbs an uncovered liquidation loss by reducing every
// lender's share value proportionally.
func (e *Engine) socialiseShortfall(m *Market, missing *big.Int) {
	totalLent := e.totalLent(m)
	if totalLent.Sign() == 0 || missing.Sign() == 0 {
		return
	}
	remaining := clampZero(new(big.Int).Sub(totalLent, missing))
	m.LendRateX64 = mulDiv(remaining, m.LendRateX64, totalLent, roundDown)
}
