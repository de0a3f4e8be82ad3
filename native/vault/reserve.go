package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// reserveBalances derives the vault's available and reserved cash from the
// on-hand balance, total debt owed and total lent owed:
//
//	available = onHand - max(0, onHand + debtOwed - lentOwed)
//	reserves  = onHand - available
func (e *Engine) reserveBalances(m *Market) (available, reserves *big.Int) {
	onHand := big.NewInt(0)
	if acc, err := e.loadAccount(e.moduleAddress); err == nil {
		onHand = acc.Balance
	}
	debtOwed := e.totalDebt(m)
	lentOwed := e.totalLent(m)

	surplus := new(big.Int).Add(onHand, debtOwed)
	surplus.Sub(surplus, lentOwed)
	surplus = clampZero(surplus)

	available = clampZero(new(big.Int).Sub(onHand, surplus))
	reserves = new(big.Int).Sub(onHand, available)
	return available, reserves
}

// ReserveBalances reports the current available and reserved cash.
func (e *Engine) ReserveBalances() (available, reserves *big.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	market, err := e.previewMarket()
	if err != nil {
		return nil, nil, err
	}
	available, reserves = e.reserveBalances(market)
	return available, reserves, nil
}

// WithdrawReserves pays accrued reserves out to a recipient. The withdrawal
// is capped so a lender-protection buffer of lentOwed*reserveProtectionFactor
// always remains, and never exceeds available cash.
func (e *Engine) WithdrawReserves(caller, recipient common.Address, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return nil, err
	}
	if caller != e.admin {
		return nil, ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrue(market); err != nil {
		return nil, err
	}

	available, reserves := e.reserveBalances(market)
	protected := mulX64(e.totalLent(market), e.params.ReserveProtectionFactorX64, roundUp)
	withdrawable := clampZero(new(big.Int).Sub(reserves, protected))
	withdrawable = minBig(withdrawable, available)
	if amount.Cmp(withdrawable) > 0 {
		return nil, ErrInsufficientReserves
	}

	if err := e.transferAsset(e.moduleAddress, recipient, amount); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	return cloneBig(amount), nil
}
