package vault

import "math/big"

// adjustCollateralExposure moves a loan's debt-share attribution on both of
// its pair tokens from oldShares to newShares, returning the updated configs
// without persisting them. Callers write them back with putTokenConfigs only
// once the whole mutation is known to go through, so a later rejection leaves
// no exposure behind. Ceilings are enforced on the entry side only: a
// position may always shrink its footprint, so decreases never fail on the
// limit.
func (e *Engine) adjustCollateralExposure(m *Market, loan *Loan, oldShares, newShares *big.Int) (*TokenConfig, *TokenConfig, error) {
	cmp := newShares.Cmp(oldShares)
	if cmp == 0 {
		return nil, nil, nil
	}
	cfg0, err := e.state.GetTokenConfig(loan.Token0)
	if err != nil {
		return nil, nil, err
	}
	cfg1, err := e.state.GetTokenConfig(loan.Token1)
	if err != nil {
		return nil, nil, err
	}
	if cfg0 == nil || cfg1 == nil {
		return nil, nil, ErrTokenNotConfigured
	}

	delta := new(big.Int).Sub(newShares, oldShares)
	lent := e.totalLent(m)
	for _, cfg := range []*TokenConfig{cfg0, cfg1} {
		if cfg.TotalDebtShares == nil {
			cfg.TotalDebtShares = big.NewInt(0)
		}
		cfg.TotalDebtShares = clampZero(new(big.Int).Add(cfg.TotalDebtShares, delta))
		if cmp > 0 {
			if err := e.checkTokenExposure(m, cfg, lent); err != nil {
				return nil, nil, err
			}
		}
	}
	return cfg0, cfg1, nil
}

// putTokenConfigs persists an exposure adjustment. A nil pair is the no-op
// result of an unchanged share count.
func (e *Engine) putTokenConfigs(cfg0, cfg1 *TokenConfig) error {
	if cfg0 == nil || cfg1 == nil {
		return nil
	}
	if err := e.state.PutTokenConfig(cfg0); err != nil {
		return err
	}
	return e.state.PutTokenConfig(cfg1)
}

// updateCollateralExposure adjusts and persists in one step, for call sites
// whose writes are buffered or already past their last failure point.
func (e *Engine) updateCollateralExposure(m *Market, loan *Loan, oldShares, newShares *big.Int) error {
	cfg0, cfg1, err := e.adjustCollateralExposure(m, loan, oldShares, newShares)
	if err != nil {
		return err
	}
	return e.putTokenConfigs(cfg0, cfg1)
}

// checkTokenExposure verifies a token's aggregate debt value against its
// configured ceiling. A nil limit factor means unbounded.
func (e *Engine) checkTokenExposure(m *Market, cfg *TokenConfig, lent *big.Int) error {
	if cfg.CollateralValueLimitFactorX64 == nil {
		return nil
	}
	exposure := sharesToAssets(cfg.TotalDebtShares, m.DebtRateX64, roundUp)
	ceiling := mulX64(lent, cfg.CollateralValueLimitFactorX64, roundDown)
	if exposure.Cmp(ceiling) > 0 {
		return ErrCollateralValueLimit
	}
	return nil
}
