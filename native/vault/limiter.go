package vault

import "math/big"

const secondsPerDay = 86_400

// DailyGate is one leaky-bucket circuit breaker bounding single-day growth.
// It slows large same-day moves, it is not a hard cap on total size.
type DailyGate struct {
	// LimitMin is the floor applied when the allowance is recomputed.
	LimitMin *big.Int
	// Left is the remaining same-day capacity.
	Left *big.Int
	// LastResetDay is the calendar day (unix time / 86400) of the last
	// allowance recomputation.
	LastResetDay uint64
}

// Clone returns a deep copy of the gate.
func (g DailyGate) Clone() DailyGate {
	return DailyGate{
		LimitMin:     cloneBig(g.LimitMin),
		Left:         cloneBig(g.Left),
		LastResetDay: g.LastResetDay,
	}
}

func (g *DailyGate) ensure() {
	if g.LimitMin == nil {
		g.LimitMin = big.NewInt(0)
	}
	if g.Left == nil {
		g.Left = big.NewInt(0)
	}
}

// reset recomputes the allowance on the first touch of a new calendar day, or
// unconditionally when forced by an administrative limit change. The new
// allowance is max(LimitMin, total * (1 + maxIncreaseX64)).
func (g *DailyGate) reset(now uint64, total, maxIncreaseX64 *big.Int, force bool) {
	g.ensure()
	day := now / secondsPerDay
	if !force && day <= g.LastResetDay {
		return
	}
	grown := mulX64(total, onePlusX64(maxIncreaseX64), roundDown)
	g.Left = cloneBig(maxBig(g.LimitMin, grown))
	g.LastResetDay = day
}

// consume spends same-day capacity, failing when the amount exceeds what is
// left.
func (g *DailyGate) consume(amount *big.Int) error {
	g.ensure()
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if amount.Cmp(g.Left) > 0 {
		return ErrDailyLimitExceeded
	}
	g.Left = new(big.Int).Sub(g.Left, amount)
	return nil
}

// restore returns capacity when growth is undone; shrinking the pool must not
// count against the same-day ceiling again.
func (g *DailyGate) restore(amount *big.Int) {
	g.ensure()
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	g.Left = new(big.Int).Add(g.Left, amount)
}
