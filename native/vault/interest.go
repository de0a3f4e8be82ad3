package vault

import "math/big"

// KinkedRateModel implements the standard two-slope utilisation curve: the
// borrow rate rises along MultiplierX64 until utilisation crosses KinkX64,
// then along JumpMultiplierX64. All parameters are per-second Q64 rates.
type KinkedRateModel struct {
	BaseRateX64       *big.Int
	MultiplierX64     *big.Int
	JumpMultiplierX64 *big.Int
	KinkX64           *big.Int
}

// NewKinkedRateModel constructs a rate model from yearly Q64 rates, converting
// them to the per-second figures the accrual path consumes.
func NewKinkedRateModel(baseYearlyX64, multiplierYearlyX64, jumpYearlyX64, kinkX64 *big.Int) *KinkedRateModel {
	perSecond := func(yearly *big.Int) *big.Int {
		if yearly == nil {
			return big.NewInt(0)
		}
		return new(big.Int).Quo(yearly, big.NewInt(secondsPerYear))
	}
	return &KinkedRateModel{
		BaseRateX64:       perSecond(baseYearlyX64),
		MultiplierX64:     perSecond(multiplierYearlyX64),
		JumpMultiplierX64: perSecond(jumpYearlyX64),
		KinkX64:           cloneBig(kinkX64),
	}
}

const secondsPerYear = 31_536_000

// Clone returns a deep copy of the model.
func (m *KinkedRateModel) Clone() *KinkedRateModel {
	if m == nil {
		return nil
	}
	return &KinkedRateModel{
		BaseRateX64:       cloneBig(m.BaseRateX64),
		MultiplierX64:     cloneBig(m.MultiplierX64),
		JumpMultiplierX64: cloneBig(m.JumpMultiplierX64),
		KinkX64:           cloneBig(m.KinkX64),
	}
}

// UtilisationX64 computes debt / (cash + debt) in Q64. Zero when the pool is
// empty.
func (m *KinkedRateModel) UtilisationX64(availableCash, totalDebt *big.Int) *big.Int {
	if totalDebt == nil || totalDebt.Sign() == 0 {
		return big.NewInt(0)
	}
	total := new(big.Int).Add(clampZero(cloneBig(availableCash)), totalDebt)
	if total.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDiv(totalDebt, q64, total, roundDown)
}

// RatesPerSecondX64 derives the borrow and supply rates for the current pool
// balance. The supply rate is the borrow rate scaled by utilisation; the
// reserve factor haircut is applied by the accrual path, not here.
func (m *KinkedRateModel) RatesPerSecondX64(availableCash, totalDebt *big.Int) (*big.Int, *big.Int) {
	if m == nil {
		return big.NewInt(0), big.NewInt(0)
	}
	utilisation := m.UtilisationX64(availableCash, totalDebt)

	borrow := cloneBig(m.BaseRateX64)
	kink := cloneBig(m.KinkX64)
	if kink.Sign() == 0 || utilisation.Cmp(kink) <= 0 {
		borrow.Add(borrow, mulX64(m.MultiplierX64, utilisation, roundDown))
	} else {
		borrow.Add(borrow, mulX64(m.MultiplierX64, kink, roundDown))
		excess := new(big.Int).Sub(utilisation, kink)
		borrow.Add(borrow, mulX64(m.JumpMultiplierX64, excess, roundDown))
	}

	supply := mulX64(borrow, utilisation, roundDown)
	return borrow, supply
}

// DefaultRateModel is a modest kinked curve: 0% base, 4% yearly at full
// pre-kink utilisation, steep jump beyond an 80% kink.
var DefaultRateModel = NewKinkedRateModel(
	big.NewInt(0),
	fractionX64(4, 100),
	fractionX64(60, 100),
	fractionX64(80, 100),
)
