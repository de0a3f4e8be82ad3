package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a notification produced by the engine after a committed state
// transition.
type Event interface {
	EventType() string
}

// Emitter receives engine events. Implementations must not call back into
// the engine.
type Emitter interface {
	Emit(event Event)
}

// RatesUpdated is emitted whenever accrual advances the exchange rates.
type RatesUpdated struct {
	DebtRateX64 *big.Int
	LendRateX64 *big.Int
	Timestamp   uint64
}

func (RatesUpdated) EventType() string { return "vault.rates_updated" }

// Deposited is emitted after a lender adds assets to the pool.
type Deposited struct {
	Lender common.Address
	Assets *big.Int
	Shares *big.Int
}

func (Deposited) EventType() string { return "vault.deposited" }

// Withdrawn is emitted after a lender removes assets from the pool.
type Withdrawn struct {
	Lender common.Address
	Assets *big.Int
	Shares *big.Int
}

func (Withdrawn) EventType() string { return "vault.withdrawn" }

// LoanCreated is emitted when a collateral position is pledged.
type LoanCreated struct {
	PositionID uint64
	Owner      common.Address
}

func (LoanCreated) EventType() string { return "vault.loan_created" }

// Borrowed is emitted after debt is drawn against a loan.
type Borrowed struct {
	PositionID uint64
	Amount     *big.Int
	Shares     *big.Int
}

func (Borrowed) EventType() string { return "vault.borrowed" }

// Repaid is emitted after debt is repaid against a loan.
type Repaid struct {
	PositionID uint64
	Amount     *big.Int
	Shares     *big.Int
	Closed     bool
}

func (Repaid) EventType() string { return "vault.repaid" }

// Liquidated is emitted after an unhealthy loan is liquidated.
type Liquidated struct {
	PositionID       uint64
	Liquidator       common.Address
	LiquidatorCost   *big.Int
	LiquidationValue *big.Int
	ReserveCost      *big.Int
	Missing          *big.Int
}

func (Liquidated) EventType() string { return "vault.liquidated" }

// Transformed is emitted after a transform session completes.
type Transformed struct {
	OldPositionID uint64
	NewPositionID uint64
	Agent         common.Address
}

func (Transformed) EventType() string { return "vault.transformed" }

func (e *Engine) emit(event Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}
