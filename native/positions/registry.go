package positions

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lendvault/native/vault"
)

var (
	// ErrPositionNotFound indicates the registry holds no position with the
	// requested identifier.
	ErrPositionNotFound = errors.New("positions: position not found")
	// ErrNotOwner indicates a transfer attempted from an address that does
	// not hold the position.
	ErrNotOwner = errors.New("positions: transfer from non-owner")
	// ErrValueExceedsPosition indicates a withdrawal larger than the
	// position's remaining value.
	ErrValueExceedsPosition = errors.New("positions: withdrawal exceeds position value")
)

// Position is one registered liquidity position together with its pair
// composition. Prices are supplied at registration so the registry can honour
// partial value withdrawals proportionally.
type Position struct {
	ID        uint64
	Owner     common.Address
	Breakdown vault.PositionBreakdown
	// Price0X64 and Price1X64 value the pair tokens in the borrowed asset,
	// used to convert a withdrawal value back into token amounts.
	Price0X64 *big.Int
	Price1X64 *big.Int
}

// Registry is an in-process position custodian implementing
// vault.PositionManager. It backs the development mode of the daemon and the
// engine's tests; production deployments point the vault at an external
// manager instead.
type Registry struct {
	mu        sync.RWMutex
	positions map[uint64]*Position
	nextID    uint64
	// claimable records the value withdrawn to each recipient, so a
	// liquidator's seized collateral has an owner on this side too.
	claimable map[common.Address]*big.Int
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		positions: make(map[uint64]*Position),
		nextID:    1,
		claimable: make(map[common.Address]*big.Int),
	}
}

var q64 = new(big.Int).Lsh(big.NewInt(1), 64)

// Register adds a position and returns its identifier.
func (r *Registry) Register(owner common.Address, breakdown vault.PositionBreakdown, price0X64, price1X64 *big.Int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.positions[id] = &Position{
		ID:        id,
		Owner:     owner,
		Breakdown: cloneBreakdown(breakdown),
		Price0X64: new(big.Int).Set(price0X64),
		Price1X64: new(big.Int).Set(price1X64),
	}
	return id
}

// OwnerOf implements vault.PositionManager.
func (r *Registry) OwnerOf(positionID uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[positionID]
	if !ok {
		return common.Address{}, ErrPositionNotFound
	}
	return pos.Owner, nil
}

// Transfer implements vault.PositionManager.
func (r *Registry) Transfer(positionID uint64, from, to common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[positionID]
	if !ok {
		return ErrPositionNotFound
	}
	if pos.Owner != from {
		return ErrNotOwner
	}
	pos.Owner = to
	return nil
}

// Breakdown implements vault.PositionManager.
func (r *Registry) Breakdown(positionID uint64) (vault.PositionBreakdown, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[positionID]
	if !ok {
		return vault.PositionBreakdown{}, ErrPositionNotFound
	}
	return cloneBreakdown(pos.Breakdown), nil
}

// WithdrawValue implements vault.PositionManager. Value is extracted fee
// components first, then proportionally from liquidity, mirroring how the
// custodian realises collateral for a liquidator.
func (r *Registry) WithdrawValue(positionID uint64, value *big.Int, recipient common.Address) error {
	if value == nil || value.Sign() < 0 {
		return ErrValueExceedsPosition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[positionID]
	if !ok {
		return ErrPositionNotFound
	}
	total := r.valueLocked(pos)
	if value.Cmp(total) > 0 {
		return ErrValueExceedsPosition
	}
	remaining := new(big.Int).Set(value)

	// Fees first.
	fees := new(big.Int).Add(
		tokenValue(pos.Breakdown.Fees0, pos.Price0X64),
		tokenValue(pos.Breakdown.Fees1, pos.Price1X64),
	)
	if fees.Sign() > 0 {
		drawn := new(big.Int).Set(remaining)
		if drawn.Cmp(fees) > 0 {
			drawn.Set(fees)
		}
		scaleDown(pos.Breakdown.Fees0, drawn, fees)
		scaleDown(pos.Breakdown.Fees1, drawn, fees)
		remaining.Sub(remaining, drawn)
	}
	if remaining.Sign() > 0 {
		liquidity := new(big.Int).Add(
			tokenValue(pos.Breakdown.Amount0, pos.Price0X64),
			tokenValue(pos.Breakdown.Amount1, pos.Price1X64),
		)
		if liquidity.Sign() > 0 {
			scaleDown(pos.Breakdown.Amount0, remaining, liquidity)
			scaleDown(pos.Breakdown.Amount1, remaining, liquidity)
			scaleDown(pos.Breakdown.Liquidity, remaining, liquidity)
		}
	}
	if value.Sign() > 0 {
		credit := r.claimable[recipient]
		if credit == nil {
			credit = big.NewInt(0)
			r.claimable[recipient] = credit
		}
		credit.Add(credit, value)
	}
	return nil
}

// Claimable reports the total value withdrawn to an address so far.
func (r *Registry) Claimable(addr common.Address) *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if credit := r.claimable[addr]; credit != nil {
		return new(big.Int).Set(credit)
	}
	return big.NewInt(0)
}

// Value reports the current full value of a position in the borrowed asset.
func (r *Registry) Value(positionID uint64) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[positionID]
	if !ok {
		return nil, ErrPositionNotFound
	}
	return r.valueLocked(pos), nil
}

func (r *Registry) valueLocked(pos *Position) *big.Int {
	total := tokenValue(pos.Breakdown.Amount0, pos.Price0X64)
	total.Add(total, tokenValue(pos.Breakdown.Amount1, pos.Price1X64))
	total.Add(total, tokenValue(pos.Breakdown.Fees0, pos.Price0X64))
	total.Add(total, tokenValue(pos.Breakdown.Fees1, pos.Price1X64))
	return total
}

func tokenValue(amount, priceX64 *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, priceX64)
	return out.Quo(out, q64)
}

// scaleDown removes drawn/total of the amount in place.
func scaleDown(amount, drawn, total *big.Int) {
	if amount == nil || amount.Sign() == 0 || total.Sign() == 0 {
		return
	}
	removed := new(big.Int).Mul(amount, drawn)
	removed.Quo(removed, total)
	amount.Sub(amount, removed)
	if amount.Sign() < 0 {
		amount.SetInt64(0)
	}
}

func cloneBreakdown(b vault.PositionBreakdown) vault.PositionBreakdown {
	clone := vault.PositionBreakdown{Token0: b.Token0, Token1: b.Token1}
	clone.Liquidity = cloneBig(b.Liquidity)
	clone.Amount0 = cloneBig(b.Amount0)
	clone.Amount1 = cloneBig(b.Amount1)
	clone.Fees0 = cloneBig(b.Fees0)
	clone.Fees1 = cloneBig(b.Fees1)
	return clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
