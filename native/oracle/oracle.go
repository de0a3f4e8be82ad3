package oracle

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lendvault/native/vault"
)

var (
	// ErrNoFreshQuote indicates no quote inside the freshness window exists
	// for a required token.
	ErrNoFreshQuote = errors.New("oracle: no fresh quote available")
	// ErrPriceDeviation indicates a submitted quote moved too far from the
	// previous observation.
	ErrPriceDeviation = errors.New("oracle: price deviation exceeds tolerance")
	// ErrUnknownToken indicates a position references a token without a
	// configured feed.
	ErrUnknownToken = errors.New("oracle: token feed not configured")
	// ErrInvalidQuote indicates a non-positive or nil price submission.
	ErrInvalidQuote = errors.New("oracle: invalid quote")
)

var q64 = new(big.Int).Lsh(big.NewInt(1), 64)

// Quote is one observed price for a token, denominated in the borrowed asset
// per token unit, Q64.
type Quote struct {
	PriceX64  *big.Int
	Timestamp uint64
	Source    string
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.PriceX64 != nil {
		clone.PriceX64 = new(big.Int).Set(q.PriceX64)
	}
	return clone
}

// Config bounds how old and how volatile an accepted quote may be.
type Config struct {
	// MaxAgeSeconds is the freshness window; quotes older than this are
	// rejected at read time.
	MaxAgeSeconds uint64
	// MaxDeviationX64 caps the relative move between consecutive accepted
	// quotes for the same token. Zero disables the check.
	MaxDeviationX64 *big.Int
}

// Valuer appraises pledged positions from per-token price feeds and the
// position manager's composition breakdown. It refuses to answer rather than
// return a misleading value: configuration gaps, stale quotes and deviation
// breaches are hard errors.
type Valuer struct {
	mu        sync.RWMutex
	cfg       Config
	baseToken common.Address
	positions vault.PositionManager
	feeds     map[common.Address]Quote
	clock     func() uint64
}

// NewValuer constructs a valuer for positions priced against the base token.
func NewValuer(cfg Config, baseToken common.Address, positions vault.PositionManager, clock func() uint64) *Valuer {
	return &Valuer{
		cfg:       cfg,
		baseToken: baseToken,
		positions: positions,
		feeds:     make(map[common.Address]Quote),
		clock:     clock,
	}
}

// SubmitQuote records a feeder observation after validating it against the
// deviation tolerance.
func (v *Valuer) SubmitQuote(token common.Address, quote Quote) error {
	if quote.PriceX64 == nil || quote.PriceX64.Sign() <= 0 {
		return ErrInvalidQuote
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	prev, ok := v.feeds[token]
	if ok && v.cfg.MaxDeviationX64 != nil && v.cfg.MaxDeviationX64.Sign() > 0 && prev.PriceX64.Sign() > 0 {
		diff := new(big.Int).Sub(quote.PriceX64, prev.PriceX64)
		diff.Abs(diff)
		deviation := new(big.Int).Mul(diff, q64)
		deviation.Quo(deviation, prev.PriceX64)
		if deviation.Cmp(v.cfg.MaxDeviationX64) > 0 {
			return ErrPriceDeviation
		}
	}
	v.feeds[token] = quote.Clone()
	return nil
}

// quoteFor resolves a fresh price for one token. The base token is always
// worth exactly one unit of itself.
func (v *Valuer) quoteFor(token common.Address) (*big.Int, error) {
	if token == v.baseToken {
		return new(big.Int).Set(q64), nil
	}
	quote, ok := v.feeds[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	if v.cfg.MaxAgeSeconds > 0 {
		now := v.clock()
		if now > quote.Timestamp && now-quote.Timestamp > v.cfg.MaxAgeSeconds {
			return nil, ErrNoFreshQuote
		}
	}
	return new(big.Int).Set(quote.PriceX64), nil
}

// Value implements vault.PriceOracle: the position's full and fee values in
// the base token, along with the prices used.
func (v *Valuer) Value(positionID uint64) (vault.PositionValue, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	breakdown, err := v.positions.Breakdown(positionID)
	if err != nil {
		return vault.PositionValue{}, err
	}
	price0, err := v.quoteFor(breakdown.Token0)
	if err != nil {
		return vault.PositionValue{}, err
	}
	price1, err := v.quoteFor(breakdown.Token1)
	if err != nil {
		return vault.PositionValue{}, err
	}

	valueOf := func(amount, priceX64 *big.Int) *big.Int {
		if amount == nil || amount.Sign() == 0 {
			return big.NewInt(0)
		}
		out := new(big.Int).Mul(amount, priceX64)
		return out.Quo(out, q64)
	}

	fees := new(big.Int).Add(valueOf(breakdown.Fees0, price0), valueOf(breakdown.Fees1, price1))
	full := new(big.Int).Add(valueOf(breakdown.Amount0, price0), valueOf(breakdown.Amount1, price1))
	full.Add(full, fees)

	return vault.PositionValue{
		Full:      full,
		Fees:      fees,
		Price0X64: price0,
		Price1X64: price1,
	}, nil
}
