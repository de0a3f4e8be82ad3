package oracle

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendvault/native/vault"
)

var (
	baseToken = common.HexToAddress("0x0000000000000000000000000000000000000001")
	pairToken = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

type stubPositions struct {
	breakdowns map[uint64]vault.PositionBreakdown
}

func (s *stubPositions) OwnerOf(uint64) (common.Address, error) { return common.Address{}, nil }

func (s *stubPositions) Transfer(uint64, common.Address, common.Address) error { return nil }

func (s *stubPositions) WithdrawValue(uint64, *big.Int, common.Address) error { return nil }

func (s *stubPositions) Breakdown(positionID uint64) (vault.PositionBreakdown, error) {
	b, ok := s.breakdowns[positionID]
	if !ok {
		return vault.PositionBreakdown{}, errors.New("unknown position")
	}
	return b, nil
}

func priceX64(num, den int64) *big.Int {
	out := new(big.Int).Lsh(big.NewInt(num), 64)
	return out.Quo(out, big.NewInt(den))
}

func newTestValuer(maxAge uint64, maxDeviationX64 *big.Int, now *uint64) (*Valuer, *stubPositions) {
	positions := &stubPositions{breakdowns: make(map[uint64]vault.PositionBreakdown)}
	cfg := Config{MaxAgeSeconds: maxAge, MaxDeviationX64: maxDeviationX64}
	v := NewValuer(cfg, baseToken, positions, func() uint64 { return *now })
	return v, positions
}

func TestValueSumsAmountsAndFees(t *testing.T) {
	now := uint64(1_000)
	v, positions := newTestValuer(60, nil, &now)
	positions.breakdowns[7] = vault.PositionBreakdown{
		Token0:  baseToken,
		Token1:  pairToken,
		Amount0: big.NewInt(100),
		Amount1: big.NewInt(50),
		Fees0:   big.NewInt(10),
		Fees1:   big.NewInt(4),
	}
	// Pair token worth 2 base units each; base token is always worth 1.
	if err := v.SubmitQuote(pairToken, Quote{PriceX64: priceX64(2, 1), Timestamp: now}); err != nil {
		t.Fatalf("submit quote: %v", err)
	}

	value, err := v.Value(7)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	// fees: 10*1 + 4*2 = 18; full: 100*1 + 50*2 + fees = 218.
	if value.Fees.Cmp(big.NewInt(18)) != 0 {
		t.Fatalf("fees = %s, want 18", value.Fees)
	}
	if value.Full.Cmp(big.NewInt(218)) != 0 {
		t.Fatalf("full = %s, want 218", value.Full)
	}
}

func TestValueRefusesStaleQuote(t *testing.T) {
	now := uint64(1_000)
	v, positions := newTestValuer(60, nil, &now)
	positions.breakdowns[7] = vault.PositionBreakdown{
		Token0:  baseToken,
		Token1:  pairToken,
		Amount0: big.NewInt(1),
		Amount1: big.NewInt(1),
	}
	if err := v.SubmitQuote(pairToken, Quote{PriceX64: priceX64(1, 1), Timestamp: now}); err != nil {
		t.Fatalf("submit quote: %v", err)
	}

	now += 60
	if _, err := v.Value(7); err != nil {
		t.Fatalf("quote at the window edge: %v", err)
	}
	now++
	if _, err := v.Value(7); !errors.Is(err, ErrNoFreshQuote) {
		t.Fatalf("expected ErrNoFreshQuote, got %v", err)
	}
}

func TestValueRefusesUnknownToken(t *testing.T) {
	now := uint64(1_000)
	v, positions := newTestValuer(60, nil, &now)
	positions.breakdowns[7] = vault.PositionBreakdown{Token0: baseToken, Token1: pairToken}
	if _, err := v.Value(7); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestSubmitQuoteValidation(t *testing.T) {
	now := uint64(1_000)
	v, _ := newTestValuer(60, priceX64(1, 10), &now)

	if err := v.SubmitQuote(pairToken, Quote{PriceX64: nil}); !errors.Is(err, ErrInvalidQuote) {
		t.Fatalf("nil price: %v", err)
	}
	if err := v.SubmitQuote(pairToken, Quote{PriceX64: big.NewInt(0)}); !errors.Is(err, ErrInvalidQuote) {
		t.Fatalf("zero price: %v", err)
	}
	if err := v.SubmitQuote(pairToken, Quote{PriceX64: priceX64(100, 1), Timestamp: now}); err != nil {
		t.Fatalf("first quote: %v", err)
	}
	// A 10% tolerance admits 110 but not 111.
	if err := v.SubmitQuote(pairToken, Quote{PriceX64: priceX64(110, 1), Timestamp: now}); err != nil {
		t.Fatalf("quote within tolerance: %v", err)
	}
	if err := v.SubmitQuote(pairToken, Quote{PriceX64: priceX64(130, 1), Timestamp: now}); !errors.Is(err, ErrPriceDeviation) {
		t.Fatalf("expected ErrPriceDeviation, got %v", err)
	}
}
