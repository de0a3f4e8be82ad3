package positions

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendvault/native/vault"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func par() *big.Int { return new(big.Int).Lsh(big.NewInt(1), 64) }

func register(t *testing.T, r *Registry, owner common.Address) uint64 {
	t.Helper()
	return r.Register(owner, vault.PositionBreakdown{
		Liquidity: big.NewInt(300),
		Amount0:   big.NewInt(100),
		Amount1:   big.NewInt(200),
		Fees0:     big.NewInt(20),
		Fees1:     big.NewInt(30),
	}, par(), par())
}

func TestRegisterAndOwnership(t *testing.T) {
	r := NewRegistry()
	id := register(t, r, alice)

	owner, err := r.OwnerOf(id)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if owner != alice {
		t.Fatalf("owner = %v, want alice", owner)
	}
	if _, err := r.OwnerOf(id + 1); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}

	if err := r.Transfer(id, bob, alice); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("transfer from non-owner: %v", err)
	}
	if err := r.Transfer(id, alice, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, _ = r.OwnerOf(id)
	if owner != bob {
		t.Fatalf("owner after transfer = %v, want bob", owner)
	}
}

func TestBreakdownIsACopy(t *testing.T) {
	r := NewRegistry()
	id := register(t, r, alice)

	b, err := r.Breakdown(id)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	b.Amount0.SetInt64(0)

	again, _ := r.Breakdown(id)
	if again.Amount0.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("registry state mutated through a returned breakdown")
	}
}

func TestWithdrawValueTakesFeesFirst(t *testing.T) {
	r := NewRegistry()
	id := register(t, r, alice)

	// Total value 350, of which 50 is fees. Drawing 50 consumes exactly the
	// fee component.
	if err := r.WithdrawValue(id, big.NewInt(50), bob); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	b, _ := r.Breakdown(id)
	if b.Fees0.Sign() != 0 || b.Fees1.Sign() != 0 {
		t.Fatalf("fees not consumed first: %s/%s", b.Fees0, b.Fees1)
	}
	if b.Amount0.Cmp(big.NewInt(100)) != 0 || b.Amount1.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("liquidity touched before fees ran out: %s/%s", b.Amount0, b.Amount1)
	}

	// Drawing half the remaining value scales the liquidity legs evenly.
	if err := r.WithdrawValue(id, big.NewInt(150), bob); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	b, _ = r.Breakdown(id)
	if b.Amount0.Cmp(big.NewInt(50)) != 0 || b.Amount1.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("uneven liquidity draw: %s/%s", b.Amount0, b.Amount1)
	}

	value, _ := r.Value(id)
	if value.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("remaining value = %s, want 150", value)
	}
}

func TestWithdrawValueBounds(t *testing.T) {
	r := NewRegistry()
	id := register(t, r, alice)

	if err := r.WithdrawValue(id, big.NewInt(351), bob); !errors.Is(err, ErrValueExceedsPosition) {
		t.Fatalf("overdraw: %v", err)
	}
	if err := r.WithdrawValue(id, big.NewInt(-1), bob); !errors.Is(err, ErrValueExceedsPosition) {
		t.Fatalf("negative draw: %v", err)
	}
	if err := r.WithdrawValue(id, big.NewInt(350), bob); err != nil {
		t.Fatalf("full draw: %v", err)
	}
	value, _ := r.Value(id)
	if value.Sign() != 0 {
		t.Fatalf("value after full draw = %s", value)
	}
}

func TestWithdrawValueCreditsRecipient(t *testing.T) {
	r := NewRegistry()
	id := register(t, r, alice)

	if err := r.WithdrawValue(id, big.NewInt(50), bob); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := r.WithdrawValue(id, big.NewInt(100), bob); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := r.Claimable(bob); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("bob claimable = %s, want 150", got)
	}
	if got := r.Claimable(alice); got.Sign() != 0 {
		t.Fatalf("alice claimable = %s, want 0", got)
	}

	// The accessor hands out a copy, not the ledger entry.
	r.Claimable(bob).SetInt64(0)
	if got := r.Claimable(bob); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("claimable mutated through accessor: %s", got)
	}
}
