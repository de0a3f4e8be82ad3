package vault

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// memState is an in-memory engineState for tests. Reads and writes are
// cloned so the engine's scratch mutations never alias stored records.
type memState struct {
	market  *Market
	loans   map[uint64]*Loan
	lenders map[common.Address]*LenderAccount
	accts   map[common.Address]*Account
	tokens  map[common.Address]*TokenConfig
}

func newMemState() *memState {
	return &memState{
		loans:   make(map[uint64]*Loan),
		lenders: make(map[common.Address]*LenderAccount),
		accts:   make(map[common.Address]*Account),
		tokens:  make(map[common.Address]*TokenConfig),
	}
}

func (s *memState) GetMarket() (*Market, error)       { return s.market.Clone(), nil }
func (s *memState) PutMarket(m *Market) error         { s.market = m.Clone(); return nil }
func (s *memState) GetLoan(id uint64) (*Loan, error)  { return s.loans[id].Clone(), nil }
func (s *memState) PutLoan(l *Loan) error             { s.loans[l.PositionID] = l.Clone(); return nil }
func (s *memState) DeleteLoan(id uint64) error        { delete(s.loans, id); return nil }
func (s *memState) PutLender(a *LenderAccount) error  { s.lenders[a.Address] = a.Clone(); return nil }
func (s *memState) PutTokenConfig(c *TokenConfig) error {
	s.tokens[c.Token] = c.Clone()
	return nil
}

func (s *memState) GetLender(addr common.Address) (*LenderAccount, error) {
	return s.lenders[addr].Clone(), nil
}

func (s *memState) GetAccount(addr common.Address) (*Account, error) {
	return s.accts[addr].Clone(), nil
}

func (s *memState) PutAccount(addr common.Address, a *Account) error {
	s.accts[addr] = a.Clone()
	return nil
}

func (s *memState) GetTokenConfig(token common.Address) (*TokenConfig, error) {
	return s.tokens[token].Clone(), nil
}

func (s *memState) setBalance(addr common.Address, amount int64) {
	s.accts[addr] = &Account{Balance: big.NewInt(amount)}
}

func (s *memState) balance(addr common.Address) *big.Int {
	if acc := s.accts[addr]; acc != nil && acc.Balance != nil {
		return acc.Balance
	}
	return big.NewInt(0)
}

// stubOracle returns canned appraisals keyed by position.
type stubOracle struct {
	values map[uint64]PositionValue
	err    error
}

func (o *stubOracle) Value(positionID uint64) (PositionValue, error) {
	if o.err != nil {
		return PositionValue{}, o.err
	}
	v, ok := o.values[positionID]
	if !ok {
		return PositionValue{}, errors.New("no appraisal")
	}
	return v, nil
}

func (o *stubOracle) setFull(positionID uint64, full int64) {
	o.values[positionID] = PositionValue{
		Full:      big.NewInt(full),
		Fees:      big.NewInt(0),
		Price0X64: cloneBig(q64),
		Price1X64: cloneBig(q64),
	}
}

// stubPositions is a canned position custodian recording withdrawals.
type stubPositions struct {
	owners      map[uint64]common.Address
	breakdowns  map[uint64]PositionBreakdown
	withdrawals []*big.Int
	withdrawErr error
}

func newStubPositions() *stubPositions {
	return &stubPositions{
		owners:     make(map[uint64]common.Address),
		breakdowns: make(map[uint64]PositionBreakdown),
	}
}

func (p *stubPositions) OwnerOf(positionID uint64) (common.Address, error) {
	owner, ok := p.owners[positionID]
	if !ok {
		return common.Address{}, errors.New("unknown position")
	}
	return owner, nil
}

func (p *stubPositions) Transfer(positionID uint64, from, to common.Address) error {
	if p.owners[positionID] != from {
		return errors.New("transfer from non-owner")
	}
	p.owners[positionID] = to
	return nil
}

func (p *stubPositions) Breakdown(positionID uint64) (PositionBreakdown, error) {
	b, ok := p.breakdowns[positionID]
	if !ok {
		return PositionBreakdown{}, errors.New("unknown position")
	}
	return b, nil
}

func (p *stubPositions) WithdrawValue(positionID uint64, value *big.Int, recipient common.Address) error {
	if p.withdrawErr != nil {
		return p.withdrawErr
	}
	p.withdrawals = append(p.withdrawals, cloneBig(value))
	return nil
}

// fixedRate is a rate model returning a constant per-second borrow rate.
type fixedRate struct {
	borrowX64 *big.Int
}

func (r fixedRate) RatesPerSecondX64(cash, debt *big.Int) (*big.Int, *big.Int) {
	return cloneBig(r.borrowX64), big.NewInt(0)
}

type capturedEvents struct {
	events []Event
}

func (c *capturedEvents) Emit(event Event) { c.events = append(c.events, event) }

func (c *capturedEvents) last() Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

var (
	moduleAddr = addr(0xFF)
	adminAddr  = addr(0xAA)
	lender1    = addr(0x01)
	borrower1  = addr(0x02)
	liquidator = addr(0x03)
	tokenA     = addr(0x10)
	tokenB     = addr(0x11)
)

// Penalty bounds and collateral factors are powers of two so expected values
// in the tests are exact.
func testParams() RiskParameters {
	return RiskParameters{
		MaxCollateralFactorX64:     fractionX64(7, 8),
		MinLiquidationPenaltyX64:   fractionX64(1, 32),
		MaxLiquidationPenaltyX64:   fractionX64(1, 8),
		ReserveFactorX64:           fractionX64(1, 4),
		ReserveProtectionFactorX64: fractionX64(1, 64),
		MaxDailyIncreaseX64:        fractionX64(1, 10),
		GlobalLendLimit:            big.NewInt(0),
		GlobalDebtLimit:            big.NewInt(0),
		MinLoanSize:                big.NewInt(0),
	}
}

type fixture struct {
	engine    *Engine
	state     *memState
	oracle    *stubOracle
	positions *stubPositions
	events    *capturedEvents
	now       uint64
}

func newFixture(t *testing.T, params RiskParameters) *fixture {
	t.Helper()
	f := &fixture{
		state:     newMemState(),
		oracle:    &stubOracle{values: make(map[uint64]PositionValue)},
		positions: newStubPositions(),
		events:    &capturedEvents{},
		now:       10 * secondsPerDay,
	}
	f.engine = NewEngine(moduleAddr, adminAddr, params)
	f.engine.SetState(f.state)
	f.engine.SetOracle(f.oracle)
	f.engine.SetPositionManager(f.positions)
	f.engine.SetEmitter(f.events)
	f.engine.SetClock(func() uint64 { return f.now })
	if err := f.engine.SetDailyLimits(adminAddr, big.NewInt(1_000_000_000), big.NewInt(1_000_000_000), true); err != nil {
		t.Fatalf("seed daily limits: %v", err)
	}
	return f
}

// addPosition registers a canned position with both pair tokens configured at
// a 1/2 collateral factor.
func (f *fixture) addPosition(t *testing.T, id uint64, owner common.Address, full int64) {
	t.Helper()
	f.positions.owners[id] = owner
	f.positions.breakdowns[id] = PositionBreakdown{
		Token0:    tokenA,
		Token1:    tokenB,
		Liquidity: big.NewInt(full),
		Amount0:   big.NewInt(full / 2),
		Amount1:   big.NewInt(full / 2),
		Fees0:     big.NewInt(0),
		Fees1:     big.NewInt(0),
	}
	f.oracle.setFull(id, full)
	for _, token := range []common.Address{tokenA, tokenB} {
		if f.state.tokens[token] == nil {
			if err := f.engine.SetTokenConfig(adminAddr, token, fractionX64(1, 2), nil); err != nil {
				t.Fatalf("seed token config: %v", err)
			}
		}
	}
}

func (f *fixture) deposit(t *testing.T, lender common.Address, amount int64) *big.Int {
	t.Helper()
	shares, err := f.engine.Deposit(lender, big.NewInt(amount))
	if err != nil {
		t.Fatalf("deposit %d: %v", amount, err)
	}
	return shares
}

func (f *fixture) openLoan(t *testing.T, owner common.Address, id uint64, full int64) {
	t.Helper()
	f.addPosition(t, id, owner, full)
	if err := f.engine.CreateLoan(owner, id); err != nil {
		t.Fatalf("create loan: %v", err)
	}
}

func mustEqual(t *testing.T, got *big.Int, want int64, label string) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s = %s, want %d", label, got, want)
	}
}

func TestDepositMintsSharesAtParRate(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)

	shares := f.deposit(t, lender1, 1_000)
	mustEqual(t, shares, 1_000, "minted shares")
	mustEqual(t, f.state.balance(moduleAddr), 1_000, "pool balance")
	mustEqual(t, f.state.balance(lender1), 0, "lender balance")

	lenderAcc, err := f.engine.LenderInfo(lender1)
	if err != nil {
		t.Fatalf("lender info: %v", err)
	}
	mustEqual(t, lenderAcc.Shares, 1_000, "lender shares")

	market, err := f.engine.MarketInfo()
	if err != nil {
		t.Fatalf("market info: %v", err)
	}
	mustEqual(t, market.LendSharesTotal, 1_000, "lend shares total")
	if _, ok := f.events.last().(Deposited); !ok {
		t.Fatalf("expected Deposited event, got %T", f.events.last())
	}
}

func TestDepositRejectsInvalidAmounts(t *testing.T) {
	f := newFixture(t, testParams())
	if _, err := f.engine.Deposit(lender1, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil amount: %v", err)
	}
	if _, err := f.engine.Deposit(lender1, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: %v", err)
	}
	if _, err := f.engine.Deposit(lender1, big.NewInt(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: %v", err)
	}
}

func TestDepositRequiresFunds(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 10)
	if _, err := f.engine.Deposit(lender1, big.NewInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestGlobalLendLimit(t *testing.T) {
	params := testParams()
	params.GlobalLendLimit = big.NewInt(500)
	f := newFixture(t, params)
	f.state.setBalance(lender1, 1_000)

	f.deposit(t, lender1, 400)
	if _, err := f.engine.Deposit(lender1, big.NewInt(101)); !errors.Is(err, ErrGlobalLendLimit) {
		t.Fatalf("expected ErrGlobalLendLimit, got %v", err)
	}
	f.deposit(t, lender1, 100)
}

func TestRedeemRoundTripNeverProfits(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)

	shares := f.deposit(t, lender1, 1_000)
	assets, err := f.engine.Redeem(lender1, shares)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if assets.Cmp(big.NewInt(1_000)) > 0 {
		t.Fatalf("redeem returned %s for a 1000 deposit", assets)
	}
	mustEqual(t, assets, 1_000, "round trip at par")
	mustEqual(t, f.state.balance(lender1), 1_000, "lender balance restored")
}

func TestRedeemRejectsOverdraw(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 100)
	shares := f.deposit(t, lender1, 100)

	over := new(big.Int).Add(shares, big.NewInt(1))
	if _, err := f.engine.Redeem(lender1, over); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestRedeemBlockedByOutstandingDebt(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)
	f.deposit(t, lender1, 1_000)
	f.openLoan(t, borrower1, 7, 2_000)

	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(600)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Only 400 cash remains on hand.
	if _, err := f.engine.Redeem(lender1, big.NewInt(500)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if _, err := f.engine.Redeem(lender1, big.NewInt(400)); err != nil {
		t.Fatalf("partial redeem: %v", err)
	}
}

func TestWithdrawBurnsSharesRoundingUp(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)
	f.deposit(t, lender1, 1_000)

	burned, err := f.engine.Withdraw(lender1, big.NewInt(250))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	mustEqual(t, burned, 250, "burned shares at par")
	mustEqual(t, f.state.balance(lender1), 250, "lender balance")
}

func TestWithdrawSettlesAtOneAccrual(t *testing.T) {
	f := newFixture(t, testParams())
	f.engine.SetRateModel(fixedRate{borrowX64: fractionX64(1, 1)})
	f.state.setBalance(lender1, 1_024)
	f.deposit(t, lender1, 1_024)
	f.openLoan(t, borrower1, 7, 4_000)
	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(512)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// The clock steps on every read. The burn must be priced and settled
	// against one accrued market; a second reload inside the withdrawal
	// would pay the ask out at a fresher, higher rate.
	f.engine.SetClock(func() uint64 { f.now++; return f.now })

	// One second of accrual doubles the debt rate; lenders receive 3/4 of
	// the 512 debt growth, 3/8 per share, putting the lend rate at 11/8.
	shares, err := f.engine.Withdraw(lender1, big.NewInt(11))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	mustEqual(t, shares, 8, "burned shares")
	mustEqual(t, f.state.balance(lender1), 11, "paid out exactly the ask")
}

func TestPreviewsMatchExecution(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)

	preview, err := f.engine.PreviewDeposit(big.NewInt(640))
	if err != nil {
		t.Fatalf("preview deposit: %v", err)
	}
	shares := f.deposit(t, lender1, 640)
	if preview.Cmp(shares) != 0 {
		t.Fatalf("preview %s != minted %s", preview, shares)
	}

	previewOut, err := f.engine.PreviewRedeem(shares)
	if err != nil {
		t.Fatalf("preview redeem: %v", err)
	}
	assets, err := f.engine.Redeem(lender1, shares)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if previewOut.Cmp(assets) != 0 {
		t.Fatalf("preview %s != redeemed %s", previewOut, assets)
	}
}

func TestConversionsAliasPreviews(t *testing.T) {
	f := newFixture(t, testParams())

	shares, err := f.engine.ConvertToShares(big.NewInt(640))
	if err != nil {
		t.Fatalf("convert to shares: %v", err)
	}
	preview, err := f.engine.PreviewDeposit(big.NewInt(640))
	if err != nil {
		t.Fatalf("preview deposit: %v", err)
	}
	if shares.Cmp(preview) != 0 {
		t.Fatalf("conversion %s != preview %s", shares, preview)
	}

	assets, err := f.engine.ConvertToAssets(big.NewInt(640))
	if err != nil {
		t.Fatalf("convert to assets: %v", err)
	}
	if assets.Cmp(big.NewInt(640)) != 0 {
		t.Fatalf("par conversion returned %s", assets)
	}
}

func TestCreateLoanTakesCustodyAndFreezesFactor(t *testing.T) {
	f := newFixture(t, testParams())
	f.addPosition(t, 7, borrower1, 2_000)
	// Token B is configured weaker than token A; the loan freezes the minimum.
	if err := f.engine.SetTokenConfig(adminAddr, tokenB, fractionX64(1, 4), nil); err != nil {
		t.Fatalf("set token config: %v", err)
	}

	if err := f.engine.CreateLoan(borrower1, 7); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	if f.positions.owners[7] != moduleAddr {
		t.Fatalf("position not in custody: owner %v", f.positions.owners[7])
	}
	loan, err := f.engine.LoanInfo(7)
	if err != nil {
		t.Fatalf("loan info: %v", err)
	}
	if loan.CollateralFactorX64.Cmp(fractionX64(1, 4)) != 0 {
		t.Fatalf("frozen factor = %s, want 1/4", loan.CollateralFactorX64)
	}
	mustEqual(t, loan.DebtShares, 0, "initial debt shares")
}

func TestCreateLoanChecks(t *testing.T) {
	f := newFixture(t, testParams())
	f.addPosition(t, 7, borrower1, 2_000)

	if err := f.engine.CreateLoan(lender1, 7); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner pledge: %v", err)
	}
	if err := f.engine.CreateLoan(borrower1, 7); err != nil {
		t.Fatalf("create loan: %v", err)
	}
	if err := f.engine.CreateLoan(borrower1, 7); !errors.Is(err, ErrPositionPledged) {
		t.Fatalf("double pledge: %v", err)
	}

	f.positions.owners[9] = borrower1
	f.positions.breakdowns[9] = PositionBreakdown{Token0: addr(0x55), Token1: tokenB}
	if err := f.engine.CreateLoan(borrower1, 9); !errors.Is(err, ErrTokenNotConfigured) {
		t.Fatalf("unconfigured token: %v", err)
	}
}

func TestBorrowAgainstHealthyPosition(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)
	f.deposit(t, lender1, 1_000)
	f.openLoan(t, borrower1, 7, 2_000)

	// Collateral value is 2000 * 1/2 = 1000.
	shares, err := f.engine.Borrow(borrower1, 7, big.NewInt(800))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	mustEqual(t, shares, 800, "debt shares at par")
	mustEqual(t, f.state.balance(borrower1), 800, "borrower received funds")

	debt, err := f.engine.LoanDebt(7)
	if err != nil {
		t.Fatalf("loan debt: %v", err)
	}
	mustEqual(t, debt, 800, "debt")
}

func TestBorrowRejectsUnhealthyResult(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 2_000)
	f.deposit(t, lender1, 2_000)
	f.openLoan(t, borrower1, 7, 2_000)

	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(1_001)); !errors.Is(err, ErrNotHealthy) {
		t.Fatalf("expected ErrNotHealthy, got %v", err)
	}
	// The failed borrow must leave no debt and no token exposure behind.
	loan, err := f.engine.LoanInfo(7)
	if err != nil {
		t.Fatalf("loan info: %v", err)
	}
	mustEqual(t, loan.DebtShares, 0, "debt shares after rejection")
	cfgA, _ := f.state.GetTokenConfig(tokenA)
	cfgB, _ := f.state.GetTokenConfig(tokenB)
	mustEqual(t, cfgA.TotalDebtShares, 0, "token A exposure after rejection")
	mustEqual(t, cfgB.TotalDebtShares, 0, "token B exposure after rejection")
}

func TestBorrowRejectionKeepsExposureCeilingReachable(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 2_000)
	f.deposit(t, lender1, 2_000)
	f.openLoan(t, borrower1, 7, 2_000)

	// Repeated health rejections must not inflate the tokens' aggregate
	// debt attribution; a later in-bounds borrow still fits the ceiling.
	for i := 0; i < 3; i++ {
		if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(1_001)); !errors.Is(err, ErrNotHealthy) {
			t.Fatalf("attempt %d: expected ErrNotHealthy, got %v", i, err)
		}
	}
	if err := f.engine.SetTokenConfig(adminAddr, tokenA, fractionX64(1, 2), fractionX64(1, 4)); err != nil {
		t.Fatalf("set token config: %v", err)
	}
	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(500)); err != nil {
		t.Fatalf("borrow after rejections: %v", err)
	}
	cfgA, _ := f.state.GetTokenConfig(tokenA)
	mustEqual(t, cfgA.TotalDebtShares, 500, "token A exposure")
}

func TestBorrowAuthorisation(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)
	f.deposit(t, lender1, 1_000)
	f.openLoan(t, borrower1, 7, 2_000)

	if _, err := f.engine.Borrow(lender1, 7, big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.engine.Borrow(borrower1, 99, big.NewInt(100)); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected ErrLoanNotFound, got %v", err)
	}
}

func TestBorrowMinLoanSize(t *testing.T) {
	params := testParams()
	params.MinLoanSize = big.NewInt(100)
	f := newFixture(t, params)
	f.state.setBalance(lender1, 1_000)
	f.deposit(t, lender1, 1_000)
	f.openLoan(t, borrower1, 7, 2_000)

	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(99)); !errors.Is(err, ErrMinLoanSize) {
		t.Fatalf("undersized borrow: %v", err)
	}
	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(100)); err != nil {
		t.Fatalf("borrow at minimum: %v", err)
	}
	// A partial repayment may not leave a dust loan behind.
	f.state.setBalance(borrower1, 1_000)
	if _, err := f.engine.Repay(borrower1, 7, big.NewInt(50), false); !errors.Is(err, ErrMinLoanSize) {
		t.Fatalf("dust remainder: %v", err)
	}
	// Exact full repayment closes the loan regardless of the minimum.
	if _, err := f.engine.Repay(borrower1, 7, big.NewInt(100), false); err != nil {
		t.Fatalf("full repay: %v", err)
	}
}

func TestGlobalDebtLimit(t *testing.T) {
	params := testParams()
	params.GlobalDebtLimit = big.NewInt(500)
	f := newFixture(t, params)
	f.state.setBalance(lender1, 2_000)
	f.deposit(t, lender1, 2_000)
	f.openLoan(t, borrower1, 7, 2_000)

	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(501)); !errors.Is(err, ErrGlobalDebtLimit) {
		t.Fatalf("expected ErrGlobalDebtLimit, got %v", err)
	}
	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(500)); err != nil {
		t.Fatalf("borrow at limit: %v", err)
	}
}

func TestRepayClosesLoanAndReturnsPosition(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)
	f.deposit(t, lender1, 1_000)
	f.openLoan(t, borrower1, 7, 2_000)

	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(800)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	paid, err := f.engine.Repay(borrower1, 7, big.NewInt(800), false)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	mustEqual(t, paid, 800, "repaid assets")
	if f.positions.owners[7] != borrower1 {
		t.Fatalf("position not returned: owner %v", f.positions.owners[7])
	}
	if _, err := f.engine.LoanInfo(7); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("loan should be deleted: %v", err)
	}
	event, ok := f.events.last().(Repaid)
	if !ok || !event.Closed {
		t.Fatalf("expected closing Repaid event, got %#v", f.events.last())
	}
}

func TestRepayByShares(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)
	f.deposit(t, lender1, 1_000)
	f.openLoan(t, borrower1, 7, 2_000)

	shares, err := f.engine.Borrow(borrower1, 7, big.NewInt(600))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	half := new(big.Int).Quo(shares, big.NewInt(2))
	if _, err := f.engine.Repay(borrower1, 7, half, true); err != nil {
		t.Fatalf("repay shares: %v", err)
	}
	loan, err := f.engine.LoanInfo(7)
	if err != nil {
		t.Fatalf("loan info: %v", err)
	}
	if loan.DebtShares.Cmp(half) != 0 {
		t.Fatalf("remaining shares = %s, want %s", loan.DebtShares, half)
	}
}

func TestRepayBounds(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)
	f.deposit(t, lender1, 1_000)
	f.openLoan(t, borrower1, 7, 2_000)

	if _, err := f.engine.Repay(borrower1, 7, big.NewInt(10), false); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("repay with no debt: %v", err)
	}
	if _, err := f.engine.Borrow(borrower1, 7, big.NewInt(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := f.engine.Repay(borrower1, 7, big.NewInt(501), true); !errors.Is(err, ErrRepayExceedsDebt) {
		t.Fatalf("over-repay: %v", err)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	f := newFixture(t, testParams())
	f.state.setBalance(lender1, 1_000)

	switches := newPauseStub()
	f.engine.SetPauses(switches)
	switches.paused = true

	if _, err := f.engine.Deposit(lender1, big.NewInt(100)); err == nil {
		t.Fatal("deposit succeeded while paused")
	}
	switches.paused = false
	f.deposit(t, lender1, 100)
}

type pauseStub struct {
	paused bool
}

func newPauseStub() *pauseStub { return &pauseStub{} }

func (p *pauseStub) IsPaused(module string) bool { return p.paused }
