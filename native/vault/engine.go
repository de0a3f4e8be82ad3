package vault

import (
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "lendvault/native/common"
)

var (
	ErrNilState              = errors.New("vault: state not configured")
	ErrNilCollaborator       = errors.New("vault: oracle or position manager not configured")
	ErrInvalidAmount         = errors.New("vault: amount must be positive")
	ErrInvalidConfig         = errors.New("vault: invalid configuration value")
	ErrUnauthorized          = errors.New("vault: caller not authorised")
	ErrInsufficientBalance   = errors.New("vault: insufficient balance")
	ErrInsufficientLiquidity = errors.New("vault: insufficient liquidity")
	ErrLoanNotFound          = errors.New("vault: loan not found")
	ErrPositionPledged       = errors.New("vault: position already pledged")
	ErrTokenNotConfigured    = errors.New("vault: collateral token not configured")
	ErrNotHealthy            = errors.New("vault: collateral below required value")
	ErrDailyLimitExceeded    = errors.New("vault: daily limit exceeded")
	ErrGlobalLendLimit       = errors.New("vault: global lend limit exceeded")
	ErrGlobalDebtLimit       = errors.New("vault: global debt limit exceeded")
	ErrCollateralValueLimit  = errors.New("vault: collateral token exposure limit exceeded")
	ErrMinLoanSize           = errors.New("vault: loan below minimum size")
	ErrRepayExceedsDebt      = errors.New("vault: repay exceeds debt")
	ErrNoDebt                = errors.New("vault: no outstanding debt")
	ErrNotLiquidatable       = errors.New("vault: loan not eligible for liquidation")
	ErrTransformActive       = errors.New("vault: transform in progress")
	ErrTransformerNotAllowed = errors.New("vault: transform agent not allow-listed")
	ErrOwnershipLost         = errors.New("vault: position left vault custody")
	ErrInsufficientReserves  = errors.New("vault: reserve withdrawal exceeds protected balance")
)

// ModuleName keys the administrative pause switch for this module.
const ModuleName = "vault"

type engineState interface {
	GetMarket() (*Market, error)
	PutMarket(market *Market) error
	GetLoan(positionID uint64) (*Loan, error)
	PutLoan(loan *Loan) error
	DeleteLoan(positionID uint64) error
	GetLender(addr common.Address) (*LenderAccount, error)
	PutLender(account *LenderAccount) error
	GetAccount(addr common.Address) (*Account, error)
	PutAccount(addr common.Address, account *Account) error
	GetTokenConfig(token common.Address) (*TokenConfig, error)
	PutTokenConfig(config *TokenConfig) error
}

// Engine orchestrates the vault's state transitions: lender deposits and
// withdrawals, loan lifecycle, transforms and liquidations. All mutation is
// serialised behind one coarse lock; re-entrant calls happen only through a
// transform session which already holds it.
type Engine struct {
	mu            sync.Mutex
	state         engineState
	moduleAddress common.Address
	admin         common.Address
	params        RiskParameters
	rateModel     RateModel
	oracle        PriceOracle
	positions     PositionManager
	pauses        nativecommon.PauseView
	emitter       Emitter
	clock         func() uint64

	transformers map[common.Address]Transformer
	approvals    map[uint64]map[common.Address]bool

	// transformGate claims the single transform slot before mu is taken.
	// A nested Transform call from an agent script already holds mu, so
	// the claim must fail fast instead of queueing on the lock.
	transformGate atomic.Bool
	// transformedID is the open gate's position: zero when idle.
	transformedID uint64
	activeAgent   common.Address
}

// NewEngine constructs a vault engine owned by the given administrative
// authority. The module address holds the pool's on-hand cash.
func NewEngine(moduleAddr, admin common.Address, params RiskParameters) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		admin:         admin,
		params:        params.Clone(),
		clock:         func() uint64 { return uint64(time.Now().Unix()) },
		transformers:  make(map[common.Address]Transformer),
		approvals:     make(map[uint64]map[common.Address]bool),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRateModel configures the interest rate curve consumed during accrual.
func (e *Engine) SetRateModel(model RateModel) { e.rateModel = model }

// SetOracle configures the price source used for health checks.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetPositionManager wires the external custodian of collateral positions.
func (e *Engine) SetPositionManager(manager PositionManager) { e.positions = manager }

// SetPauses wires the administrative pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter wires the event sink.
func (e *Engine) SetEmitter(emitter Emitter) { e.emitter = emitter }

// SetClock overrides the timestamp source.
func (e *Engine) SetClock(clock func() uint64) {
	if clock != nil {
		e.clock = clock
	}
}

func (e *Engine) now() uint64 { return e.clock() }

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return nativecommon.Guard(e.pauses, ModuleName)
}

// ensureMarket loads the market record, bootstrapping both exchange rates at
// 1.0 on first touch.
func (e *Engine) ensureMarket() (*Market, error) {
	market, err := e.state.GetMarket()
	if err != nil {
		return nil, err
	}
	if market == nil {
		market = &Market{}
	}
	if market.DebtSharesTotal == nil {
		market.DebtSharesTotal = big.NewInt(0)
	}
	if market.LendSharesTotal == nil {
		market.LendSharesTotal = big.NewInt(0)
	}
	if market.DebtRateX64 == nil || market.DebtRateX64.Sign() == 0 {
		market.DebtRateX64 = new(big.Int).Set(q64)
	}
	if market.LendRateX64 == nil || market.LendRateX64.Sign() == 0 {
		market.LendRateX64 = new(big.Int).Set(q64)
	}
	market.DailyLend.ensure()
	market.DailyDebt.ensure()
	return market, nil
}

func (e *Engine) ensureLoan(positionID uint64) (*Loan, error) {
	loan, err := e.state.GetLoan(positionID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	if loan.DebtShares == nil {
		loan.DebtShares = big.NewInt(0)
	}
	if loan.CollateralFactorX64 == nil {
		loan.CollateralFactorX64 = big.NewInt(0)
	}
	return loan, nil
}

func (e *Engine) loadAccount(addr common.Address) (*Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &Account{}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

func (e *Engine) ensureLender(addr common.Address) (*LenderAccount, error) {
	lender, err := e.state.GetLender(addr)
	if err != nil {
		return nil, err
	}
	if lender == nil {
		lender = &LenderAccount{Address: addr}
	}
	if lender.Shares == nil {
		lender.Shares = big.NewInt(0)
	}
	return lender, nil
}

// transferAsset moves the borrowed asset between two balance records and
// persists both.
func (e *Engine) transferAsset(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	fromAcc, err := e.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := e.loadAccount(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// totalLent returns the assets currently owed to lenders, rounding down.
func (e *Engine) totalLent(m *Market) *big.Int {
	return sharesToAssets(m.LendSharesTotal, m.LendRateX64, roundDown)
}

// totalDebt returns the assets currently owed by borrowers, rounding up.
func (e *Engine) totalDebt(m *Market) *big.Int {
	return sharesToAssets(m.DebtSharesTotal, m.DebtRateX64, roundUp)
}

// Deposit adds assets to the lending pool and mints shares at the current
// lend rate. The minted share count is returned.
func (e *Engine) Deposit(lender common.Address, assets *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deposit(lender, assets)
}

func (e *Engine) deposit(lender common.Address, assets *big.Int) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrue(market); err != nil {
		return nil, err
	}

	lent := e.totalLent(market)
	if e.params.GlobalLendLimit != nil && e.params.GlobalLendLimit.Sign() > 0 {
		projected := new(big.Int).Add(lent, assets)
		if projected.Cmp(e.params.GlobalLendLimit) > 0 {
			return nil, ErrGlobalLendLimit
		}
	}
	market.DailyLend.reset(e.now(), lent, e.params.MaxDailyIncreaseX64, false)
	if err := market.DailyLend.consume(assets); err != nil {
		return nil, err
	}

	// Minting rounds down: the lender receives at most what the deposit is
	// worth in shares.
	shares := assetsToShares(assets, market.LendRateX64, roundDown)
	if shares.Sign() == 0 {
		return nil, ErrInvalidAmount
	}

	if err := e.transferAsset(lender, e.moduleAddress, assets); err != nil {
		return nil, err
	}
	account, err := e.ensureLender(lender)
	if err != nil {
		return nil, err
	}
	account.Shares = new(big.Int).Add(account.Shares, shares)
	market.LendSharesTotal = new(big.Int).Add(market.LendSharesTotal, shares)

	if err := e.state.PutLender(account); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emit(Deposited{Lender: lender, Assets: cloneBig(assets), Shares: shares})
	return shares, nil
}

// Redeem burns the given share count and releases the corresponding assets.
// The redeemed asset amount is returned.
func (e *Engine) Redeem(lender common.Address, shares *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redeem(lender, shares)
}

func (e *Engine) redeem(lender common.Address, shares *big.Int) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrue(market); err != nil {
		return nil, err
	}
	return e.redeemShares(lender, market, shares)
}

// redeemShares burns shares against an already accrued market, so a caller
// that priced the burn itself settles at the very same rate.
func (e *Engine) redeemShares(lender common.Address, market *Market, shares *big.Int) (*big.Int, error) {
	account, err := e.ensureLender(lender)
	if err != nil {
		return nil, err
	}
	if account.Shares.Cmp(shares) < 0 {
		return nil, ErrInsufficientBalance
	}

	// Paying out rounds down.
	assets := sharesToAssets(shares, market.LendRateX64, roundDown)
	available, _ := e.reserveBalances(market)
	if available.Cmp(assets) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	if err := e.transferAsset(e.moduleAddress, lender, assets); err != nil {
		return nil, err
	}
	account.Shares = new(big.Int).Sub(account.Shares, shares)
	market.LendSharesTotal = new(big.Int).Sub(market.LendSharesTotal, shares)
	market.DailyLend.restore(assets)

	if err := e.state.PutLender(account); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emit(Withdrawn{Lender: lender, Assets: assets, Shares: cloneBig(shares)})
	return assets, nil
}

// Withdraw removes an exact asset amount, burning the share count it costs at
// the current lend rate. The burned share count is returned.
func (e *Engine) Withdraw(lender common.Address, assets *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return nil, err
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrue(market); err != nil {
		return nil, err
	}
	// Burning for an exact payout rounds up so the pool never pays more
	// than the burned shares were worth. The redemption settles against the
	// market accrued above, never a second accrual at a fresher timestamp.
	shares := assetsToShares(assets, market.LendRateX64, roundUp)
	if _, err := e.redeemShares(lender, market, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// PreviewDeposit returns the shares a deposit of the given assets would mint
// at the current rates.
func (e *Engine) PreviewDeposit(assets *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	market, err := e.previewMarket()
	if err != nil {
		return nil, err
	}
	return assetsToShares(assets, market.LendRateX64, roundDown), nil
}

// PreviewRedeem returns the assets redeeming the given shares would release
// at the current rates.
func (e *Engine) PreviewRedeem(shares *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	market, err := e.previewMarket()
	if err != nil {
		return nil, err
	}
	return sharesToAssets(shares, market.LendRateX64, roundDown), nil
}

// PreviewWithdraw returns the shares withdrawing the given assets would burn
// at the current rates.
func (e *Engine) PreviewWithdraw(assets *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	market, err := e.previewMarket()
	if err != nil {
		return nil, err
	}
	return assetsToShares(assets, market.LendRateX64, roundUp), nil
}

// ConvertToShares quotes the lend shares equivalent to the given assets at
// freshly accrued rates. Alias of the deposit preview.
func (e *Engine) ConvertToShares(assets *big.Int) (*big.Int, error) {
	return e.PreviewDeposit(assets)
}

// ConvertToAssets quotes the assets equivalent to the given lend shares at
// freshly accrued rates. Alias of the redeem preview.
func (e *Engine) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	return e.PreviewRedeem(shares)
}

// previewMarket accrues a scratch copy of the market so previews reflect
// current rates without persisting anything.
func (e *Engine) previewMarket() (*Market, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	scratch := market.Clone()
	if err := e.accrueRates(scratch); err != nil {
		return nil, err
	}
	return scratch, nil
}

// CreateLoan pledges a collateral position: the vault takes custody of it and
// opens an empty loan record. The collateral factor is frozen here as the
// minimum of the two pair tokens' configured factors.
func (e *Engine) CreateLoan(owner common.Address, positionID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createLoan(owner, positionID)
}

func (e *Engine) createLoan(owner common.Address, positionID uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if e.positions == nil {
		return ErrNilCollaborator
	}
	existing, err := e.state.GetLoan(positionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrPositionPledged
	}
	holder, err := e.positions.OwnerOf(positionID)
	if err != nil {
		return err
	}
	if holder != owner {
		return ErrUnauthorized
	}
	breakdown, err := e.positions.Breakdown(positionID)
	if err != nil {
		return err
	}
	cfg0, err := e.state.GetTokenConfig(breakdown.Token0)
	if err != nil {
		return err
	}
	cfg1, err := e.state.GetTokenConfig(breakdown.Token1)
	if err != nil {
		return err
	}
	if cfg0 == nil || cfg1 == nil || cfg0.CollateralFactorX64 == nil || cfg1.CollateralFactorX64 == nil {
		return ErrTokenNotConfigured
	}
	factor := minBig(cfg0.CollateralFactorX64, cfg1.CollateralFactorX64)

	if err := e.positions.Transfer(positionID, owner, e.moduleAddress); err != nil {
		return err
	}
	loan := &Loan{
		PositionID:          positionID,
		Owner:               owner,
		DebtShares:          big.NewInt(0),
		CollateralFactorX64: cloneBig(factor),
		Token0:              breakdown.Token0,
		Token1:              breakdown.Token1,
	}
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(LoanCreated{PositionID: positionID, Owner: owner})
	return nil
}

// Borrow draws debt against a pledged position. Outside a transform the
// caller must own the loan and the result must be healthy; inside a transform
// the active agent borrows with the solvency check deferred to the gate.
func (e *Engine) Borrow(caller common.Address, positionID uint64, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.borrow(caller, positionID, amount)
}

func (e *Engine) borrow(caller common.Address, positionID uint64, amount *big.Int) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
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
	loan, err := e.ensureLoan(positionID)
	if err != nil {
		return nil, err
	}

	inTransform := e.transformedID != 0 && e.transformedID == positionID && caller == e.activeAgent
	if !inTransform && caller != loan.Owner {
		return nil, ErrUnauthorized
	}

	// The borrower owes at least what they received.
	shares := assetsToShares(amount, market.DebtRateX64, roundUp)
	oldShares := cloneBig(loan.DebtShares)
	newShares := new(big.Int).Add(oldShares, shares)

	newTotal := new(big.Int).Add(market.DebtSharesTotal, shares)
	if e.params.GlobalDebtLimit != nil && e.params.GlobalDebtLimit.Sign() > 0 {
		limitShares := assetsToShares(e.params.GlobalDebtLimit, market.DebtRateX64, roundDown)
		if newTotal.Cmp(limitShares) > 0 {
			return nil, ErrGlobalDebtLimit
		}
	}

	market.DailyDebt.reset(e.now(), e.totalDebt(market), e.params.MaxDailyIncreaseX64, false)
	if err := market.DailyDebt.consume(amount); err != nil {
		return nil, err
	}

	debt := sharesToAssets(newShares, market.DebtRateX64, roundUp)
	if e.params.MinLoanSize != nil && debt.Cmp(e.params.MinLoanSize) < 0 {
		return nil, ErrMinLoanSize
	}

	available, _ := e.reserveBalances(market)
	if available.Cmp(amount) < 0 {
		return nil, ErrInsufficientLiquidity
	}

	cfg0, cfg1, err := e.adjustCollateralExposure(market, loan, oldShares, newShares)
	if err != nil {
		return nil, err
	}

	if !inTransform {
		healthy, _, _, err := e.checkHealthy(loan, debt)
		if err != nil {
			return nil, err
		}
		if !healthy {
			return nil, ErrNotHealthy
		}
	}

	recipient := loan.Owner
	if inTransform {
		recipient = caller
	}
	if err := e.transferAsset(e.moduleAddress, recipient, amount); err != nil {
		return nil, err
	}

	loan.DebtShares = newShares
	market.DebtSharesTotal = newTotal
	if err := e.putTokenConfigs(cfg0, cfg1); err != nil {
		return nil, err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emit(Borrowed{PositionID: positionID, Amount: cloneBig(amount), Shares: shares})
	return shares, nil
}

// Repay retires debt against a loan, amount-denominated or share-denominated.
// Exact full repayment closes the loan and returns the position to its owner.
func (e *Engine) Repay(payer common.Address, positionID uint64, amount *big.Int, isShares bool) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repay(payer, positionID, amount, isShares)
}

func (e *Engine) repay(payer common.Address, positionID uint64, amount *big.Int, isShares bool) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
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
	loan, err := e.ensureLoan(positionID)
	if err != nil {
		return nil, err
	}
	if loan.DebtShares.Sign() == 0 {
		return nil, ErrNoDebt
	}

	var shares *big.Int
	if isShares {
		shares = cloneBig(amount)
	} else {
		// Paid assets extinguish at most their worth in shares.
		shares = assetsToShares(amount, market.DebtRateX64, roundDown)
	}
	if shares.Cmp(loan.DebtShares) > 0 {
		return nil, ErrRepayExceedsDebt
	}
	// The pool collects at least what the shares are worth.
	assets := sharesToAssets(shares, market.DebtRateX64, roundUp)

	oldShares := cloneBig(loan.DebtShares)
	newShares := new(big.Int).Sub(oldShares, shares)
	closed := newShares.Sign() == 0
	if !closed {
		// A partial repayment may not leave a dust loan behind. Checked
		// before any balance moves so a rejection is side-effect free.
		remaining := sharesToAssets(newShares, market.DebtRateX64, roundUp)
		if e.params.MinLoanSize != nil && remaining.Cmp(e.params.MinLoanSize) < 0 {
			return nil, ErrMinLoanSize
		}
	}
	payerAcc, err := e.loadAccount(payer)
	if err != nil {
		return nil, err
	}
	if payerAcc.Balance.Cmp(assets) < 0 {
		return nil, ErrInsufficientBalance
	}
	cfg0, cfg1, err := e.adjustCollateralExposure(market, loan, oldShares, newShares)
	if err != nil {
		return nil, err
	}

	if err := e.transferAsset(payer, e.moduleAddress, assets); err != nil {
		return nil, err
	}
	if err := e.putTokenConfigs(cfg0, cfg1); err != nil {
		return nil, err
	}
	loan.DebtShares = newShares
	market.DebtSharesTotal = new(big.Int).Sub(market.DebtSharesTotal, shares)
	market.DailyDebt.restore(assets)

	if closed {
		if err := e.cleanupLoan(loan); err != nil {
			return nil, err
		}
	} else {
		if err := e.state.PutLoan(loan); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emit(Repaid{PositionID: positionID, Amount: assets, Shares: shares, Closed: closed})
	return assets, nil
}

// cleanupLoan deletes a zero-debt loan record and returns the position to its
// owner.
func (e *Engine) cleanupLoan(loan *Loan) error {
	if e.positions != nil {
		if err := e.positions.Transfer(loan.PositionID, e.moduleAddress, loan.Owner); err != nil {
			return err
		}
	}
	delete(e.approvals, loan.PositionID)
	return e.state.DeleteLoan(loan.PositionID)
}

// checkHealthy appraises the pledged position and compares its discounted
// value against the supplied debt. The debt figure must come from a freshly
// accrued market.
func (e *Engine) checkHealthy(loan *Loan, debt *big.Int) (bool, PositionValue, *big.Int, error) {
	if e.oracle == nil {
		return false, PositionValue{}, nil, ErrNilCollaborator
	}
	value, err := e.oracle.Value(loan.PositionID)
	if err != nil {
		return false, PositionValue{}, nil, err
	}
	collateralValue := mulX64(value.Full, loan.CollateralFactorX64, roundDown)
	healthy := debt == nil || collateralValue.Cmp(debt) >= 0
	return healthy, value, collateralValue, nil
}

// LoanDebt returns the loan's current debt in assets at freshly accrued
// rates, without persisting the accrual.
func (e *Engine) LoanDebt(positionID uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	market, err := e.previewMarket()
	if err != nil {
		return nil, err
	}
	loan, err := e.ensureLoan(positionID)
	if err != nil {
		return nil, err
	}
	return sharesToAssets(loan.DebtShares, market.DebtRateX64, roundUp), nil
}

// LoanInfo returns a copy of the loan record.
func (e *Engine) LoanInfo(positionID uint64) (*Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	loan, err := e.ensureLoan(positionID)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// MarketInfo returns a copy of the market record at freshly accrued rates.
func (e *Engine) MarketInfo() (*Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.previewMarket()
}

// LenderInfo returns a copy of one lender's account.
func (e *Engine) LenderInfo(addr common.Address) (*LenderAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	lender, err := e.ensureLender(addr)
	if err != nil {
		return nil, err
	}
	return lender.Clone(), nil
}
