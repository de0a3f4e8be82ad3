package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transformer is a trusted external agent that may atomically recompose a
// pledged position. It runs with the gate open and the solvency check
// deferred to the end of Transform.
type Transformer interface {
	Address() common.Address
	// Transform recomposes the position identified by the session's gate,
	// optionally repointing the loan to a replacement position. All ledger
	// access must go through the session.
	Transform(session *TransformSession, positionID uint64, payload []byte) error
}

// TransformSession is the agent's handle on the ledger while the gate is
// open. Its methods skip the per-step solvency check; the gate performs
// exactly one check when the agent returns.
type TransformSession struct {
	engine *Engine
}

// Borrow draws debt against the transformed loan, routing funds to the agent.
func (s *TransformSession) Borrow(amount *big.Int) (*big.Int, error) {
	e := s.engine
	return e.borrow(e.activeAgent, e.transformedID, amount)
}

// Repay retires debt against the transformed loan with the agent as payer.
func (s *TransformSession) Repay(amount *big.Int, isShares bool) (*big.Int, error) {
	e := s.engine
	return e.repay(e.activeAgent, e.transformedID, amount, isShares)
}

// PositionID reports the loan currently under the gate.
func (s *TransformSession) PositionID() uint64 {
	return s.engine.transformedID
}

// Repoint moves the loan's record, debt and exposure attribution onto a
// replacement position, supporting "close old position, open new position"
// compositions. The collateral factor is re-frozen from the replacement's
// pair tokens.
func (s *TransformSession) Repoint(newPositionID uint64) error {
	e := s.engine
	if newPositionID == 0 || newPositionID == e.transformedID {
		return ErrInvalidAmount
	}
	existing, err := e.state.GetLoan(newPositionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrPositionPledged
	}
	if e.positions == nil {
		return ErrNilCollaborator
	}
	breakdown, err := e.positions.Breakdown(newPositionID)
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

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	old, err := e.ensureLoan(e.transformedID)
	if err != nil {
		return err
	}
	shares := cloneBig(old.DebtShares)
	if err := e.updateCollateralExposure(market, old, shares, big.NewInt(0)); err != nil {
		return err
	}
	replacement := &Loan{
		PositionID:          newPositionID,
		Owner:               old.Owner,
		DebtShares:          shares,
		CollateralFactorX64: cloneBig(minBig(cfg0.CollateralFactorX64, cfg1.CollateralFactorX64)),
		Token0:              breakdown.Token0,
		Token1:              breakdown.Token1,
	}
	if err := e.updateCollateralExposure(market, replacement, big.NewInt(0), shares); err != nil {
		return err
	}
	if err := e.state.DeleteLoan(old.PositionID); err != nil {
		return err
	}
	if err := e.state.PutLoan(replacement); err != nil {
		return err
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}
	e.transformedID = newPositionID
	return nil
}

// Transform opens the gate for a whitelisted agent, runs its composite
// action against a buffered copy of the state, performs the single deferred
// solvency check, and commits. Any failure, including an unhealthy end
// state, discards every sub-step. The gate is cleared on every exit path,
// and a Transform issued while it is open fails fast with ErrTransformActive
// rather than queueing behind the running one.
func (e *Engine) Transform(caller common.Address, positionID uint64, agent common.Address, payload []byte) (uint64, error) {
	if !e.transformGate.CompareAndSwap(false, true) {
		return 0, ErrTransformActive
	}
	defer e.transformGate.Store(false)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return 0, err
	}
	transformer, ok := e.transformers[agent]
	if !ok || transformer == nil {
		return 0, ErrTransformerNotAllowed
	}
	if e.positions == nil || e.oracle == nil {
		return 0, ErrNilCollaborator
	}
	loan, err := e.ensureLoan(positionID)
	if err != nil {
		return 0, err
	}
	if caller != loan.Owner && caller != e.moduleAddress && !e.approvals[positionID][caller] {
		return 0, ErrUnauthorized
	}

	base := e.state
	overlay := newOverlayState(base)
	e.state = overlay
	e.transformedID = positionID
	e.activeAgent = agent
	defer func() {
		e.state = base
		e.transformedID = 0
		e.activeAgent = common.Address{}
	}()

	session := &TransformSession{engine: e}
	if err := transformer.Transform(session, positionID, payload); err != nil {
		return 0, err
	}

	// The agent may have repointed the gate to a replacement position.
	currentID := e.transformedID

	holder, err := e.positions.OwnerOf(currentID)
	if err != nil {
		return 0, err
	}
	if holder != e.moduleAddress {
		return 0, ErrOwnershipLost
	}

	market, err := e.ensureMarket()
	if err != nil {
		return 0, err
	}
	if err := e.accrue(market); err != nil {
		return 0, err
	}
	current, err := e.ensureLoan(currentID)
	if err != nil {
		return 0, err
	}
	debt := sharesToAssets(current.DebtShares, market.DebtRateX64, roundUp)
	healthy, _, _, err := e.checkHealthy(current, debt)
	if err != nil {
		return 0, err
	}
	if !healthy {
		return 0, ErrNotHealthy
	}
	if err := e.state.PutMarket(market); err != nil {
		return 0, err
	}

	if err := overlay.Commit(); err != nil {
		return 0, err
	}
	if currentID != positionID {
		if approved := e.approvals[positionID]; approved != nil {
			e.approvals[currentID] = approved
			delete(e.approvals, positionID)
		}
	}
	e.emit(Transformed{OldPositionID: positionID, NewPositionID: currentID, Agent: agent})
	return currentID, nil
}

// overlayState buffers writes on top of a base state so a transform's
// composite mutation commits atomically or not at all. Reads clone base
// records so failed transforms cannot leak pointer mutations.
type overlayState struct {
	base     engineState
	market   *Market
	loans    map[uint64]*Loan
	deleted  map[uint64]bool
	lenders  map[common.Address]*LenderAccount
	accounts map[common.Address]*Account
	tokens   map[common.Address]*TokenConfig
}

func newOverlayState(base engineState) *overlayState {
	return &overlayState{
		base:     base,
		loans:    make(map[uint64]*Loan),
		deleted:  make(map[uint64]bool),
		lenders:  make(map[common.Address]*LenderAccount),
		accounts: make(map[common.Address]*Account),
		tokens:   make(map[common.Address]*TokenConfig),
	}
}

func (o *overlayState) GetMarket() (*Market, error) {
	if o.market != nil {
		return o.market, nil
	}
	market, err := o.base.GetMarket()
	if err != nil {
		return nil, err
	}
	return market.Clone(), nil
}

func (o *overlayState) PutMarket(market *Market) error {
	o.market = market
	return nil
}

func (o *overlayState) GetLoan(positionID uint64) (*Loan, error) {
	if o.deleted[positionID] {
		return nil, nil
	}
	if loan, ok := o.loans[positionID]; ok {
		return loan, nil
	}
	loan, err := o.base.GetLoan(positionID)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

func (o *overlayState) PutLoan(loan *Loan) error {
	if loan == nil {
		return nil
	}
	delete(o.deleted, loan.PositionID)
	o.loans[loan.PositionID] = loan
	return nil
}

func (o *overlayState) DeleteLoan(positionID uint64) error {
	delete(o.loans, positionID)
	o.deleted[positionID] = true
	return nil
}

func (o *overlayState) GetLender(addr common.Address) (*LenderAccount, error) {
	if lender, ok := o.lenders[addr]; ok {
		return lender, nil
	}
	lender, err := o.base.GetLender(addr)
	if err != nil {
		return nil, err
	}
	return lender.Clone(), nil
}

func (o *overlayState) PutLender(account *LenderAccount) error {
	if account == nil {
		return nil
	}
	o.lenders[account.Address] = account
	return nil
}

func (o *overlayState) GetAccount(addr common.Address) (*Account, error) {
	if acc, ok := o.accounts[addr]; ok {
		return acc, nil
	}
	acc, err := o.base.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

func (o *overlayState) PutAccount(addr common.Address, account *Account) error {
	o.accounts[addr] = account
	return nil
}

func (o *overlayState) GetTokenConfig(token common.Address) (*TokenConfig, error) {
	if cfg, ok := o.tokens[token]; ok {
		return cfg, nil
	}
	cfg, err := o.base.GetTokenConfig(token)
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

func (o *overlayState) PutTokenConfig(config *TokenConfig) error {
	if config == nil {
		return nil
	}
	o.tokens[config.Token] = config
	return nil
}

// Commit flushes the buffered writes into the base state.
func (o *overlayState) Commit() error {
	if o.market != nil {
		if err := o.base.PutMarket(o.market); err != nil {
			return err
		}
	}
	for id := range o.deleted {
		if err := o.base.DeleteLoan(id); err != nil {
			return err
		}
	}
	for _, loan := range o.loans {
		if err := o.base.PutLoan(loan); err != nil {
			return err
		}
	}
	for _, lender := range o.lenders {
		if err := o.base.PutLender(lender); err != nil {
			return err
		}
	}
	for addr, acc := range o.accounts {
		if err := o.base.PutAccount(addr, acc); err != nil {
			return err
		}
	}
	for _, cfg := range o.tokens {
		if err := o.base.PutTokenConfig(cfg); err != nil {
			return err
		}
	}
	return nil
}
