package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lendvault/native/vault"
	"lendvault/storage"
)

// Manager reads and writes the vault's records as RLP payloads under hashed,
// prefixed keys on a key-value database. It satisfies the engine's state
// interface.
type Manager struct {
	db storage.Database
}

// NewManager wraps a key-value database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	marketKeyRaw  = []byte("vault:market")
	loanPrefix    = []byte("vault:loan:")
	lenderPrefix  = []byte("vault:lender:")
	accountPrefix = []byte("vault:account:")
	tokenPrefix   = []byte("vault:token:")
)

func marketKey() []byte {
	return ethcrypto.Keccak256(marketKeyRaw)
}

func loanKey(positionID uint64) []byte {
	buf := make([]byte, len(loanPrefix)+8)
	copy(buf, loanPrefix)
	binary.BigEndian.PutUint64(buf[len(loanPrefix):], positionID)
	return ethcrypto.Keccak256(buf)
}

func addrKey(prefix []byte, addr common.Address) []byte {
	buf := make([]byte, len(prefix)+common.AddressLength)
	copy(buf, prefix)
	copy(buf[len(prefix):], addr.Bytes())
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

func (m *Manager) put(key []byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	return m.db.Put(key, encoded)
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

type storedGate struct {
	LimitMin     *big.Int
	Left         *big.Int
	LastResetDay uint64
}

type storedMarket struct {
	DebtSharesTotal *big.Int
	LendSharesTotal *big.Int
	DebtRateX64     *big.Int
	LendRateX64     *big.Int
	LastRateUpdate  uint64
	DailyLend       storedGate
	DailyDebt       storedGate
}

func toStoredGate(g vault.DailyGate) storedGate {
	return storedGate{
		LimitMin:     nonNil(g.LimitMin),
		Left:         nonNil(g.Left),
		LastResetDay: g.LastResetDay,
	}
}

func fromStoredGate(g storedGate) vault.DailyGate {
	return vault.DailyGate{
		LimitMin:     nonNil(g.LimitMin),
		Left:         nonNil(g.Left),
		LastResetDay: g.LastResetDay,
	}
}

// GetMarket loads the market record, or nil when uninitialised.
func (m *Manager) GetMarket() (*vault.Market, error) {
	var stored storedMarket
	ok, err := m.get(marketKey(), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.Market{
		DebtSharesTotal: nonNil(stored.DebtSharesTotal),
		LendSharesTotal: nonNil(stored.LendSharesTotal),
		DebtRateX64:     nonNil(stored.DebtRateX64),
		LendRateX64:     nonNil(stored.LendRateX64),
		LastRateUpdate:  stored.LastRateUpdate,
		DailyLend:       fromStoredGate(stored.DailyLend),
		DailyDebt:       fromStoredGate(stored.DailyDebt),
	}, nil
}

// PutMarket persists the market record.
func (m *Manager) PutMarket(market *vault.Market) error {
	if market == nil {
		return nil
	}
	return m.put(marketKey(), &storedMarket{
		DebtSharesTotal: nonNil(market.DebtSharesTotal),
		LendSharesTotal: nonNil(market.LendSharesTotal),
		DebtRateX64:     nonNil(market.DebtRateX64),
		LendRateX64:     nonNil(market.LendRateX64),
		LastRateUpdate:  market.LastRateUpdate,
		DailyLend:       toStoredGate(market.DailyLend),
		DailyDebt:       toStoredGate(market.DailyDebt),
	})
}

type storedLoan struct {
	PositionID          uint64
	Owner               common.Address
	DebtShares          *big.Int
	CollateralFactorX64 *big.Int
	Token0              common.Address
	Token1              common.Address
}

// GetLoan loads one loan record, or nil when absent.
func (m *Manager) GetLoan(positionID uint64) (*vault.Loan, error) {
	var stored storedLoan
	ok, err := m.get(loanKey(positionID), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.Loan{
		PositionID:          stored.PositionID,
		Owner:               stored.Owner,
		DebtShares:          nonNil(stored.DebtShares),
		CollateralFactorX64: nonNil(stored.CollateralFactorX64),
		Token0:              stored.Token0,
		Token1:              stored.Token1,
	}, nil
}

// PutLoan persists one loan record.
func (m *Manager) PutLoan(loan *vault.Loan) error {
	if loan == nil {
		return nil
	}
	return m.put(loanKey(loan.PositionID), &storedLoan{
		PositionID:          loan.PositionID,
		Owner:               loan.Owner,
		DebtShares:          nonNil(loan.DebtShares),
		CollateralFactorX64: nonNil(loan.CollateralFactorX64),
		Token0:              loan.Token0,
		Token1:              loan.Token1,
	})
}

// DeleteLoan removes one loan record.
func (m *Manager) DeleteLoan(positionID uint64) error {
	return m.db.Delete(loanKey(positionID))
}

type storedLender struct {
	Address common.Address
	Shares  *big.Int
}

// GetLender loads one lender account, or nil when absent.
func (m *Manager) GetLender(addr common.Address) (*vault.LenderAccount, error) {
	var stored storedLender
	ok, err := m.get(addrKey(lenderPrefix, addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.LenderAccount{Address: stored.Address, Shares: nonNil(stored.Shares)}, nil
}

// PutLender persists one lender account.
func (m *Manager) PutLender(account *vault.LenderAccount) error {
	if account == nil {
		return nil
	}
	return m.put(addrKey(lenderPrefix, account.Address), &storedLender{
		Address: account.Address,
		Shares:  nonNil(account.Shares),
	})
}

type storedAccount struct {
	Balance *big.Int
}

// GetAccount loads one balance record, or nil when absent.
func (m *Manager) GetAccount(addr common.Address) (*vault.Account, error) {
	var stored storedAccount
	ok, err := m.get(addrKey(accountPrefix, addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.Account{Balance: nonNil(stored.Balance)}, nil
}

// PutAccount persists one balance record.
func (m *Manager) PutAccount(addr common.Address, account *vault.Account) error {
	if account == nil {
		return nil
	}
	return m.put(addrKey(accountPrefix, addr), &storedAccount{Balance: nonNil(account.Balance)})
}

type storedTokenConfig struct {
	Token               common.Address
	CollateralFactorX64 *big.Int
	Limited             bool
	LimitFactorX64      *big.Int
	TotalDebtShares     *big.Int
}

// GetTokenConfig loads one token configuration, or nil when absent.
func (m *Manager) GetTokenConfig(token common.Address) (*vault.TokenConfig, error) {
	var stored storedTokenConfig
	ok, err := m.get(addrKey(tokenPrefix, token), &stored)
	if err != nil || !ok {
		return nil, err
	}
	cfg := &vault.TokenConfig{
		Token:               stored.Token,
		CollateralFactorX64: nonNil(stored.CollateralFactorX64),
		TotalDebtShares:     nonNil(stored.TotalDebtShares),
	}
	if stored.Limited {
		cfg.CollateralValueLimitFactorX64 = nonNil(stored.LimitFactorX64)
	}
	return cfg, nil
}

// PutTokenConfig persists one token configuration.
func (m *Manager) PutTokenConfig(config *vault.TokenConfig) error {
	if config == nil {
		return nil
	}
	stored := &storedTokenConfig{
		Token:               config.Token,
		CollateralFactorX64: nonNil(config.CollateralFactorX64),
		TotalDebtShares:     nonNil(config.TotalDebtShares),
	}
	if config.CollateralValueLimitFactorX64 != nil {
		stored.Limited = true
		stored.LimitFactorX64 = config.CollateralValueLimitFactorX64
	} else {
		stored.LimitFactorX64 = big.NewInt(0)
	}
	return m.put(addrKey(tokenPrefix, config.Token), stored)
}
