package rpc

import (
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendvault/native/oracle"
	"lendvault/native/vault"
)

// Admin requests carry the caller address explicitly; the engine enforces
// that it matches the configured admin. Deployment-level authentication is
// expected in front of this surface.

type tokenConfigRequest struct {
	Caller                string `json:"caller"`
	Token                 string `json:"token"`
	CollateralFactorBps   uint64 `json:"collateralFactorBps"`
	CollateralValueLimit  uint64 `json:"collateralValueLimitBps"`
	CollateralValueIsSet  bool   `json:"collateralValueLimitSet"`
}

func (s *Server) setTokenConfig(w http.ResponseWriter, r *http.Request) {
	var req tokenConfigRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var limitFactor *big.Int
	if req.CollateralValueIsSet {
		limitFactor = vault.FractionFromBps(req.CollateralValueLimit)
	}
	factor := vault.FractionFromBps(req.CollateralFactorBps)
	if err := s.engine.SetTokenConfig(caller, token, factor, limitFactor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token.Hex()})
}

type globalLimitsRequest struct {
	Caller      string `json:"caller"`
	LendLimit   string `json:"lendLimit"`
	DebtLimit   string `json:"debtLimit"`
	MinLoanSize string `json:"minLoanSize"`
}

func (s *Server) setGlobalLimits(w http.ResponseWriter, r *http.Request) {
	var req globalLimitsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	lendLimit, err := parseAmount("lendLimit", req.LendLimit)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	debtLimit, err := parseAmount("debtLimit", req.DebtLimit)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	minLoan, err := parseAmount("minLoanSize", req.MinLoanSize)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.SetGlobalLimits(caller, lendLimit, debtLimit, minLoan); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

type dailyLimitsRequest struct {
	Caller  string `json:"caller"`
	LendMin string `json:"lendMin"`
	DebtMin string `json:"debtMin"`
	Force   bool   `json:"force"`
}

func (s *Server) setDailyLimits(w http.ResponseWriter, r *http.Request) {
	var req dailyLimitsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	lendMin, err := parseAmount("lendMin", req.LendMin)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	debtMin, err := parseAmount("debtMin", req.DebtMin)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.SetDailyLimits(caller, lendMin, debtMin, req.Force); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

type factorRequest struct {
	Caller    string `json:"caller"`
	FactorBps uint64 `json:"factorBps"`
}

func (s *Server) setReserveFactor(w http.ResponseWriter, r *http.Request) {
	s.setFactor(w, r, s.engine.SetReserveFactor)
}

func (s *Server) setReserveProtection(w http.ResponseWriter, r *http.Request) {
	s.setFactor(w, r, s.engine.SetReserveProtectionFactor)
}

func (s *Server) setFactor(w http.ResponseWriter, r *http.Request, apply func(common.Address, *big.Int) error) {
	var req factorRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := apply(caller, vault.FractionFromBps(req.FactorBps)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

type removeTransformerRequest struct {
	Caller string `json:"caller"`
	Agent  string `json:"agent"`
}

func (s *Server) removeTransformer(w http.ResponseWriter, r *http.Request) {
	var req removeTransformerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	agent, err := parseAddress("agent", req.Agent)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.RemoveTransformer(caller, agent); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

type pauseRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if caller != s.engine.Admin() {
		writeError(w, vault.ErrUnauthorized)
		return
	}
	s.switches.SetPaused(vault.ModuleName, req.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

type quoteRequest struct {
	Token    string `json:"token"`
	PriceX64 string `json:"priceX64"`
	Source   string `json:"source,omitempty"`
}

func (s *Server) submitQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	price, err := parseAmount("priceX64", req.PriceX64)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	quote := oracle.Quote{PriceX64: price, Timestamp: uint64(time.Now().Unix()), Source: req.Source}
	if err := s.valuer.SubmitQuote(token, quote); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"token": token.Hex()})
}

type mintPositionRequest struct {
	Owner     string `json:"owner"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Liquidity string `json:"liquidity"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
	Fees0     string `json:"fees0"`
	Fees1     string `json:"fees1"`
	Price0X64 string `json:"price0X64"`
	Price1X64 string `json:"price1X64"`
}

func (s *Server) mintPosition(w http.ResponseWriter, r *http.Request) {
	var req mintPositionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	token0, err := parseAddress("token0", req.Token0)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	token1, err := parseAddress("token1", req.Token1)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amounts := make(map[string]*big.Int, 7)
	for field, raw := range map[string]string{
		"liquidity": req.Liquidity,
		"amount0":   req.Amount0,
		"amount1":   req.Amount1,
		"fees0":     req.Fees0,
		"fees1":     req.Fees1,
		"price0X64": req.Price0X64,
		"price1X64": req.Price1X64,
	} {
		amount, err := parseAmount(field, raw)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		amounts[field] = amount
	}
	id := s.positions.Register(owner, vault.PositionBreakdown{
		Token0:    token0,
		Token1:    token1,
		Liquidity: amounts["liquidity"],
		Amount0:   amounts["amount0"],
		Amount1:   amounts["amount1"],
		Fees0:     amounts["fees0"],
		Fees1:     amounts["fees1"],
	}, amounts["price0X64"], amounts["price1X64"])
	writeJSON(w, http.StatusCreated, map[string]uint64{"positionId": id})
}
