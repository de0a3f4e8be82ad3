package rpc

import (
	"fmt"
	"net/http"
)

type marketResponse struct {
	LendSharesTotal string `json:"lendSharesTotal"`
	DebtSharesTotal string `json:"debtSharesTotal"`
	LendRateX64     string `json:"lendRateX64"`
	DebtRateX64     string `json:"debtRateX64"`
	LastRateUpdate  uint64 `json:"lastRateUpdate"`
	DailyLendLeft   string `json:"dailyLendLeft"`
	DailyDebtLeft   string `json:"dailyDebtLeft"`
}

func (s *Server) getMarket(w http.ResponseWriter, _ *http.Request) {
	market, err := s.engine.MarketInfo()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marketResponse{
		LendSharesTotal: bigString(market.LendSharesTotal),
		DebtSharesTotal: bigString(market.DebtSharesTotal),
		LendRateX64:     bigString(market.LendRateX64),
		DebtRateX64:     bigString(market.DebtRateX64),
		LastRateUpdate:  market.LastRateUpdate,
		DailyLendLeft:   bigString(market.DailyLend.Left),
		DailyDebtLeft:   bigString(market.DailyDebt.Left),
	})
}

type lenderResponse struct {
	Address string `json:"address"`
	Shares  string `json:"shares"`
}

func (s *Server) getLender(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	lender, err := s.engine.LenderInfo(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lenderResponse{
		Address: lender.Address.Hex(),
		Shares:  bigString(lender.Shares),
	})
}

type poolMoveRequest struct {
	Lender string `json:"lender"`
	Assets string `json:"assets,omitempty"`
	Shares string `json:"shares,omitempty"`
}

type poolMoveResponse struct {
	Assets string `json:"assets"`
	Shares string `json:"shares"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req poolMoveRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	lender, err := parseAddress("lender", req.Lender)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	assets, err := parseAmount("assets", req.Assets)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	shares, err := s.engine.Deposit(lender, assets)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolMoveResponse{Assets: req.Assets, Shares: bigString(shares)})
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	var req poolMoveRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	lender, err := parseAddress("lender", req.Lender)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	assets, err := s.engine.Redeem(lender, shares)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolMoveResponse{Assets: bigString(assets), Shares: req.Shares})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req poolMoveRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	lender, err := parseAddress("lender", req.Lender)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	assets, err := parseAmount("assets", req.Assets)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	shares, err := s.engine.Withdraw(lender, assets)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolMoveResponse{Assets: req.Assets, Shares: bigString(shares)})
}

// preview quotes a pool move without touching state. The operation is
// selected with ?op=deposit|redeem|withdraw and the input with ?amount=.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	op := r.URL.Query().Get("op")
	amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var result *vaultPreview
	switch op {
	case "deposit":
		shares, err := s.engine.PreviewDeposit(amount)
		if err != nil {
			writeError(w, err)
			return
		}
		result = &vaultPreview{Op: op, In: bigString(amount), Out: bigString(shares)}
	case "redeem":
		assets, err := s.engine.PreviewRedeem(amount)
		if err != nil {
			writeError(w, err)
			return
		}
		result = &vaultPreview{Op: op, In: bigString(amount), Out: bigString(assets)}
	case "withdraw":
		shares, err := s.engine.PreviewWithdraw(amount)
		if err != nil {
			writeError(w, err)
			return
		}
		result = &vaultPreview{Op: op, In: bigString(amount), Out: bigString(shares)}
	default:
		writeBadRequest(w, fmt.Errorf("op: unknown preview operation %q", op))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type vaultPreview struct {
	Op  string `json:"op"`
	In  string `json:"in"`
	Out string `json:"out"`
}

type reservesResponse struct {
	Available string `json:"available"`
	Reserves  string `json:"reserves"`
}

func (s *Server) getReserves(w http.ResponseWriter, _ *http.Request) {
	available, reserves, err := s.engine.ReserveBalances()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservesResponse{
		Available: bigString(available),
		Reserves:  bigString(reserves),
	})
}

type reserveWithdrawRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

func (s *Server) withdrawReserves(w http.ResponseWriter, r *http.Request) {
	var req reserveWithdrawRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	withdrawn, err := s.engine.WithdrawReserves(caller, recipient, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"withdrawn": bigString(withdrawn)})
}
