package rpc

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type createLoanRequest struct {
	Owner      string `json:"owner"`
	PositionID uint64 `json:"positionId"`
}

func (s *Server) createLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.CreateLoan(owner, req.PositionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"positionId": req.PositionID})
}

type loanResponse struct {
	PositionID          uint64 `json:"positionId"`
	Owner               string `json:"owner"`
	DebtShares          string `json:"debtShares"`
	Debt                string `json:"debt"`
	CollateralFactorX64 string `json:"collateralFactorX64"`
	Token0              string `json:"token0"`
	Token1              string `json:"token1"`
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	loan, err := s.engine.LoanInfo(id)
	if err != nil {
		writeError(w, err)
		return
	}
	debt, err := s.engine.LoanDebt(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loanResponse{
		PositionID:          loan.PositionID,
		Owner:               loan.Owner.Hex(),
		DebtShares:          bigString(loan.DebtShares),
		Debt:                bigString(debt),
		CollateralFactorX64: bigString(loan.CollateralFactorX64),
		Token0:              loan.Token0.Hex(),
		Token1:              loan.Token1.Hex(),
	})
}

type borrowRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req borrowRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	shares, err := s.engine.Borrow(caller, id, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"amount": req.Amount,
		"shares": bigString(shares),
	})
}

type repayRequest struct {
	Payer string `json:"payer"`
	// Exactly one of Amount and Shares must be set.
	Amount string `json:"amount,omitempty"`
	Shares string `json:"shares,omitempty"`
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req repayRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	payer, err := parseAddress("payer", req.Payer)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseOptionalAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	shares, err := parseOptionalAmount("shares", req.Shares)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if (amount == nil) == (shares == nil) {
		writeBadRequest(w, errExactlyOneOf("amount", "shares"))
		return
	}

	input := amount
	isShares := false
	if shares != nil {
		input = shares
		isShares = true
	}
	repaid, err := s.engine.Repay(payer, id, input, isShares)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repaid": bigString(repaid)})
}

type liquidateRequest struct {
	Liquidator string `json:"liquidator"`
}

type liquidateResponse struct {
	Debt             string `json:"debt"`
	PenaltyX64       string `json:"penaltyX64"`
	LiquidationValue string `json:"liquidationValue"`
	LiquidatorCost   string `json:"liquidatorCost"`
	ReserveCost      string `json:"reserveCost"`
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	liquidator, err := parseAddress("liquidator", req.Liquidator)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	quote, err := s.engine.Liquidate(liquidator, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidateResponse{
		Debt:             bigString(quote.Debt),
		PenaltyX64:       bigString(quote.PenaltyX64),
		LiquidationValue: bigString(quote.LiquidationValue),
		LiquidatorCost:   bigString(quote.LiquidatorCost),
		ReserveCost:      bigString(quote.ReserveCost),
	})
}

type transformRequest struct {
	Caller string `json:"caller"`
	Agent  string `json:"agent"`
	// Payload is an opaque hex-encoded instruction blob handed to the agent.
	Payload string `json:"payload,omitempty"`
}

func (s *Server) transform(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req transformRequest
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
	var payload []byte
	if req.Payload != "" {
		payload, err = hexutil.Decode(req.Payload)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	newID, err := s.engine.Transform(caller, id, agent, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"positionId": newID})
}

type operatorRequest struct {
	Caller   string `json:"caller"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

func (s *Server) approveOperator(w http.ResponseWriter, r *http.Request) {
	id, err := positionID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req operatorRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	operator, err := parseAddress("operator", req.Operator)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.ApproveTransformOperator(caller, id, operator, req.Approved); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": req.Approved})
}
