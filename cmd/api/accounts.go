package main

import (
	"net/http"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/ledger"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/transfer"
	"github.com/shopspring/decimal"
)

func (s *Server) createMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code            string           `json:"member_code"`
		GroupID         *int64           `json:"group_id"`
		BranchID        *int64           `json:"branch_id"`
		RegistrationFee *decimal.Decimal `json:"registration_fee"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Code == "" {
		s.writeError(w, r, apperr.Validation("member_code", "is required"))
		return
	}
	fee := s.cfg.DefaultRegistrationFee
	if req.RegistrationFee != nil {
		fee = *req.RegistrationFee
	}
	if fee.IsNegative() || !models.HasMoneyPrecision(fee) {
		s.writeError(w, r, apperr.Validation("registration_fee", "must be a non-negative amount with at most 2 decimal places"))
		return
	}

	member := &models.Member{
		Code:            req.Code,
		GroupID:         req.GroupID,
		BranchID:        req.BranchID,
		RegistrationFee: fee,
		Status:          models.MemberPending,
	}
	accounts, err := s.store.CreateMember(r.Context(), member)
	if err != nil {
		s.writeError(w, r, apperr.Wrap("create member", err))
		return
	}
	s.log.WithField("member_code", member.Code).WithField("staff_id", staffID(r)).Info("Member registered")
	writeJSON(w, http.StatusCreated, map[string]any{"member": member, "accounts": accounts})
}

func (s *Server) getMemberHandler(w http.ResponseWriter, r *http.Request) {
	member, err := s.store.GetMember(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, apperr.Wrap("get member", err))
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) registrationFeeHandler(w http.ResponseWriter, r *http.Request) {
	member, entry, err := s.accounts.ChargeRegistrationFee(r.Context(), pathID(r), staffID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"member": member, "entry": entry})
}

func (s *Server) getAccountHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := s.store.GetAccount(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, apperr.Wrap("get account", err))
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	cursor, err := cursorFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.accounts.History(r.Context(), pathID(r), cursor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type cashBody struct {
	Amount       decimal.Decimal `json:"amount"`
	ExternalCode string          `json:"external_code"`
	Reference    string          `json:"reference"`
}

func (s *Server) cashRequest(r *http.Request) (ledger.CashRequest, error) {
	var body cashBody
	if err := decode(r, &body); err != nil {
		return ledger.CashRequest{}, err
	}
	return ledger.CashRequest{
		AccountID:    pathID(r),
		Amount:       body.Amount,
		ExternalCode: body.ExternalCode,
		Reference:    body.Reference,
		StaffID:      staffID(r),
	}, nil
}

func (s *Server) depositHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.cashRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.accounts.Deposit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) withdrawHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.cashRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.accounts.Withdraw(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.accounts.Reconcile(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) transferHandler(w http.ResponseWriter, r *http.Request) {
	var req transfer.Request
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.StaffID = staffID(r)
	res, err := s.transfers.Transfer(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	branch, err := queryInt(r, "branch_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sum, err := s.portfolio.Summary(r.Context(), branch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
