package main

import (
	"context"
	"net/http"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/loan"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
)

func (s *Server) createLoanTypeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string              `json:"name"`
		InterestRate   decimal.Decimal     `json:"interest_rate"`
		InterestMode   models.InterestMode `json:"interest_mode"`
		FeePercentage  decimal.Decimal     `json:"fee_percentage"`
		MinAmount      decimal.Decimal     `json:"min_amount"`
		MaxAmount      decimal.Decimal     `json:"max_amount"`
		DurationMonths int                 `json:"duration_months"`
		IsActive       *bool               `json:"is_active"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.InterestMode == "" {
		req.InterestMode = models.InterestFlat
	}
	var err error
	switch {
	case req.Name == "":
		err = apperr.Validation("name", "is required")
	case !req.InterestMode.Valid():
		err = apperr.Validation("interest_mode", "must be flat or reducing")
	case req.InterestRate.IsNegative():
		err = apperr.Validation("interest_rate", "must not be negative")
	case req.FeePercentage.IsNegative():
		err = apperr.Validation("fee_percentage", "must not be negative")
	case !req.MinAmount.IsPositive() || !models.HasMoneyPrecision(req.MinAmount):
		err = apperr.Validation("min_amount", "must be a positive amount with at most 2 decimal places")
	case req.MaxAmount.LessThan(req.MinAmount) || !models.HasMoneyPrecision(req.MaxAmount):
		err = apperr.Validation("max_amount", "must be at least min_amount with at most 2 decimal places")
	case req.DurationMonths <= 0:
		err = apperr.Validation("duration_months", "must be greater than zero")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	lt := &models.LoanType{
		Name:           req.Name,
		InterestRate:   req.InterestRate,
		InterestMode:   req.InterestMode,
		FeePercentage:  req.FeePercentage,
		MinAmount:      req.MinAmount,
		MaxAmount:      req.MaxAmount,
		DurationMonths: req.DurationMonths,
		IsActive:       req.IsActive == nil || *req.IsActive,
	}
	if err := s.store.CreateLoanType(r.Context(), lt); err != nil {
		s.writeError(w, r, apperr.Wrap("create loan type", err))
		return
	}
	writeJSON(w, http.StatusCreated, lt)
}

func (s *Server) originateLoanHandler(w http.ResponseWriter, r *http.Request) {
	var app loan.Application
	if err := decode(r, &app); err != nil {
		s.writeError(w, r, err)
		return
	}
	app.StaffID = staffID(r)
	l, err := s.loans.Originate(r.Context(), app)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	member, err := queryInt(r, "member_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	branch, err := queryInt(r, "branch_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loans, err := s.loans.List(r.Context(), store.LoanFilter{
		Status:   models.LoanStatus(r.URL.Query().Get("status")),
		MemberID: member,
		BranchID: branch,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	l, err := s.loans.Get(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) loanItemsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.loans.Items(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// transitionHandler adapts a loan state change that only needs the loan and
// the acting staff member.
func (s *Server) transitionHandler(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, loanID, staffID int64) (*models.Loan, error)) {
	l, err := fn(r.Context(), pathID(r), staffID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) approveLoanHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionHandler(w, r, s.loans.Approve)
}

func (s *Server) rejectLoanHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionHandler(w, r, s.loans.Reject)
}

func (s *Server) defaultLoanHandler(w http.ResponseWriter, r *http.Request) {
	s.transitionHandler(w, r, s.loans.MarkDefaulted)
}

func (s *Server) disburseLoanHandler(w http.ResponseWriter, r *http.Request) {
	l, entry, err := s.loans.Disburse(r.Context(), pathID(r), staffID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loan": l, "entry": entry})
}

func (s *Server) repayLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req loan.RepayRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.LoanID = pathID(r)
	req.StaffID = staffID(r)
	l, entry, err := s.loans.Repay(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"loan": l, "entry": entry})
}
