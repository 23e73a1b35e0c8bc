package loan

import (
	"context"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/ledger"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RepayRequest pays Amount off a loan from one of the borrower's accounts.
type RepayRequest struct {
	LoanID       int64           `json:"-"`
	AccountID    int64           `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	ExternalCode string          `json:"external_code,omitempty"`
	StaffID      int64           `json:"-"`
}

// Repay debits the account and reduces the loan's outstanding balance. A
// payment larger than the outstanding balance is rejected. The loan completes
// when nothing is left outstanding.
func (e *Engine) Repay(ctx context.Context, r RepayRequest) (*models.Loan, *models.LedgerEntry, error) {
	if err := ledger.ValidateAmount("amount", r.Amount); err != nil {
		return nil, nil, err
	}
	if r.StaffID <= 0 {
		return nil, nil, apperr.Validation("processed_by", "staff id is required")
	}
	var loan *models.Loan
	var entry *models.LedgerEntry
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		loan, err = tx.LockLoan(ctx, r.LoanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanDisbursed {
			return apperr.Conflict("loan", "loan %s is %s, only disbursed loans take repayments", loan.LoanNumber, loan.Status)
		}
		acc, err := tx.GetAccount(ctx, r.AccountID)
		if err != nil {
			return err
		}
		if acc.MemberID != loan.MemberID {
			return apperr.Validation("account_id", "account %d does not belong to the borrower", acc.ID)
		}
		if r.Amount.GreaterThan(loan.OutstandingBalance) {
			return apperr.Validation("amount", "%s exceeds the outstanding balance %s",
				models.FormatMoney(r.Amount), models.FormatMoney(loan.OutstandingBalance))
		}

		entry, err = e.accounts.ApplyDebit(ctx, tx, ledger.Posting{
			AccountID:    acc.ID,
			Kind:         models.EntryLoanRepayment,
			Amount:       r.Amount,
			LoanID:       &loan.ID,
			Reference:    "Loan repayment " + loan.LoanNumber,
			ExternalCode: r.ExternalCode,
			ProcessedBy:  r.StaffID,
		})
		if err != nil {
			return err
		}

		now := e.now()
		loan.OutstandingBalance = loan.OutstandingBalance.Sub(r.Amount)
		loan.UpdatedAt = now
		if loan.OutstandingBalance.IsZero() {
			if err := transition(loan, models.LoanCompleted); err != nil {
				return err
			}
			loan.ClosedDate = &now
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{
			"loan_number": loan.LoanNumber,
			"amount":      models.FormatMoney(r.Amount),
			"outstanding": models.FormatMoney(loan.OutstandingBalance),
			"status":      loan.Status,
			"staff_id":    r.StaffID,
		}).Info("Loan repayment recorded")
		return nil
	})
	if err != nil {
		return nil, nil, apperr.Wrap("repay loan", err)
	}
	return loan, entry, nil
}
