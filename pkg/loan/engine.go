// Package loan originates loans and drives them through their lifecycle.
// Money moves through the account ledger and goods through the stock
// ledger, each change in the same transaction as the loan update it belongs
// to.
package loan

import (
	"context"
	"time"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/ids"
	"github.com/mcclellann/imarisha/pkg/ledger"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/stock"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/sirupsen/logrus"
)

// daysPerMonth converts a loan type's duration to a due date.
const daysPerMonth = 30

// Engine is the loan engine.
type Engine struct {
	store        store.Store
	accounts     *ledger.Ledger
	inventory    *stock.Ledger
	log          *logrus.Logger
	now          func() time.Time
	loanNumber   func(time.Time) string
	disbursement models.AccountKind
}

// NewEngine wires an Engine to the account and stock ledgers. Disbursements
// go to the member's drawdown account unless SetDisbursementAccount says
// otherwise.
func NewEngine(s store.Store, accounts *ledger.Ledger, inventory *stock.Ledger, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		store:        s,
		accounts:     accounts,
		inventory:    inventory,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		loanNumber:   ids.LoanNumber,
		disbursement: models.AccountDrawdown,
	}
}

// SetClock replaces the time source used for loan dates.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SetDisbursementAccount picks which member account receives disbursed
// principal.
func (e *Engine) SetDisbursementAccount(kind models.AccountKind) error {
	if !kind.Valid() {
		return apperr.Validation("disbursement_account", "unknown account kind %q", kind)
	}
	e.disbursement = kind
	return nil
}

// IsOverdue reports whether a disbursed loan is past its due date.
func IsOverdue(l *models.Loan, now time.Time) bool {
	return l.IsOverdue(now)
}

// transition moves l to next or reports why the state machine forbids it.
func transition(l *models.Loan, next models.LoanStatus) error {
	if !l.Status.CanTransition(next) {
		return apperr.Conflict("loan", "loan %s is %s and cannot become %s", l.LoanNumber, l.Status, next)
	}
	l.Status = next
	return nil
}

// Approve moves a pending loan to approved. Loans in any other status are
// returned unchanged.
func (e *Engine) Approve(ctx context.Context, loanID, staffID int64) (*models.Loan, error) {
	if staffID <= 0 {
		return nil, apperr.Validation("processed_by", "staff id is required")
	}
	var loan *models.Loan
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		loan, err = tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanPending {
			return nil
		}
		now := e.now()
		loan.Status = models.LoanApproved
		loan.ApprovalDate = &now
		loan.ApprovedBy = &staffID
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{"loan_number": loan.LoanNumber, "staff_id": staffID}).Info("Loan approved")
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap("approve loan", err)
	}
	return loan, nil
}

// Reject closes a pending loan and returns any goods deducted for it to
// the stock, and branch, they were taken from.
func (e *Engine) Reject(ctx context.Context, loanID, staffID int64) (*models.Loan, error) {
	if staffID <= 0 {
		return nil, apperr.Validation("processed_by", "staff id is required")
	}
	var loan *models.Loan
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		loan, err = tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := transition(loan, models.LoanRejected); err != nil {
			return err
		}
		taken, err := tx.ListMovements(ctx, store.MovementFilter{
			LoanID: loan.ID,
			Kind:   models.MovementOut,
			Cursor: store.Cursor{Limit: store.MaxPageSize},
		})
		if err != nil {
			return err
		}
		for _, mv := range sortedMovements(taken) {
			_, err := e.inventory.ApplyMovement(ctx, tx, stock.MovementRequest{
				ProductID:       mv.ProductID,
				BranchID:        mv.BranchID,
				Kind:            models.MovementIn,
				Quantity:        mv.Quantity,
				LoanID:          &loan.ID,
				ReferenceNumber: loan.LoanNumber,
				Note:            "returned from rejected loan",
				StaffID:         staffID,
			})
			if err != nil {
				return err
			}
		}
		now := e.now()
		loan.ClosedDate = &now
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{"loan_number": loan.LoanNumber, "staff_id": staffID}).Info("Loan rejected")
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap("reject loan", err)
	}
	return loan, nil
}

// Disburse credits an approved loan's principal to the member and marks the
// loan disbursed.
func (e *Engine) Disburse(ctx context.Context, loanID, staffID int64) (*models.Loan, *models.LedgerEntry, error) {
	if staffID <= 0 {
		return nil, nil, apperr.Validation("processed_by", "staff id is required")
	}
	var loan *models.Loan
	var entry *models.LedgerEntry
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		loan, err = tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := transition(loan, models.LoanDisbursed); err != nil {
			return err
		}
		acc, err := tx.FindAccount(ctx, loan.MemberID, e.disbursement)
		if err != nil {
			return err
		}
		entry, err = e.accounts.ApplyCredit(ctx, tx, ledger.Posting{
			AccountID:   acc.ID,
			Kind:        models.EntryLoanDisbursement,
			Amount:      loan.Principal,
			LoanID:      &loan.ID,
			Reference:   "Loan disbursement " + loan.LoanNumber,
			ProcessedBy: staffID,
		})
		if err != nil {
			return err
		}
		now := e.now()
		loan.DisbursementDate = &now
		loan.DisbursedBy = &staffID
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{
			"loan_number": loan.LoanNumber,
			"account_id":  acc.ID,
			"amount":      models.FormatMoney(loan.Principal),
			"staff_id":    staffID,
		}).Info("Loan disbursed")
		return nil
	})
	if err != nil {
		return nil, nil, apperr.Wrap("disburse loan", err)
	}
	return loan, entry, nil
}

// MarkDefaulted writes off a disbursed loan. The outstanding balance is kept
// for portfolio reporting.
func (e *Engine) MarkDefaulted(ctx context.Context, loanID, staffID int64) (*models.Loan, error) {
	if staffID <= 0 {
		return nil, apperr.Validation("processed_by", "staff id is required")
	}
	var loan *models.Loan
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		loan, err = tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := transition(loan, models.LoanDefaulted); err != nil {
			return err
		}
		now := e.now()
		loan.ClosedDate = &now
		loan.UpdatedAt = now
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		e.log.WithFields(logrus.Fields{
			"loan_number": loan.LoanNumber,
			"outstanding": models.FormatMoney(loan.OutstandingBalance),
			"staff_id":    staffID,
		}).Warn("Loan defaulted")
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap("default loan", err)
	}
	return loan, nil
}

// Get returns a loan with its line items.
func (e *Engine) Get(ctx context.Context, loanID int64) (*models.Loan, error) {
	loan, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, apperr.Wrap("get loan", err)
	}
	items, err := e.store.GetLoanItems(ctx, loanID)
	if err != nil {
		return nil, apperr.Wrap("get loan", err)
	}
	loan.Items = items
	return loan, nil
}

// List returns loans newest first.
func (e *Engine) List(ctx context.Context, filter store.LoanFilter) ([]*models.Loan, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation("status", "unknown loan status %q", filter.Status)
	}
	loans, err := e.store.ListLoans(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap("list loans", err)
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	return loans, nil
}

// Items returns a loan's line items.
func (e *Engine) Items(ctx context.Context, loanID int64) ([]models.LoanLineItem, error) {
	if _, err := e.store.GetLoan(ctx, loanID); err != nil {
		return nil, apperr.Wrap("loan items", err)
	}
	items, err := e.store.GetLoanItems(ctx, loanID)
	if err != nil {
		return nil, apperr.Wrap("loan items", err)
	}
	if items == nil {
		items = []models.LoanLineItem{}
	}
	return items, nil
}
