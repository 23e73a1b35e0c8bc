package ledger

import (
	"context"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
)

// CashRequest is a teller deposit or withdrawal. ExternalCode carries the
// mobile-money receipt when there is one.
type CashRequest struct {
	AccountID    int64
	Amount       decimal.Decimal
	ExternalCode string
	Reference    string
	StaffID      int64
}

func (r CashRequest) posting(kind models.EntryKind) Posting {
	return Posting{
		AccountID:    r.AccountID,
		Kind:         kind,
		Amount:       r.Amount,
		Reference:    r.Reference,
		ExternalCode: r.ExternalCode,
		ProcessedBy:  r.StaffID,
	}
}

// Deposit credits cash to an account.
func (l *Ledger) Deposit(ctx context.Context, r CashRequest) (*models.LedgerEntry, error) {
	return l.Credit(ctx, r.posting(models.EntryDeposit))
}

// Withdraw debits cash from an account.
func (l *Ledger) Withdraw(ctx context.Context, r CashRequest) (*models.LedgerEntry, error) {
	return l.Debit(ctx, r.posting(models.EntryWithdrawal))
}

// ChargeRegistrationFee debits the member's registration fee from their
// savings account and marks the fee paid. A member is charged at most once.
// A zero fee is marked paid without writing an entry, so the returned entry
// is nil in that case.
func (l *Ledger) ChargeRegistrationFee(ctx context.Context, memberID, staffID int64) (*models.Member, *models.LedgerEntry, error) {
	if staffID <= 0 {
		return nil, nil, apperr.Validation("processed_by", "staff id is required")
	}
	var member *models.Member
	var entry *models.LedgerEntry
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		member, err = tx.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member.RegistrationFeePaid {
			return apperr.Conflict("member", "registration fee for member %d is already paid", memberID)
		}
		if !member.RegistrationFee.IsZero() {
			if err := ValidateAmount("registration_fee", member.RegistrationFee); err != nil {
				return err
			}
			savings, err := tx.FindAccount(ctx, memberID, models.AccountSavings)
			if err != nil {
				return err
			}
			entry, err = l.ApplyDebit(ctx, tx, Posting{
				AccountID:   savings.ID,
				Kind:        models.EntryRegistrationFee,
				Amount:      member.RegistrationFee,
				Reference:   "Registration fee",
				ProcessedBy: staffID,
			})
			if err != nil {
				return err
			}
		}
		if err := tx.MarkRegistrationFeePaid(ctx, memberID); err != nil {
			return err
		}
		member.RegistrationFeePaid = true
		return nil
	})
	if err != nil {
		return nil, nil, apperr.Wrap("charge registration fee", err)
	}
	return member, entry, nil
}
