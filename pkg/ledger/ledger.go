// Package ledger owns member account balances. Every balance change goes
// through Ledger and leaves exactly one immutable entry recording the balance
// before and after it.
package ledger

import (
	"context"
	"time"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/ids"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Posting describes one balance change.
type Posting struct {
	AccountID    int64
	Kind         models.EntryKind
	Amount       decimal.Decimal
	LoanID       *int64
	TransferID   string
	Reference    string
	ExternalCode string
	ProcessedBy  int64
}

// Ledger is the account ledger.
type Ledger struct {
	store store.Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewLedger creates a Ledger over s.
func NewLedger(s store.Store, log *logrus.Logger) *Ledger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{
		store: s,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for entry timestamps and ids.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// ValidateAmount rejects non-positive amounts and amounts with more than two
// fractional digits.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation(field, "must be greater than zero")
	}
	if !models.HasMoneyPrecision(amount) {
		return apperr.Validation(field, "must have at most %d decimal places", models.MoneyPlaces)
	}
	return nil
}

func validate(p Posting, credit bool) error {
	if err := ValidateAmount("amount", p.Amount); err != nil {
		return err
	}
	if credit && !p.Kind.IsCredit() {
		return apperr.Validation("kind", "%q is not a credit entry kind", p.Kind)
	}
	if !credit && !p.Kind.IsDebit() {
		return apperr.Validation("kind", "%q is not a debit entry kind", p.Kind)
	}
	if p.ProcessedBy <= 0 {
		return apperr.Validation("processed_by", "staff id is required")
	}
	return nil
}

// Debit decreases an account balance by p.Amount. It fails with
// InsufficientFunds when the balance is smaller than the amount.
func (l *Ledger) Debit(ctx context.Context, p Posting) (*models.LedgerEntry, error) {
	if err := validate(p, false); err != nil {
		return nil, err
	}
	var entry *models.LedgerEntry
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		entry, err = l.ApplyDebit(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("debit", err)
	}
	return entry, nil
}

// Credit increases an account balance by p.Amount.
func (l *Ledger) Credit(ctx context.Context, p Posting) (*models.LedgerEntry, error) {
	if err := validate(p, true); err != nil {
		return nil, err
	}
	var entry *models.LedgerEntry
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		entry, err = l.ApplyCredit(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("credit", err)
	}
	return entry, nil
}

// ApplyDebit is Debit inside a transaction owned by the caller.
func (l *Ledger) ApplyDebit(ctx context.Context, tx store.Tx, p Posting) (*models.LedgerEntry, error) {
	if err := validate(p, false); err != nil {
		return nil, err
	}
	return l.apply(ctx, tx, p, p.Amount.Neg())
}

// ApplyCredit is Credit inside a transaction owned by the caller.
func (l *Ledger) ApplyCredit(ctx context.Context, tx store.Tx, p Posting) (*models.LedgerEntry, error) {
	if err := validate(p, true); err != nil {
		return nil, err
	}
	return l.apply(ctx, tx, p, p.Amount)
}

func (l *Ledger) apply(ctx context.Context, tx store.Tx, p Posting, delta decimal.Decimal) (*models.LedgerEntry, error) {
	acc, err := tx.LockAccount(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}

	before := acc.Balance
	after := before.Add(delta)
	if after.IsNegative() {
		return nil, apperr.InsufficientFunds(acc.ID, before, p.Amount)
	}

	now := l.now()
	acc.Balance = after
	acc.UpdatedAt = now
	if err := tx.UpdateAccountBalance(ctx, acc); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		EntryID:       ids.EntryID(now),
		AccountID:     acc.ID,
		MemberID:      acc.MemberID,
		AccountKind:   acc.Kind,
		Kind:          p.Kind,
		Amount:        p.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		LoanID:        p.LoanID,
		TransferID:    p.TransferID,
		Reference:     p.Reference,
		ExternalCode:  p.ExternalCode,
		ProcessedBy:   p.ProcessedBy,
		CreatedAt:     now,
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"entry_id":   entry.EntryID,
		"account_id": acc.ID,
		"kind":       entry.Kind,
		"amount":     models.FormatMoney(entry.Amount),
		"balance":    models.FormatMoney(after),
		"staff_id":   p.ProcessedBy,
	}).Info("Ledger entry posted")
	return entry, nil
}
