// Package transfer moves value between a member's own accounts as a pair of
// linked ledger entries.
package transfer

import (
	"context"
	"fmt"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/ids"
	"github.com/mcclellann/imarisha/pkg/ledger"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Request moves Amount from one of a member's accounts to the other.
type Request struct {
	MemberID  int64              `json:"member_id"`
	From      models.AccountKind `json:"from_account"`
	To        models.AccountKind `json:"to_account"`
	Amount    decimal.Decimal    `json:"amount"`
	Reference string             `json:"reference,omitempty"`
	StaffID   int64              `json:"-"`
}

// Result holds both legs of a transfer. They share TransferID.
type Result struct {
	TransferID string              `json:"transfer_id"`
	Out        *models.LedgerEntry `json:"out"`
	In         *models.LedgerEntry `json:"in"`
}

// Service performs transfers.
type Service struct {
	store    store.Store
	accounts *ledger.Ledger
	log      *logrus.Logger
}

func NewService(s store.Store, accounts *ledger.Ledger, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: s, accounts: accounts, log: log}
}

func (r Request) validate() error {
	if err := ledger.ValidateAmount("amount", r.Amount); err != nil {
		return err
	}
	if !r.From.Valid() {
		return apperr.Validation("from_account", "unknown account kind %q", r.From)
	}
	if !r.To.Valid() {
		return apperr.Validation("to_account", "unknown account kind %q", r.To)
	}
	if r.From == r.To {
		return apperr.Validation("to_account", "must differ from from_account")
	}
	if r.StaffID <= 0 {
		return apperr.Validation("processed_by", "staff id is required")
	}
	return nil
}

// Transfer debits the source account and credits the destination in one
// transaction. Either both entries are written or neither is.
func (s *Service) Transfer(ctx context.Context, r Request) (*Result, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	reference := r.Reference
	if reference == "" {
		reference = fmt.Sprintf("Transfer from %s to %s", r.From, r.To)
	}
	res := &Result{TransferID: ids.TransferID()}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		from, err := tx.FindAccount(ctx, r.MemberID, r.From)
		if err != nil {
			return err
		}
		to, err := tx.FindAccount(ctx, r.MemberID, r.To)
		if err != nil {
			return err
		}

		// Lock in id order so opposite transfers cannot deadlock.
		first, second := from.ID, to.ID
		if second < first {
			first, second = second, first
		}
		if _, err := tx.LockAccount(ctx, first); err != nil {
			return err
		}
		if _, err := tx.LockAccount(ctx, second); err != nil {
			return err
		}

		res.Out, err = s.accounts.ApplyDebit(ctx, tx, ledger.Posting{
			AccountID:   from.ID,
			Kind:        models.EntryTransferOut,
			Amount:      r.Amount,
			TransferID:  res.TransferID,
			Reference:   reference,
			ProcessedBy: r.StaffID,
		})
		if err != nil {
			return err
		}
		res.In, err = s.accounts.ApplyCredit(ctx, tx, ledger.Posting{
			AccountID:   to.ID,
			Kind:        models.EntryTransferIn,
			Amount:      r.Amount,
			TransferID:  res.TransferID,
			Reference:   reference,
			ProcessedBy: r.StaffID,
		})
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("transfer", err)
	}

	s.log.WithFields(logrus.Fields{
		"transfer_id": res.TransferID,
		"member_id":   r.MemberID,
		"from":        r.From,
		"to":          r.To,
		"amount":      models.FormatMoney(r.Amount),
	}).Info("Transfer completed")
	return res, nil
}
