package ledger

import (
	"context"
	"encoding/json"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
)

// Page is one slice of an account's history, newest first. NextBeforeID is
// zero on the last page.
type Page struct {
	Entries      []*models.LedgerEntry `json:"entries"`
	NextBeforeID int64                 `json:"next_before_id,omitempty"`
}

// History returns entries for accountID, newest first, starting below
// cursor.BeforeID.
func (l *Ledger) History(ctx context.Context, accountID int64, cursor store.Cursor) (*Page, error) {
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return nil, apperr.Wrap("history", err)
	}
	cursor = cursor.Normalize()
	entries, err := l.store.ListEntries(ctx, accountID, cursor)
	if err != nil {
		return nil, apperr.Wrap("history", err)
	}
	page := &Page{Entries: entries}
	if page.Entries == nil {
		page.Entries = []*models.LedgerEntry{}
	}
	if len(entries) == cursor.Limit {
		page.NextBeforeID = entries[len(entries)-1].ID
	}
	return page, nil
}

// Reconciliation reports whether an account's entries replay to its balance.
type Reconciliation struct {
	AccountID     int64           `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	ReplayedTotal decimal.Decimal `json:"replayed_total"`
	Entries       int             `json:"entries"`
	Consistent    bool            `json:"consistent"`
	BrokenAt      string          `json:"broken_at,omitempty"`
}

func (r Reconciliation) MarshalJSON() ([]byte, error) {
	type plain Reconciliation
	return json.Marshal(struct {
		plain
		Balance       string `json:"balance"`
		ReplayedTotal string `json:"replayed_total"`
	}{plain(r), models.FormatMoney(r.Balance), models.FormatMoney(r.ReplayedTotal)})
}

// Reconcile replays an account's entries oldest first. The chain is
// consistent when every entry starts at the previous entry's balance_after,
// applies its own amount, and the last balance_after equals the balance.
func (l *Ledger) Reconcile(ctx context.Context, accountID int64) (*Reconciliation, error) {
	acc, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, apperr.Wrap("reconcile", err)
	}
	entries, err := l.store.AllEntries(ctx, accountID)
	if err != nil {
		return nil, apperr.Wrap("reconcile", err)
	}

	r := &Reconciliation{AccountID: acc.ID, Balance: acc.Balance, Entries: len(entries), Consistent: true}
	running := decimal.Zero
	for _, e := range entries {
		want := e.BalanceBefore.Add(e.Amount)
		if e.Kind.IsDebit() {
			want = e.BalanceBefore.Sub(e.Amount)
		}
		if !e.BalanceBefore.Equal(running) || !e.BalanceAfter.Equal(want) {
			r.Consistent = false
			r.BrokenAt = e.EntryID
			break
		}
		running = e.BalanceAfter
	}
	r.ReplayedTotal = running
	if r.Consistent && !running.Equal(acc.Balance) {
		r.Consistent = false
	}
	if !r.Consistent {
		l.log.WithField("account_id", acc.ID).WithField("broken_at", r.BrokenAt).Warn("Account failed reconciliation")
	}
	return r, nil
}
