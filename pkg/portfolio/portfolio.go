// Package portfolio computes read-only aggregates over loans, accounts and
// stock for dashboards. Nothing here writes.
package portfolio

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/stock"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
)

// Money is a decimal that serializes with exactly two fractional digits.
type Money struct {
	decimal.Decimal
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(models.FormatMoney(m.Decimal))
}

func (m Money) add(d decimal.Decimal) Money {
	return Money{m.Decimal.Add(d)}
}

// Summary is a point-in-time view of the loan book.
type Summary struct {
	GeneratedAt         time.Time                    `json:"generated_at"`
	BranchID            int64                        `json:"branch_id,omitempty"`
	TotalLoans          int                          `json:"total_loans"`
	LoansByStatus       map[models.LoanStatus]int    `json:"loans_by_status"`
	OutstandingByStatus map[models.LoanStatus]Money  `json:"outstanding_by_status"`
	OutstandingByBranch map[int64]Money              `json:"outstanding_by_branch"`
	TotalOutstanding    Money                        `json:"total_outstanding"`
	TotalDisbursed      Money                        `json:"total_disbursed"`
	BalancesByKind      map[models.AccountKind]Money `json:"balances_by_kind"`
	OverdueCount        int                          `json:"overdue_count"`
	PAR30               Money                        `json:"par_30_amount"`
	PAR30Ratio          Money                        `json:"par_30_ratio"`
	PAR90               Money                        `json:"par_90_amount"`
	PAR90Ratio          Money                        `json:"par_90_ratio"`
	LowStock            []stock.Alert                `json:"low_stock"`
	CriticalStock       []stock.Alert                `json:"critical_stock"`
}

// Service builds summaries.
type Service struct {
	store     store.Reader
	inventory *stock.Ledger
	now       func() time.Time
}

func NewService(s store.Reader, inventory *stock.Ledger) *Service {
	return &Service{store: s, inventory: inventory, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the time source used for overdue and PAR cut-offs.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

var hundred = decimal.NewFromInt(100)

// ratio returns part as a percentage of whole, zero when whole is zero.
func ratio(part, whole decimal.Decimal) Money {
	if whole.IsZero() {
		return Money{decimal.Zero}
	}
	return Money{models.RoundMoney(part.Mul(hundred).Div(whole))}
}

// Summary aggregates the whole book, or one branch when branchID is not zero.
// Outstanding, overdue and PAR figures count disbursed loans only; a loan is
// in PAR30 (PAR90) when its due date is more than 30 (90) days past.
func (s *Service) Summary(ctx context.Context, branchID int64) (*Summary, error) {
	now := s.now()
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, apperr.Wrap("portfolio summary", err)
	}
	branchOf := make(map[int64]int64, len(members))
	for _, m := range members {
		if m.BranchID != nil {
			branchOf[m.ID] = *m.BranchID
		}
	}

	loans, err := s.store.ListLoans(ctx, store.LoanFilter{BranchID: branchID})
	if err != nil {
		return nil, apperr.Wrap("portfolio summary", err)
	}

	sum := &Summary{
		GeneratedAt:         now,
		BranchID:            branchID,
		TotalLoans:          len(loans),
		LoansByStatus:       map[models.LoanStatus]int{},
		OutstandingByStatus: map[models.LoanStatus]Money{},
		OutstandingByBranch: map[int64]Money{},
		BalancesByKind:      map[models.AccountKind]Money{models.AccountSavings: {}, models.AccountDrawdown: {}},
	}
	par30 := now.AddDate(0, 0, -30)
	par90 := now.AddDate(0, 0, -90)
	for _, l := range loans {
		sum.LoansByStatus[l.Status]++
		sum.OutstandingByStatus[l.Status] = sum.OutstandingByStatus[l.Status].add(l.OutstandingBalance)
		if l.Status == models.LoanDisbursed || l.Status == models.LoanCompleted {
			sum.TotalDisbursed = sum.TotalDisbursed.add(l.Principal)
		}
		if l.Status != models.LoanDisbursed {
			continue
		}
		sum.TotalOutstanding = sum.TotalOutstanding.add(l.OutstandingBalance)
		b := branchOf[l.MemberID]
		sum.OutstandingByBranch[b] = sum.OutstandingByBranch[b].add(l.OutstandingBalance)
		if l.IsOverdue(now) {
			sum.OverdueCount++
		}
		if l.DueDate.Before(par30) {
			sum.PAR30 = sum.PAR30.add(l.OutstandingBalance)
		}
		if l.DueDate.Before(par90) {
			sum.PAR90 = sum.PAR90.add(l.OutstandingBalance)
		}
	}
	sum.PAR30Ratio = ratio(sum.PAR30.Decimal, sum.TotalOutstanding.Decimal)
	sum.PAR90Ratio = ratio(sum.PAR90.Decimal, sum.TotalOutstanding.Decimal)

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, apperr.Wrap("portfolio summary", err)
	}
	for _, a := range accounts {
		if branchID != 0 && branchOf[a.MemberID] != branchID {
			continue
		}
		sum.BalancesByKind[a.Kind] = sum.BalancesByKind[a.Kind].add(a.Balance)
	}

	if sum.LowStock, err = s.inventory.LowStockReport(ctx, branchID); err != nil {
		return nil, err
	}
	if sum.CriticalStock, err = s.inventory.CriticalStockReport(ctx, branchID); err != nil {
		return nil, err
	}
	return sum, nil
}
