// Package storetest builds SQLite-backed stores and fixtures for tests.
package storetest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Logger returns a logger that only reports warnings, keeping test output
// readable.
func Logger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

// New opens a fresh SQLite store in a temporary directory.
func New(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), Logger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var memberSeq atomic.Int64

// Member is a member with both of its accounts.
type Member struct {
	*models.Member
	Savings  *models.Account
	Drawdown *models.Account
}

// NewMember creates a member in branch with the standard 800.00 registration
// fee.
func NewMember(t *testing.T, s store.Store, branch int64) *Member {
	t.Helper()
	m := &models.Member{
		Code:            fmt.Sprintf("MB%04d", memberSeq.Add(1)),
		RegistrationFee: decimal.NewFromInt(800),
		Status:          models.MemberActive,
	}
	if branch != 0 {
		m.BranchID = &branch
	}
	accounts, err := s.CreateMember(context.Background(), m)
	require.NoError(t, err)

	out := &Member{Member: m}
	for _, a := range accounts {
		switch a.Kind {
		case models.AccountSavings:
			out.Savings = a
		case models.AccountDrawdown:
			out.Drawdown = a
		}
	}
	return out
}

// Fund writes a balance and its opening deposit entry directly, bypassing the
// ledger.
func Fund(t *testing.T, s store.Store, account *models.Account, amount string) {
	t.Helper()
	ctx := context.Background()
	amt := decimal.RequireFromString(amount)
	err := s.WithTx(ctx, func(tx store.Tx) error {
		acc, err := tx.LockAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		before := acc.Balance
		acc.Balance = before.Add(amt)
		if err := tx.UpdateAccountBalance(ctx, acc); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, &models.LedgerEntry{
			EntryID:       fmt.Sprintf("TXN-FUND-%d-%s", acc.ID, acc.Balance.String()),
			AccountID:     acc.ID,
			MemberID:      acc.MemberID,
			AccountKind:   acc.Kind,
			Kind:          models.EntryDeposit,
			Amount:        amt,
			BalanceBefore: before,
			BalanceAfter:  acc.Balance,
			ProcessedBy:   1,
			CreatedAt:     acc.UpdatedAt,
		})
	})
	require.NoError(t, err)
}

// NewProduct creates an active product with the given selling price and
// opening stock.
func NewProduct(t *testing.T, s store.Store, name, price string, stock int64) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:                   name,
		BuyingPrice:            decimal.RequireFromString(price).Mul(decimal.RequireFromString("0.8")).Round(2),
		SellingPrice:           decimal.RequireFromString(price),
		StockQuantity:          stock,
		LowStockThreshold:      10,
		CriticalStockThreshold: 3,
		IsActive:               true,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

// NewLoanType creates an active loan type. rate and fee are percentages.
func NewLoanType(t *testing.T, s store.Store, rate, fee, min, max string, months int) *models.LoanType {
	t.Helper()
	lt := &models.LoanType{
		Name:           fmt.Sprintf("Type %s/%s %s-%s", rate, fee, min, max),
		InterestRate:   decimal.RequireFromString(rate),
		InterestMode:   models.InterestFlat,
		FeePercentage:  decimal.RequireFromString(fee),
		MinAmount:      decimal.RequireFromString(min),
		MaxAmount:      decimal.RequireFromString(max),
		DurationMonths: months,
		IsActive:       true,
	}
	require.NoError(t, s.CreateLoanType(context.Background(), lt))
	return lt
}
