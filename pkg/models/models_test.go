package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanStatusTransitions(t *testing.T) {
	allowed := map[LoanStatus][]LoanStatus{
		LoanPending:   {LoanApproved, LoanRejected},
		LoanApproved:  {LoanDisbursed},
		LoanDisbursed: {LoanCompleted, LoanDefaulted},
	}
	all := []LoanStatus{LoanPending, LoanApproved, LoanDisbursed, LoanCompleted, LoanRejected, LoanDefaulted}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, LoanCompleted.IsTerminal())
	assert.True(t, LoanRejected.IsTerminal())
	assert.True(t, LoanDefaulted.IsTerminal())
	assert.False(t, LoanDisbursed.IsTerminal())
}

func TestEntryKindDirection(t *testing.T) {
	credits := []EntryKind{EntryDeposit, EntryLoanDisbursement, EntryTransferIn}
	debits := []EntryKind{EntryWithdrawal, EntryLoanRepayment, EntryTransferOut, EntryRegistrationFee}

	for _, k := range credits {
		assert.True(t, k.IsCredit(), k)
		assert.False(t, k.IsDebit(), k)
	}
	for _, k := range debits {
		assert.True(t, k.IsDebit(), k)
		assert.False(t, k.IsCredit(), k)
	}
	assert.False(t, EntryKind("bonus").IsCredit())
	assert.False(t, EntryKind("bonus").IsDebit())
}

func TestMovementKindSigned(t *testing.T) {
	assert.Equal(t, int64(5), MovementIn.Signed(5))
	assert.Equal(t, int64(5), MovementAdjustment.Signed(5))
	assert.Equal(t, int64(-5), MovementOut.Signed(5))
	assert.Equal(t, int64(-5), MovementTransfer.Signed(5))
	assert.False(t, MovementKind("loss").Valid())
}

func TestLoanIsOverdue(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	loan := &Loan{Status: LoanDisbursed, DueDate: now.Add(-time.Hour)}
	assert.True(t, loan.IsOverdue(now))

	loan.DueDate = now.Add(time.Hour)
	assert.False(t, loan.IsOverdue(now))

	loan.DueDate = now.Add(-time.Hour)
	loan.Status = LoanCompleted
	assert.False(t, loan.IsOverdue(now))
}

func TestMoneyHelpers(t *testing.T) {
	assert.Equal(t, "700.00", FormatMoney(Percent(decimal.NewFromInt(20000), decimal.RequireFromString("3.5"))))
	assert.Equal(t, "0.13", FormatMoney(RoundMoney(decimal.RequireFromString("0.125"))))
	assert.True(t, HasMoneyPrecision(decimal.RequireFromString("10.25")))
	assert.False(t, HasMoneyPrecision(decimal.RequireFromString("10.255")))
}

func TestLoanJSONUsesFixedMoney(t *testing.T) {
	loan := Loan{
		ID:                 1,
		Principal:          decimal.NewFromInt(20000),
		Interest:           decimal.NewFromInt(700),
		Fee:                decimal.NewFromInt(800),
		Total:              decimal.NewFromInt(21500),
		OutstandingBalance: decimal.NewFromInt(21500),
		Status:             LoanPending,
	}

	raw, err := json.Marshal(loan)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "20000.00", out["principal"])
	assert.Equal(t, "21500.00", out["outstanding_balance"])
	assert.Equal(t, "pending", out["status"])

	var back Loan
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Total.Equal(loan.Total))
}
