package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind identifies which of a member's two accounts is meant.
type AccountKind string

const (
	AccountSavings  AccountKind = "savings"
	AccountDrawdown AccountKind = "drawdown"
)

// Valid reports whether k is one of the known account kinds.
func (k AccountKind) Valid() bool {
	return k == AccountSavings || k == AccountDrawdown
}

type MemberStatus string

const (
	MemberPending MemberStatus = "pending"
	MemberActive  MemberStatus = "active"
	MemberBlocked MemberStatus = "blocked"
)

// Member is the read-only view of a customer the ledger needs: its branch for
// aggregation and its registration fee state.
type Member struct {
	ID                  int64           `json:"id"`
	Code                string          `json:"member_code"`
	GroupID             *int64          `json:"group_id,omitempty"`
	BranchID            *int64          `json:"branch_id,omitempty"`
	RegistrationFee     decimal.Decimal `json:"registration_fee"`
	RegistrationFeePaid bool            `json:"registration_fee_paid"`
	Status              MemberStatus    `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Account holds a member balance. Balance is only ever written by the
// account ledger and never goes negative.
type Account struct {
	ID            int64           `json:"id"`
	MemberID      int64           `json:"member_id"`
	Kind          AccountKind     `json:"kind"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// EntryKind is the business meaning of a ledger entry. Each kind is either a
// credit or a debit, never both.
type EntryKind string

const (
	EntryDeposit          EntryKind = "deposit"
	EntryWithdrawal       EntryKind = "withdrawal"
	EntryLoanDisbursement EntryKind = "loan_disbursement"
	EntryLoanRepayment    EntryKind = "loan_repayment"
	EntryTransferOut      EntryKind = "transfer_out"
	EntryTransferIn       EntryKind = "transfer_in"
	EntryRegistrationFee  EntryKind = "registration_fee"
)

// IsCredit reports whether entries of this kind increase the balance.
func (k EntryKind) IsCredit() bool {
	switch k {
	case EntryDeposit, EntryLoanDisbursement, EntryTransferIn:
		return true
	}
	return false
}

// IsDebit reports whether entries of this kind decrease the balance.
func (k EntryKind) IsDebit() bool {
	switch k {
	case EntryWithdrawal, EntryLoanRepayment, EntryTransferOut, EntryRegistrationFee:
		return true
	}
	return false
}

// LedgerEntry is one immutable line of an account's history.
type LedgerEntry struct {
	ID            int64           `json:"-"`
	EntryID       string          `json:"entry_id"`
	AccountID     int64           `json:"account_id"`
	MemberID      int64           `json:"member_id"`
	AccountKind   AccountKind     `json:"account_kind"`
	Kind          EntryKind       `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	LoanID        *int64          `json:"loan_id,omitempty"`
	TransferID    string          `json:"transfer_id,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	ExternalCode  string          `json:"external_code,omitempty"`
	ProcessedBy   int64           `json:"processed_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

type InterestMode string

const (
	InterestFlat     InterestMode = "flat"
	InterestReducing InterestMode = "reducing"
)

func (m InterestMode) Valid() bool {
	return m == InterestFlat || m == InterestReducing
}

// LoanType is the policy a loan is originated under. Rates are percentages.
type LoanType struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	InterestMode   InterestMode    `json:"interest_mode"`
	FeePercentage  decimal.Decimal `json:"fee_percentage"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	DurationMonths int             `json:"duration_months"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanDisbursed LoanStatus = "disbursed"
	LoanCompleted LoanStatus = "completed"
	LoanRejected  LoanStatus = "rejected"
	LoanDefaulted LoanStatus = "defaulted"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanPending:   {LoanApproved, LoanRejected},
	LoanApproved:  {LoanDisbursed},
	LoanDisbursed: {LoanCompleted, LoanDefaulted},
}

// Valid reports whether s is a known loan status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanPending, LoanApproved, LoanDisbursed, LoanCompleted, LoanRejected, LoanDefaulted:
		return true
	}
	return false
}

// CanTransition reports whether the loan state machine allows s -> next.
func (s LoanStatus) CanTransition(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s LoanStatus) IsTerminal() bool {
	return len(loanTransitions[s]) == 0
}

// Loan amounts are fixed at origination; only OutstandingBalance moves, and
// only downwards.
type Loan struct {
	ID                 int64           `json:"id"`
	LoanNumber         string          `json:"loan_number"`
	MemberID           int64           `json:"member_id"`
	LoanTypeID         int64           `json:"loan_type_id"`
	Principal          decimal.Decimal `json:"principal"`
	Interest           decimal.Decimal `json:"interest"`
	Fee                decimal.Decimal `json:"fee"`
	Total              decimal.Decimal `json:"total"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	Status             LoanStatus      `json:"status"`
	AppliedBy          int64           `json:"applied_by"`
	ApplicationDate    time.Time       `json:"application_date"`
	ApprovalDate       *time.Time      `json:"approval_date,omitempty"`
	DisbursementDate   *time.Time      `json:"disbursement_date,omitempty"`
	DueDate            time.Time       `json:"due_date"`
	ClosedDate         *time.Time      `json:"closed_date,omitempty"`
	ApprovedBy         *int64          `json:"approved_by,omitempty"`
	DisbursedBy        *int64          `json:"disbursed_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Items              []LoanLineItem  `json:"items,omitempty"`
}

// IsOverdue is derived, never stored.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.Status == LoanDisbursed && l.DueDate.Before(now)
}

type LoanLineItem struct {
	ID        int64           `json:"id"`
	LoanID    int64           `json:"loan_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	CreatedAt time.Time       `json:"created_at"`
}

// Product is an item of physical inventory that can back a loan.
type Product struct {
	ID                     int64           `json:"id"`
	Name                   string          `json:"name"`
	BuyingPrice            decimal.Decimal `json:"buying_price"`
	SellingPrice           decimal.Decimal `json:"selling_price"`
	StockQuantity          int64           `json:"stock_quantity"`
	LowStockThreshold      int64           `json:"low_stock_threshold"`
	CriticalStockThreshold int64           `json:"critical_stock_threshold"`
	IsActive               bool            `json:"is_active"`
	CreatedAt              time.Time       `json:"created_at"`
}

type BranchStock struct {
	BranchID          int64     `json:"branch_id"`
	ProductID         int64     `json:"product_id"`
	StockQuantity     int64     `json:"stock_quantity"`
	LowStockThreshold int64     `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type MovementKind string

const (
	MovementIn         MovementKind = "in"
	MovementOut        MovementKind = "out"
	MovementTransfer   MovementKind = "transfer"
	MovementAdjustment MovementKind = "adjustment"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementIn, MovementOut, MovementTransfer, MovementAdjustment:
		return true
	}
	return false
}

// Outbound reports whether the movement removes stock.
func (k MovementKind) Outbound() bool {
	return k == MovementOut || k == MovementTransfer
}

// Signed returns qty with the sign this movement applies to stock.
func (k MovementKind) Signed(qty int64) int64 {
	if k.Outbound() {
		return -qty
	}
	return qty
}

type StockMovement struct {
	ID              int64        `json:"id"`
	ProductID       int64        `json:"product_id"`
	BranchID        *int64       `json:"branch_id,omitempty"`
	Kind            MovementKind `json:"kind"`
	Quantity        int64        `json:"quantity"`
	SupplierID      *int64       `json:"supplier_id,omitempty"`
	LoanID          *int64       `json:"loan_id,omitempty"`
	ReferenceNumber string       `json:"reference_number,omitempty"`
	Note            string       `json:"note,omitempty"`
	ProcessedBy     int64        `json:"processed_by"`
	CreatedAt       time.Time    `json:"created_at"`
}
