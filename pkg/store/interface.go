package store

import (
	"context"

	"github.com/mcclellann/imarisha/pkg/models"
)

// DefaultPageSize applies when a cursor carries no limit.
const DefaultPageSize = 50

// MaxPageSize caps a single page.
const MaxPageSize = 500

// Cursor pages newest-first lists by row id. A zero BeforeID starts from the
// newest row.
type Cursor struct {
	BeforeID int64
	Limit    int
}

// Normalize clamps the limit into [1, MaxPageSize].
func (c Cursor) Normalize() Cursor {
	if c.Limit <= 0 {
		c.Limit = DefaultPageSize
	}
	if c.Limit > MaxPageSize {
		c.Limit = MaxPageSize
	}
	if c.BeforeID < 0 {
		c.BeforeID = 0
	}
	return c
}

// LoanFilter narrows ListLoans. Zero values match everything.
type LoanFilter struct {
	Status   models.LoanStatus
	MemberID int64
	BranchID int64
}

// MovementFilter narrows ListMovements. Zero values match everything.
type MovementFilter struct {
	ProductID int64
	BranchID  int64
	LoanID    int64
	Kind      models.MovementKind
	Cursor    Cursor
}

// Reader holds the read-only queries. Not-found lookups return an
// apperr NotFound error.
type Reader interface {
	GetMember(ctx context.Context, id int64) (*models.Member, error)
	ListMembers(ctx context.Context) ([]*models.Member, error)

	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	FindAccount(ctx context.Context, memberID int64, kind models.AccountKind) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	ListEntries(ctx context.Context, accountID int64, cursor Cursor) ([]*models.LedgerEntry, error)
	AllEntries(ctx context.Context, accountID int64) ([]*models.LedgerEntry, error)

	GetLoanType(ctx context.Context, id int64) (*models.LoanType, error)
	GetLoan(ctx context.Context, id int64) (*models.Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]*models.Loan, error)
	GetLoanItems(ctx context.Context, loanID int64) ([]models.LoanLineItem, error)

	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]*models.Product, error)
	GetBranchStock(ctx context.Context, branchID, productID int64) (*models.BranchStock, error)
	ListBranchStock(ctx context.Context, branchID int64) ([]*models.BranchStock, error)
	AllocatedStock(ctx context.Context, productID int64) (int64, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]*models.StockMovement, error)
}

// Tx is one atomic unit of work. Lock* methods take a row lock held until the
// unit commits or rolls back.
type Tx interface {
	Reader

	LockMember(ctx context.Context, id int64) (*models.Member, error)
	MarkRegistrationFeePaid(ctx context.Context, memberID int64) error

	LockAccount(ctx context.Context, id int64) (*models.Account, error)
	UpdateAccountBalance(ctx context.Context, account *models.Account) error
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error

	LockProduct(ctx context.Context, id int64) (*models.Product, error)
	UpdateProductStock(ctx context.Context, product *models.Product) error
	LockBranchStock(ctx context.Context, branchID, productID int64) (*models.BranchStock, error)
	SaveBranchStock(ctx context.Context, stock *models.BranchStock) error
	InsertMovement(ctx context.Context, movement *models.StockMovement) error

	LockLoan(ctx context.Context, id int64) (*models.Loan, error)
	InsertLoan(ctx context.Context, loan *models.Loan) error
	UpdateLoan(ctx context.Context, loan *models.Loan) error
}

// Store is the persistence boundary of the ledger and loan engines.
type Store interface {
	Reader

	// WithTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Catalog writes owned by collaborators (member onboarding, product and
	// loan type administration).
	CreateMember(ctx context.Context, member *models.Member) ([]*models.Account, error)
	CreateLoanType(ctx context.Context, loanType *models.LoanType) error
	CreateProduct(ctx context.Context, product *models.Product) error

	Close() error
}
