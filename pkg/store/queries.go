package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/models"
)

// queries implements Reader over a querier; the store uses the pool and
// txQueries a transaction.
type queries struct {
	q querier
	d dialect
}

type scanner interface {
	Scan(dest ...any) error
}

const (
	memberColumns      = `id, member_code, group_id, branch_id, registration_fee, registration_fee_paid, status, created_at`
	accountColumns     = `id, member_id, kind, account_number, balance, created_at, updated_at`
	entryColumns       = `id, entry_id, account_id, member_id, account_kind, kind, amount, balance_before, balance_after, loan_id, transfer_id, reference, external_code, processed_by, created_at`
	loanTypeColumns    = `id, name, interest_rate, interest_mode, fee_percentage, min_amount, max_amount, duration_months, is_active, created_at`
	loanColumns        = `id, loan_number, member_id, loan_type_id, principal, interest, fee, total, outstanding_balance, status, applied_by, application_date, approval_date, disbursement_date, due_date, closed_date, approved_by, disbursed_by, created_at, updated_at`
	lineItemColumns    = `id, loan_id, product_id, quantity, unit_price, line_total, created_at`
	productColumns     = `id, name, buying_price, selling_price, stock_quantity, low_stock_threshold, critical_stock_threshold, is_active, created_at`
	branchStockColumns = `branch_id, product_id, stock_quantity, low_stock_threshold, updated_at`
	movementColumns    = `id, product_id, branch_id, kind, quantity, supplier_id, loan_id, reference_number, note, processed_by, created_at`
)

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// notFound maps sql.ErrNoRows to a classified error and wraps the rest.
func notFound(err error, entity string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}

func scanMember(row scanner) (*models.Member, error) {
	var m models.Member
	var group, branch sql.NullInt64
	if err := row.Scan(&m.ID, &m.Code, &group, &branch, &m.RegistrationFee, &m.RegistrationFeePaid, &m.Status, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.GroupID = int64Ptr(group)
	m.BranchID = int64Ptr(branch)
	return &m, nil
}

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.MemberID, &a.Kind, &a.AccountNumber, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanEntry(row scanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var loanID sql.NullInt64
	var transferID, reference, external sql.NullString
	if err := row.Scan(&e.ID, &e.EntryID, &e.AccountID, &e.MemberID, &e.AccountKind, &e.Kind, &e.Amount,
		&e.BalanceBefore, &e.BalanceAfter, &loanID, &transferID, &reference, &external, &e.ProcessedBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.LoanID = int64Ptr(loanID)
	e.TransferID = transferID.String
	e.Reference = reference.String
	e.ExternalCode = external.String
	return &e, nil
}

func scanLoanType(row scanner) (*models.LoanType, error) {
	var lt models.LoanType
	if err := row.Scan(&lt.ID, &lt.Name, &lt.InterestRate, &lt.InterestMode, &lt.FeePercentage, &lt.MinAmount,
		&lt.MaxAmount, &lt.DurationMonths, &lt.IsActive, &lt.CreatedAt); err != nil {
		return nil, err
	}
	return &lt, nil
}

func scanLoan(row scanner) (*models.Loan, error) {
	var l models.Loan
	var approval, disbursement, closed sql.NullTime
	var approvedBy, disbursedBy sql.NullInt64
	if err := row.Scan(&l.ID, &l.LoanNumber, &l.MemberID, &l.LoanTypeID, &l.Principal, &l.Interest, &l.Fee, &l.Total,
		&l.OutstandingBalance, &l.Status, &l.AppliedBy, &l.ApplicationDate, &approval, &disbursement, &l.DueDate,
		&closed, &approvedBy, &disbursedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if approval.Valid {
		l.ApprovalDate = &approval.Time
	}
	if disbursement.Valid {
		l.DisbursementDate = &disbursement.Time
	}
	if closed.Valid {
		l.ClosedDate = &closed.Time
	}
	l.ApprovedBy = int64Ptr(approvedBy)
	l.DisbursedBy = int64Ptr(disbursedBy)
	return &l, nil
}

func scanProduct(row scanner) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.Name, &p.BuyingPrice, &p.SellingPrice, &p.StockQuantity, &p.LowStockThreshold,
		&p.CriticalStockThreshold, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanBranchStock(row scanner) (*models.BranchStock, error) {
	var b models.BranchStock
	if err := row.Scan(&b.BranchID, &b.ProductID, &b.StockQuantity, &b.LowStockThreshold, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanMovement(row scanner) (*models.StockMovement, error) {
	var m models.StockMovement
	var branch, supplier, loan sql.NullInt64
	var reference, note sql.NullString
	if err := row.Scan(&m.ID, &m.ProductID, &branch, &m.Kind, &m.Quantity, &supplier, &loan, &reference, &note,
		&m.ProcessedBy, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.BranchID = int64Ptr(branch)
	m.SupplierID = int64Ptr(supplier)
	m.LoanID = int64Ptr(loan)
	m.ReferenceNumber = reference.String
	m.Note = note.String
	return &m, nil
}

// collect drains rows through scan.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return out, nil
}

func (s queries) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT `+memberColumns+` FROM members WHERE id = ?`), id)
	m, err := scanMember(row)
	if err != nil {
		return nil, notFound(err, "member", id)
	}
	return m, nil
}

func (s queries) ListMembers(ctx context.Context) ([]*models.Member, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return collect(rows, scanMember)
}

func (s queries) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return a, nil
}

func (s queries) FindAccount(ctx context.Context, memberID int64, kind models.AccountKind) (*models.Account, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT `+accountColumns+` FROM accounts WHERE member_id = ? AND kind = ?`), memberID, kind)
	a, err := scanAccount(row)
	if err != nil {
		return nil, notFound(err, "account", fmt.Sprintf("%s of member %d", kind, memberID))
	}
	return a, nil
}

func (s queries) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return collect(rows, scanAccount)
}

func (s queries) ListEntries(ctx context.Context, accountID int64, cursor Cursor) ([]*models.LedgerEntry, error) {
	cursor = cursor.Normalize()
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = ?`
	args := []any{accountID}
	if cursor.BeforeID > 0 {
		query += ` AND id < ?`
		args = append(args, cursor.BeforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, cursor.Limit)

	rows, err := s.q.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for account %d: %w", accountID, err)
	}
	return collect(rows, scanEntry)
}

// AllEntries returns an account's entries oldest first.
func (s queries) AllEntries(ctx context.Context, accountID int64) ([]*models.LedgerEntry, error) {
	rows, err := s.q.QueryContext(ctx, s.d.rebind(`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = ? ORDER BY id ASC`), accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for account %d: %w", accountID, err)
	}
	return collect(rows, scanEntry)
}

func (s queries) GetLoanType(ctx context.Context, id int64) (*models.LoanType, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT `+loanTypeColumns+` FROM loan_types WHERE id = ?`), id)
	lt, err := scanLoanType(row)
	if err != nil {
		return nil, notFound(err, "loan type", id)
	}
	return lt, nil
}

func (s queries) GetLoan(ctx context.Context, id int64) (*models.Loan, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT `+loanColumns+` FROM loans WHERE id = ?`), id)
	l, err := scanLoan(row)
	if err != nil {
		return nil, notFound(err, "loan", id)
	}
	return l, nil
}

func (s queries) ListLoans(ctx context.Context, filter LoanFilter) ([]*models.Loan, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, filter.Status)
	}
	if filter.MemberID != 0 {
		where = append(where, `member_id = ?`)
		args = append(args, filter.MemberID)
	}
	if filter.BranchID != 0 {
		where = append(where, `member_id IN (SELECT id FROM members WHERE branch_id = ?)`)
		args = append(args, filter.BranchID)
	}
	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.q.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return collect(rows, scanLoan)
}

func (s queries) GetLoanItems(ctx context.Context, loanID int64) ([]models.LoanLineItem, error) {
	rows, err := s.q.QueryContext(ctx, s.d.rebind(`SELECT `+lineItemColumns+` FROM loan_line_items WHERE loan_id = ? ORDER BY id`), loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items for loan %d: %w", loanID, err)
	}
	return collect(rows, func(row scanner) (models.LoanLineItem, error) {
		var it models.LoanLineItem
		err := row.Scan(&it.ID, &it.LoanID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.LineTotal, &it.CreatedAt)
		return it, err
	})
}

func (s queries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return p, nil
}

func (s queries) ListProducts(ctx context.Context) ([]*models.Product, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return collect(rows, scanProduct)
}

func (s queries) GetBranchStock(ctx context.Context, branchID, productID int64) (*models.BranchStock, error) {
	row := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT `+branchStockColumns+` FROM branch_stock WHERE branch_id = ? AND product_id = ?`), branchID, productID)
	b, err := scanBranchStock(row)
	if err != nil {
		return nil, notFound(err, "branch stock", fmt.Sprintf("%d/%d", branchID, productID))
	}
	return b, nil
}

func (s queries) ListBranchStock(ctx context.Context, branchID int64) ([]*models.BranchStock, error) {
	rows, err := s.q.QueryContext(ctx, s.d.rebind(`SELECT `+branchStockColumns+` FROM branch_stock WHERE branch_id = ? ORDER BY product_id`), branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock for branch %d: %w", branchID, err)
	}
	return collect(rows, scanBranchStock)
}

// AllocatedStock sums a product's branch rows.
func (s queries) AllocatedStock(ctx context.Context, productID int64) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, s.d.rebind(`SELECT COALESCE(SUM(stock_quantity), 0) FROM branch_stock WHERE product_id = ?`), productID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to sum branch stock for product %d: %w", productID, err)
	}
	return n, nil
}

func (s queries) ListMovements(ctx context.Context, filter MovementFilter) ([]*models.StockMovement, error) {
	cursor := filter.Cursor.Normalize()
	var where []string
	var args []any
	if filter.ProductID != 0 {
		where = append(where, `product_id = ?`)
		args = append(args, filter.ProductID)
	}
	if filter.BranchID != 0 {
		where = append(where, `branch_id = ?`)
		args = append(args, filter.BranchID)
	}
	if filter.Kind != "" {
		where = append(where, `kind = ?`)
		args = append(args, filter.Kind)
	}
	if filter.LoanID != 0 {
		where = append(where, `loan_id = ?`)
		args = append(args, filter.LoanID)
	}
	if cursor.BeforeID > 0 {
		where = append(where, `id < ?`)
		args = append(args, cursor.BeforeID)
	}
	query := `SELECT ` + movementColumns + ` FROM stock_movements`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, cursor.Limit)

	rows, err := s.q.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	return collect(rows, scanMovement)
}
