package store

import (
	"context"
	"fmt"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/models"
)

// txQueries implements Tx over a *sql.Tx.
type txQueries struct {
	queries
}

var _ Tx = (*txQueries)(nil)

func (t *txQueries) LockMember(ctx context.Context, id int64) (*models.Member, error) {
	row := t.q.QueryRowContext(ctx, t.d.rebind(`SELECT `+memberColumns+` FROM members WHERE id = ?`+t.d.forUpdate), id)
	m, err := scanMember(row)
	if err != nil {
		return nil, notFound(err, "member", id)
	}
	return m, nil
}

func (t *txQueries) MarkRegistrationFeePaid(ctx context.Context, memberID int64) error {
	res, err := t.q.ExecContext(ctx, t.d.rebind(`UPDATE members SET registration_fee_paid = ? WHERE id = ?`), true, memberID)
	if err != nil {
		return fmt.Errorf("failed to mark registration fee paid: %w", err)
	}
	return requireRow(res, "member", memberID)
}

func (t *txQueries) LockAccount(ctx context.Context, id int64) (*models.Account, error) {
	row := t.q.QueryRowContext(ctx, t.d.rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`+t.d.forUpdate), id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return a, nil
}

func (t *txQueries) UpdateAccountBalance(ctx context.Context, a *models.Account) error {
	res, err := t.q.ExecContext(ctx, t.d.rebind(`UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`),
		a.Balance, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	return requireRow(res, "account", a.ID)
}

func (t *txQueries) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	err := t.q.QueryRowContext(ctx, t.d.rebind(`
		INSERT INTO ledger_entries (entry_id, account_id, member_id, account_kind, kind, amount, balance_before, balance_after,
			loan_id, transfer_id, reference, external_code, processed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		e.EntryID, e.AccountID, e.MemberID, e.AccountKind, e.Kind, e.Amount, e.BalanceBefore, e.BalanceAfter,
		nullInt64(e.LoanID), nullString(e.TransferID), nullString(e.Reference), nullString(e.ExternalCode), e.ProcessedBy, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (t *txQueries) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := t.q.QueryRowContext(ctx, t.d.rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`+t.d.forUpdate), id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return p, nil
}

func (t *txQueries) UpdateProductStock(ctx context.Context, p *models.Product) error {
	res, err := t.q.ExecContext(ctx, t.d.rebind(`UPDATE products SET stock_quantity = ? WHERE id = ?`), p.StockQuantity, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product stock: %w", err)
	}
	return requireRow(res, "product", p.ID)
}

func (t *txQueries) LockBranchStock(ctx context.Context, branchID, productID int64) (*models.BranchStock, error) {
	row := t.q.QueryRowContext(ctx, t.d.rebind(`SELECT `+branchStockColumns+` FROM branch_stock WHERE branch_id = ? AND product_id = ?`+t.d.forUpdate),
		branchID, productID)
	b, err := scanBranchStock(row)
	if err != nil {
		return nil, notFound(err, "branch stock", fmt.Sprintf("%d/%d", branchID, productID))
	}
	return b, nil
}

// SaveBranchStock inserts the row or replaces its quantity and threshold.
func (t *txQueries) SaveBranchStock(ctx context.Context, b *models.BranchStock) error {
	_, err := t.q.ExecContext(ctx, t.d.rebind(`
		INSERT INTO branch_stock (branch_id, product_id, stock_quantity, low_stock_threshold, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (branch_id, product_id) DO UPDATE SET
			stock_quantity = excluded.stock_quantity,
			low_stock_threshold = excluded.low_stock_threshold,
			updated_at = excluded.updated_at`),
		b.BranchID, b.ProductID, b.StockQuantity, b.LowStockThreshold, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save branch stock: %w", err)
	}
	return nil
}

func (t *txQueries) InsertMovement(ctx context.Context, m *models.StockMovement) error {
	err := t.q.QueryRowContext(ctx, t.d.rebind(`
		INSERT INTO stock_movements (product_id, branch_id, kind, quantity, supplier_id, loan_id, reference_number, note, processed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		m.ProductID, nullInt64(m.BranchID), m.Kind, m.Quantity, nullInt64(m.SupplierID), nullInt64(m.LoanID),
		nullString(m.ReferenceNumber), nullString(m.Note), m.ProcessedBy, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to insert stock movement: %w", err)
	}
	return nil
}

func (t *txQueries) LockLoan(ctx context.Context, id int64) (*models.Loan, error) {
	row := t.q.QueryRowContext(ctx, t.d.rebind(`SELECT `+loanColumns+` FROM loans WHERE id = ?`+t.d.forUpdate), id)
	l, err := scanLoan(row)
	if err != nil {
		return nil, notFound(err, "loan", id)
	}
	return l, nil
}

// InsertLoan writes the loan and its line items, filling in their ids.
func (t *txQueries) InsertLoan(ctx context.Context, l *models.Loan) error {
	err := t.q.QueryRowContext(ctx, t.d.rebind(`
		INSERT INTO loans (loan_number, member_id, loan_type_id, principal, interest, fee, total, outstanding_balance, status,
			applied_by, application_date, approval_date, disbursement_date, due_date, closed_date, approved_by, disbursed_by,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		l.LoanNumber, l.MemberID, l.LoanTypeID, l.Principal, l.Interest, l.Fee, l.Total, l.OutstandingBalance, l.Status,
		l.AppliedBy, l.ApplicationDate, l.ApprovalDate, l.DisbursementDate, l.DueDate, l.ClosedDate,
		nullInt64(l.ApprovedBy), nullInt64(l.DisbursedBy), l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert loan %s: %w", l.LoanNumber, ErrDuplicateLoanNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}

	for i := range l.Items {
		it := &l.Items[i]
		it.LoanID = l.ID
		if it.CreatedAt.IsZero() {
			it.CreatedAt = l.CreatedAt
		}
		err := t.q.QueryRowContext(ctx, t.d.rebind(`
			INSERT INTO loan_line_items (loan_id, product_id, quantity, unit_price, line_total, created_at)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
			it.LoanID, it.ProductID, it.Quantity, it.UnitPrice, it.LineTotal, it.CreatedAt,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("failed to insert loan item: %w", err)
		}
	}
	return nil
}

// UpdateLoan persists the mutable lifecycle columns. Amounts fixed at
// origination are never rewritten.
func (t *txQueries) UpdateLoan(ctx context.Context, l *models.Loan) error {
	res, err := t.q.ExecContext(ctx, t.d.rebind(`
		UPDATE loans SET outstanding_balance = ?, status = ?, approval_date = ?, disbursement_date = ?, due_date = ?,
			closed_date = ?, approved_by = ?, disbursed_by = ?, updated_at = ?
		WHERE id = ?`),
		l.OutstandingBalance, l.Status, l.ApprovalDate, l.DisbursementDate, l.DueDate, l.ClosedDate,
		nullInt64(l.ApprovedBy), nullInt64(l.DisbursedBy), l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return requireRow(res, "loan", l.ID)
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffected, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}
