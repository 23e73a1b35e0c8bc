// Package stock keeps product quantities and their movement log in step.
// Quantities never go below zero and every change is recorded as a movement,
// so summing a product's signed movements reproduces its stock.
package stock

import (
	"context"
	"errors"
	"time"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/ids"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/sirupsen/logrus"
)

// MovementRequest describes one stock change. BranchID scopes the change to
// a branch in addition to the product total.
type MovementRequest struct {
	ProductID       int64               `json:"product_id"`
	BranchID        *int64              `json:"branch_id,omitempty"`
	Kind            models.MovementKind `json:"kind"`
	Quantity        int64               `json:"quantity"`
	SupplierID      *int64              `json:"supplier_id,omitempty"`
	LoanID          *int64              `json:"-"`
	ReferenceNumber string              `json:"reference_number,omitempty"`
	Note            string              `json:"note,omitempty"`
	StaffID         int64               `json:"-"`
}

func (r MovementRequest) validate() error {
	if !r.Kind.Valid() {
		return apperr.Validation("kind", "unknown movement kind %q", r.Kind)
	}
	if r.Quantity <= 0 {
		return apperr.Validation("quantity", "must be greater than zero")
	}
	if r.StaffID <= 0 {
		return apperr.Validation("processed_by", "staff id is required")
	}
	return nil
}

// Ledger is the stock ledger.
type Ledger struct {
	store store.Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewLedger creates a stock Ledger over s.
func NewLedger(s store.Store, log *logrus.Logger) *Ledger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{store: s, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Move applies one movement in its own transaction.
func (l *Ledger) Move(ctx context.Context, r MovementRequest) (*models.StockMovement, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	var mv *models.StockMovement
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		mv, err = l.ApplyMovement(ctx, tx, r)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("stock movement", err)
	}
	return mv, nil
}

// ApplyMovement is Move inside a transaction owned by the caller. Outbound
// movements fail with InsufficientStock when they would take the product, or
// the branch row, below zero. Branch rows never add up to more than the
// product total, so an outbound movement without a branch may only draw on
// stock no branch holds.
func (l *Ledger) ApplyMovement(ctx context.Context, tx store.Tx, r MovementRequest) (*models.StockMovement, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	product, err := tx.LockProduct(ctx, r.ProductID)
	if err != nil {
		return nil, err
	}
	if r.Kind.Outbound() && r.Quantity > product.StockQuantity {
		return nil, apperr.InsufficientStock("product", product.ID, product.StockQuantity, r.Quantity)
	}
	if r.Kind.Outbound() && r.BranchID == nil {
		allocated, err := tx.AllocatedStock(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		if free := product.StockQuantity - allocated; r.Quantity > free {
			return nil, apperr.InsufficientStock("unallocated stock", product.ID, free, r.Quantity)
		}
	}

	now := l.now()
	if r.BranchID != nil {
		if err := l.applyBranch(ctx, tx, product, *r.BranchID, r, now); err != nil {
			return nil, err
		}
	}

	product.StockQuantity += r.Kind.Signed(r.Quantity)
	if err := tx.UpdateProductStock(ctx, product); err != nil {
		return nil, err
	}

	mv := &models.StockMovement{
		ProductID:       product.ID,
		BranchID:        r.BranchID,
		Kind:            r.Kind,
		Quantity:        r.Quantity,
		SupplierID:      r.SupplierID,
		LoanID:          r.LoanID,
		ReferenceNumber: r.ReferenceNumber,
		Note:            r.Note,
		ProcessedBy:     r.StaffID,
		CreatedAt:       now,
	}
	if err := tx.InsertMovement(ctx, mv); err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"product_id": product.ID,
		"kind":       mv.Kind,
		"quantity":   mv.Quantity,
		"stock":      product.StockQuantity,
		"staff_id":   r.StaffID,
	}).Info("Stock movement recorded")
	return mv, nil
}

func (l *Ledger) applyBranch(ctx context.Context, tx store.Tx, product *models.Product, branchID int64, r MovementRequest, now time.Time) error {
	row, err := tx.LockBranchStock(ctx, branchID, product.ID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if r.Kind.Outbound() {
			return apperr.InsufficientStock("branch stock", product.ID, 0, r.Quantity)
		}
		row = &models.BranchStock{BranchID: branchID, ProductID: product.ID, LowStockThreshold: product.LowStockThreshold}
	case err != nil:
		return err
	}
	if r.Kind.Outbound() && r.Quantity > row.StockQuantity {
		return apperr.InsufficientStock("branch stock", product.ID, row.StockQuantity, r.Quantity)
	}
	row.StockQuantity += r.Kind.Signed(r.Quantity)
	row.UpdatedAt = now
	return tx.SaveBranchStock(ctx, row)
}

// RestockRequest receives goods from a supplier.
type RestockRequest struct {
	ProductID  int64  `json:"product_id"`
	SupplierID *int64 `json:"supplier_id,omitempty"`
	Quantity   int64  `json:"quantity"`
	BranchID   *int64 `json:"branch_id,omitempty"`
	Note       string `json:"note,omitempty"`
	StaffID    int64  `json:"-"`
}

// Restock records an "in" movement referenced RESTOCK-{timestamp}.
func (l *Ledger) Restock(ctx context.Context, r RestockRequest) (*models.StockMovement, error) {
	return l.Move(ctx, MovementRequest{
		ProductID:       r.ProductID,
		BranchID:        r.BranchID,
		Kind:            models.MovementIn,
		Quantity:        r.Quantity,
		SupplierID:      r.SupplierID,
		ReferenceNumber: ids.RestockReference(l.now()),
		Note:            r.Note,
		StaffID:         r.StaffID,
	})
}

// Movements lists movements newest first.
func (l *Ledger) Movements(ctx context.Context, filter store.MovementFilter) ([]*models.StockMovement, error) {
	mvs, err := l.store.ListMovements(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap("list movements", err)
	}
	if mvs == nil {
		mvs = []*models.StockMovement{}
	}
	return mvs, nil
}

// BranchInventory lists a branch's stock rows.
func (l *Ledger) BranchInventory(ctx context.Context, branchID int64) ([]*models.BranchStock, error) {
	rows, err := l.store.ListBranchStock(ctx, branchID)
	if err != nil {
		return nil, apperr.Wrap("branch inventory", err)
	}
	if rows == nil {
		rows = []*models.BranchStock{}
	}
	return rows, nil
}
