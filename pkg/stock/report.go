package stock

import (
	"context"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/models"
)

// Level grades a product below its thresholds.
type Level string

const (
	LevelLow      Level = "low"
	LevelCritical Level = "critical"
)

// Alert is one row of a stock report. Quantity and Threshold are the branch
// row's when the report is branch scoped.
type Alert struct {
	Product   *models.Product `json:"product"`
	BranchID  *int64          `json:"branch_id,omitempty"`
	Quantity  int64           `json:"quantity"`
	Threshold int64           `json:"threshold"`
	Level     Level           `json:"level"`
}

func levelOf(qty int64, p *models.Product) Level {
	if qty <= p.CriticalStockThreshold {
		return LevelCritical
	}
	return LevelLow
}

// LowStockReport lists products at or below their low threshold. Products
// also at or below the critical threshold are reported as critical. A
// non-zero branchID checks that branch's rows against their own threshold.
func (l *Ledger) LowStockReport(ctx context.Context, branchID int64) ([]Alert, error) {
	if branchID != 0 {
		return l.branchLowStock(ctx, branchID)
	}
	products, err := l.store.ListProducts(ctx)
	if err != nil {
		return nil, apperr.Wrap("low stock report", err)
	}
	alerts := []Alert{}
	for _, p := range products {
		if !p.IsActive || p.StockQuantity > p.LowStockThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Product:   p,
			Quantity:  p.StockQuantity,
			Threshold: p.LowStockThreshold,
			Level:     levelOf(p.StockQuantity, p),
		})
	}
	return alerts, nil
}

func (l *Ledger) branchLowStock(ctx context.Context, branchID int64) ([]Alert, error) {
	rows, err := l.store.ListBranchStock(ctx, branchID)
	if err != nil {
		return nil, apperr.Wrap("low stock report", err)
	}
	alerts := []Alert{}
	for _, row := range rows {
		if row.StockQuantity > row.LowStockThreshold {
			continue
		}
		p, err := l.store.GetProduct(ctx, row.ProductID)
		if err != nil {
			return nil, apperr.Wrap("low stock report", err)
		}
		if !p.IsActive {
			continue
		}
		branch := row.BranchID
		alerts = append(alerts, Alert{
			Product:   p,
			BranchID:  &branch,
			Quantity:  row.StockQuantity,
			Threshold: row.LowStockThreshold,
			Level:     levelOf(row.StockQuantity, p),
		})
	}
	return alerts, nil
}

// CriticalStockReport lists products at or below their critical threshold,
// scoped to a branch's rows the same way LowStockReport is.
func (l *Ledger) CriticalStockReport(ctx context.Context, branchID int64) ([]Alert, error) {
	lows, err := l.LowStockReport(ctx, branchID)
	if err != nil {
		return nil, err
	}
	alerts := []Alert{}
	for _, a := range lows {
		if a.Level != LevelCritical {
			continue
		}
		a.Threshold = a.Product.CriticalStockThreshold
		alerts = append(alerts, a)
	}
	return alerts, nil
}
