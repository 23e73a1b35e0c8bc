package loan

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/ledger"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/stock"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ItemRequest asks for quantity units of a product.
type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// Application is a loan request. With Items the principal is the priced
// goods; without, it is Amount.
type Application struct {
	MemberID   int64           `json:"member_id"`
	LoanTypeID int64           `json:"loan_type_id"`
	Amount     decimal.Decimal `json:"amount"`
	Items      []ItemRequest   `json:"items,omitempty"`
	StaffID    int64           `json:"-"`
}

// Terms are the amounts fixed at origination.
type Terms struct {
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Fee       decimal.Decimal
	Total     decimal.Decimal
}

// Price computes interest, fee and total for principal under lt. Interest is
// flat for both interest modes and does not scale with duration.
func Price(principal decimal.Decimal, lt *models.LoanType) Terms {
	principal = models.RoundMoney(principal)
	interest := models.Percent(principal, lt.InterestRate)
	fee := models.Percent(principal, lt.FeePercentage)
	return Terms{
		Principal: principal,
		Interest:  interest,
		Fee:       fee,
		Total:     principal.Add(interest).Add(fee),
	}
}

func (a Application) validate() error {
	if a.StaffID <= 0 {
		return apperr.Validation("processed_by", "staff id is required")
	}
	if a.MemberID <= 0 {
		return apperr.Validation("member_id", "is required")
	}
	if a.LoanTypeID <= 0 {
		return apperr.Validation("loan_type_id", "is required")
	}
	if len(a.Items) == 0 {
		return ledger.ValidateAmount("amount", a.Amount)
	}
	for _, it := range a.Items {
		if it.ProductID <= 0 {
			return apperr.Validation("items.product_id", "is required")
		}
		if it.Quantity <= 0 {
			return apperr.Validation("items.quantity", "must be greater than zero")
		}
	}
	return nil
}

// mergeItems folds repeated products together and orders them by product id,
// the order products are locked in.
func mergeItems(items []ItemRequest) []ItemRequest {
	qty := map[int64]int64{}
	for _, it := range items {
		qty[it.ProductID] += it.Quantity
	}
	out := make([]ItemRequest, 0, len(qty))
	for id, q := range qty {
		out = append(out, ItemRequest{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func sortedMovements(mvs []*models.StockMovement) []*models.StockMovement {
	out := append([]*models.StockMovement(nil), mvs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// loanNumberAttempts bounds retries after a loan number collision.
const loanNumberAttempts = 3

// Originate creates a pending loan. For item-backed applications the goods
// are taken out of stock in the same transaction; if any product is short,
// nothing is written. Goods come out of the borrower's branch when that
// branch stocks the product, otherwise out of unallocated stock.
func (e *Engine) Originate(ctx context.Context, app Application) (*models.Loan, error) {
	if err := app.validate(); err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		loan, err := e.originate(ctx, app)
		if !errors.Is(err, store.ErrDuplicateLoanNumber) {
			return loan, err
		}
		if attempt == loanNumberAttempts {
			return nil, apperr.Conflict("loan", "could not allocate a unique loan number")
		}
		e.log.WithField("attempt", attempt).Warn("Loan number collision, retrying")
	}
}

func (e *Engine) originate(ctx context.Context, app Application) (*models.Loan, error) {
	var loan *models.Loan
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		member, err := tx.GetMember(ctx, app.MemberID)
		if err != nil {
			return err
		}
		lt, err := tx.GetLoanType(ctx, app.LoanTypeID)
		if err != nil {
			return err
		}
		if !lt.IsActive {
			return apperr.Validation("loan_type_id", "loan type %q is not active", lt.Name)
		}

		now := e.now()
		principal := app.Amount
		var lines []models.LoanLineItem
		branchOf := map[int64]*int64{}
		if len(app.Items) > 0 {
			principal = decimal.Zero
			for _, it := range mergeItems(app.Items) {
				p, err := tx.LockProduct(ctx, it.ProductID)
				if err != nil {
					return err
				}
				if !p.IsActive {
					return apperr.Validation("items.product_id", "product %d is not active", p.ID)
				}
				if it.Quantity > p.StockQuantity {
					return apperr.InsufficientStock("product", p.ID, p.StockQuantity, it.Quantity)
				}
				if branchOf[p.ID], err = stockingBranch(ctx, tx, member, p.ID); err != nil {
					return err
				}
				total := models.RoundMoney(p.SellingPrice.Mul(decimal.NewFromInt(it.Quantity)))
				principal = principal.Add(total)
				lines = append(lines, models.LoanLineItem{
					ProductID: p.ID,
					Quantity:  it.Quantity,
					UnitPrice: p.SellingPrice,
					LineTotal: total,
					CreatedAt: now,
				})
			}
		}

		terms := Price(principal, lt)
		if terms.Principal.LessThan(lt.MinAmount) || terms.Principal.GreaterThan(lt.MaxAmount) {
			return apperr.Validation("principal", "%s is outside the %s to %s range of loan type %q",
				models.FormatMoney(terms.Principal), models.FormatMoney(lt.MinAmount), models.FormatMoney(lt.MaxAmount), lt.Name)
		}

		loan = &models.Loan{
			LoanNumber:         e.loanNumber(now),
			MemberID:           app.MemberID,
			LoanTypeID:         lt.ID,
			Principal:          terms.Principal,
			Interest:           terms.Interest,
			Fee:                terms.Fee,
			Total:              terms.Total,
			OutstandingBalance: terms.Total,
			Status:             models.LoanPending,
			AppliedBy:          app.StaffID,
			ApplicationDate:    now,
			DueDate:            now.Add(time.Duration(lt.DurationMonths) * daysPerMonth * 24 * time.Hour),
			CreatedAt:          now,
			UpdatedAt:          now,
			Items:              lines,
		}
		if err := tx.InsertLoan(ctx, loan); err != nil {
			return err
		}

		for _, it := range loan.Items {
			_, err := e.inventory.ApplyMovement(ctx, tx, stock.MovementRequest{
				ProductID:       it.ProductID,
				BranchID:        branchOf[it.ProductID],
				Kind:            models.MovementOut,
				Quantity:        it.Quantity,
				LoanID:          &loan.ID,
				ReferenceNumber: loan.LoanNumber,
				Note:            "loan origination",
				StaffID:         app.StaffID,
			})
			if err != nil {
				return err
			}
		}

		e.log.WithFields(logrus.Fields{
			"loan_number": loan.LoanNumber,
			"member_id":   loan.MemberID,
			"principal":   models.FormatMoney(loan.Principal),
			"total":       models.FormatMoney(loan.Total),
			"items":       len(loan.Items),
			"staff_id":    app.StaffID,
		}).Info("Loan originated")
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap("originate loan", err)
	}
	return loan, nil
}

// stockingBranch returns the member's branch when it holds a row for the
// product, nil otherwise.
func stockingBranch(ctx context.Context, tx store.Tx, member *models.Member, productID int64) (*int64, error) {
	if member.BranchID == nil {
		return nil, nil
	}
	_, err := tx.GetBranchStock(ctx, *member.BranchID, productID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return member.BranchID, nil
}
