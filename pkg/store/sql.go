package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/ids"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/sirupsen/logrus"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store over database/sql.
type SQLStore struct {
	queries
	db  *sql.DB
	log *logrus.Logger
}

var _ Store = (*SQLStore)(nil)

func open(d dialect, dsn string, log *logrus.Logger) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLStore{queries: queries{q: db, d: d}, db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.WithField("dialect", d.name).Info("Database connection established and schema initialized")
	return s, nil
}

// Open picks the dialect from the driver name ("sqlite3" or "postgres").
func Open(driver, dsn string, log *logrus.Logger) (*SQLStore, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return NewSQLiteStore(dsn, log)
	case "postgres", "postgresql":
		return NewPostgresStore(dsn, log)
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func (s *SQLStore) initSchema() error {
	_, err := s.db.Exec(s.d.schema())
	return err
}

// WithTx runs fn inside a database transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, s.d.txOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.log.WithError(rbErr).Warn("Rollback failed")
			}
		}
	}()

	if err = fn(&txQueries{queries{q: sqlTx, d: s.d}}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateMember inserts a member together with its savings and drawdown
// accounts, both at a zero balance.
func (s *SQLStore) CreateMember(ctx context.Context, member *models.Member) ([]*models.Account, error) {
	var accounts []*models.Account
	err := s.WithTx(ctx, func(tx Tx) error {
		q := tx.(*txQueries)
		if member.CreatedAt.IsZero() {
			member.CreatedAt = time.Now().UTC()
		}
		if member.Status == "" {
			member.Status = models.MemberPending
		}
		err := q.q.QueryRowContext(ctx, q.d.rebind(`
			INSERT INTO members (member_code, group_id, branch_id, registration_fee, registration_fee_paid, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			member.Code, member.GroupID, member.BranchID, member.RegistrationFee, member.RegistrationFeePaid, member.Status, member.CreatedAt,
		).Scan(&member.ID)
		if isUniqueViolation(err) {
			return apperr.Conflict("member", "member code %q is already registered", member.Code)
		}
		if err != nil {
			return fmt.Errorf("failed to create member: %w", err)
		}

		for _, kind := range []struct {
			kind   models.AccountKind
			prefix string
		}{{models.AccountSavings, "SAV"}, {models.AccountDrawdown, "DRD"}} {
			acc := &models.Account{
				MemberID:      member.ID,
				Kind:          kind.kind,
				AccountNumber: ids.AccountNumber(kind.prefix, member.Code),
				CreatedAt:     member.CreatedAt,
				UpdatedAt:     member.CreatedAt,
			}
			err := q.q.QueryRowContext(ctx, q.d.rebind(`
				INSERT INTO accounts (member_id, kind, account_number, balance, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
				acc.MemberID, acc.Kind, acc.AccountNumber, acc.Balance, acc.CreatedAt, acc.UpdatedAt,
			).Scan(&acc.ID)
			if err != nil {
				return fmt.Errorf("failed to create %s account: %w", kind.kind, err)
			}
			accounts = append(accounts, acc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateLoanType inserts loan policy reference data.
func (s *SQLStore) CreateLoanType(ctx context.Context, lt *models.LoanType) error {
	if lt.CreatedAt.IsZero() {
		lt.CreatedAt = time.Now().UTC()
	}
	if lt.InterestMode == "" {
		lt.InterestMode = models.InterestFlat
	}
	err := s.q.QueryRowContext(ctx, s.d.rebind(`
		INSERT INTO loan_types (name, interest_rate, interest_mode, fee_percentage, min_amount, max_amount, duration_months, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		lt.Name, lt.InterestRate, lt.InterestMode, lt.FeePercentage, lt.MinAmount, lt.MaxAmount, lt.DurationMonths, lt.IsActive, lt.CreatedAt,
	).Scan(&lt.ID)
	if err != nil {
		return fmt.Errorf("failed to create loan type: %w", err)
	}
	return nil
}

// CreateProduct inserts a catalog product. Opening stock is recorded as an
// "in" movement in the same unit so the movement log reproduces the
// product's quantity from its first row.
func (s *SQLStore) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return s.WithTx(ctx, func(tx Tx) error {
		q := tx.(*txQueries)
		err := q.q.QueryRowContext(ctx, q.d.rebind(`
			INSERT INTO products (name, buying_price, selling_price, stock_quantity, low_stock_threshold, critical_stock_threshold, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			p.Name, p.BuyingPrice, p.SellingPrice, p.StockQuantity, p.LowStockThreshold, p.CriticalStockThreshold, p.IsActive, p.CreatedAt,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		if p.StockQuantity == 0 {
			return nil
		}
		return q.InsertMovement(ctx, &models.StockMovement{
			ProductID: p.ID,
			Kind:      models.MovementIn,
			Quantity:  p.StockQuantity,
			Note:      "opening stock",
			CreatedAt: p.CreatedAt,
		})
	})
}

// DB exposes the underlying pool for health checks and ad hoc reads.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
