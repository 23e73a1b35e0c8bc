package store

import (
	"database/sql"
	"strconv"
	"strings"
)

// dialect captures the differences between the SQL backends: placeholder
// style, row locking and column types.
type dialect struct {
	name      string
	driver    string
	dollar    bool
	forUpdate string
	txOptions *sql.TxOptions
	types     *strings.Replacer
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite3",
	// SQLite has no row locks; transactions are opened BEGIN IMMEDIATE via
	// the DSN, which takes the database write lock up front.
	forUpdate: "",
	types: strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{money}}", "TEXT",
		"{{rate}}", "TEXT",
		"{{ts}}", "DATETIME",
		"{{balance_check}}", "",
	),
}

var postgresDialect = dialect{
	name:      "postgres",
	driver:    "postgres",
	dollar:    true,
	forUpdate: " FOR UPDATE",
	txOptions: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	types: strings.NewReplacer(
		"{{pk}}", "BIGSERIAL PRIMARY KEY",
		"{{money}}", "NUMERIC(14,2)",
		"{{rate}}", "NUMERIC(7,4)",
		"{{ts}}", "TIMESTAMPTZ",
		"{{balance_check}}", "CHECK (balance >= 0)",
	),
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d dialect) schema() string {
	return d.types.Replace(schemaTemplate)
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS members (
	id {{pk}},
	member_code TEXT NOT NULL UNIQUE,
	group_id BIGINT,
	branch_id BIGINT,
	registration_fee {{money}} NOT NULL,
	registration_fee_paid BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL,
	created_at {{ts}} NOT NULL
);
CREATE TABLE IF NOT EXISTS accounts (
	id {{pk}},
	member_id BIGINT NOT NULL REFERENCES members(id),
	kind TEXT NOT NULL,
	account_number TEXT NOT NULL UNIQUE,
	balance {{money}} NOT NULL {{balance_check}},
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL,
	UNIQUE (member_id, kind)
);
CREATE TABLE IF NOT EXISTS loan_types (
	id {{pk}},
	name TEXT NOT NULL UNIQUE,
	interest_rate {{rate}} NOT NULL,
	interest_mode TEXT NOT NULL,
	fee_percentage {{rate}} NOT NULL,
	min_amount {{money}} NOT NULL,
	max_amount {{money}} NOT NULL,
	duration_months INTEGER NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at {{ts}} NOT NULL
);
CREATE TABLE IF NOT EXISTS loans (
	id {{pk}},
	loan_number TEXT NOT NULL UNIQUE,
	member_id BIGINT NOT NULL REFERENCES members(id),
	loan_type_id BIGINT NOT NULL REFERENCES loan_types(id),
	principal {{money}} NOT NULL,
	interest {{money}} NOT NULL,
	fee {{money}} NOT NULL,
	total {{money}} NOT NULL,
	outstanding_balance {{money}} NOT NULL,
	status TEXT NOT NULL,
	applied_by BIGINT NOT NULL,
	application_date {{ts}} NOT NULL,
	approval_date {{ts}},
	disbursement_date {{ts}},
	due_date {{ts}} NOT NULL,
	closed_date {{ts}},
	approved_by BIGINT,
	disbursed_by BIGINT,
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_entries (
	id {{pk}},
	entry_id TEXT NOT NULL UNIQUE,
	account_id BIGINT NOT NULL REFERENCES accounts(id),
	member_id BIGINT NOT NULL REFERENCES members(id),
	account_kind TEXT NOT NULL,
	kind TEXT NOT NULL,
	amount {{money}} NOT NULL,
	balance_before {{money}} NOT NULL,
	balance_after {{money}} NOT NULL,
	loan_id BIGINT REFERENCES loans(id),
	transfer_id TEXT,
	reference TEXT,
	external_code TEXT,
	processed_by BIGINT NOT NULL,
	created_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_transfer ON ledger_entries(transfer_id);
CREATE TABLE IF NOT EXISTS products (
	id {{pk}},
	name TEXT NOT NULL,
	buying_price {{money}} NOT NULL,
	selling_price {{money}} NOT NULL,
	stock_quantity BIGINT NOT NULL CHECK (stock_quantity >= 0),
	low_stock_threshold BIGINT NOT NULL,
	critical_stock_threshold BIGINT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at {{ts}} NOT NULL
);
CREATE TABLE IF NOT EXISTS loan_line_items (
	id {{pk}},
	loan_id BIGINT NOT NULL REFERENCES loans(id),
	product_id BIGINT NOT NULL REFERENCES products(id),
	quantity BIGINT NOT NULL CHECK (quantity > 0),
	unit_price {{money}} NOT NULL,
	line_total {{money}} NOT NULL,
	created_at {{ts}} NOT NULL
);
CREATE TABLE IF NOT EXISTS branch_stock (
	branch_id BIGINT NOT NULL,
	product_id BIGINT NOT NULL REFERENCES products(id),
	stock_quantity BIGINT NOT NULL CHECK (stock_quantity >= 0),
	low_stock_threshold BIGINT NOT NULL,
	updated_at {{ts}} NOT NULL,
	PRIMARY KEY (branch_id, product_id)
);
CREATE TABLE IF NOT EXISTS stock_movements (
	id {{pk}},
	product_id BIGINT NOT NULL REFERENCES products(id),
	branch_id BIGINT,
	kind TEXT NOT NULL,
	quantity BIGINT NOT NULL CHECK (quantity > 0),
	supplier_id BIGINT,
	loan_id BIGINT REFERENCES loans(id),
	reference_number TEXT,
	note TEXT,
	processed_by BIGINT NOT NULL,
	created_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements(product_id, id);
`
