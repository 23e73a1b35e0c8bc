// Package ids generates the external identifiers staff and members see on
// receipts: loan numbers and ledger entry ids.
package ids

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const suffixLen = 6

func suffix() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:suffixLen])
}

// LoanNumber returns LN-{YYYYMMDD}-{6 hex}.
func LoanNumber(now time.Time) string {
	return "LN-" + now.UTC().Format("20060102") + "-" + suffix()
}

// EntryID returns TXN-{YYYYMMDDHHMMSS}-{6 hex}.
func EntryID(now time.Time) string {
	return "TXN-" + now.UTC().Format("20060102150405") + "-" + suffix()
}

// RestockReference returns RESTOCK-{YYYYMMDDHHMMSS}.
func RestockReference(now time.Time) string {
	return "RESTOCK-" + now.UTC().Format("20060102150405")
}

// TransferID links the two legs of a transfer.
func TransferID() string {
	return uuid.NewString()
}

// AccountNumber derives a member's account number from its kind prefix and
// member code, e.g. SAV-MB0001.
func AccountNumber(prefix, memberCode string) string {
	return prefix + "-" + memberCode
}
