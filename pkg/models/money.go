package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits every stored amount carries.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds a derived amount half-up to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Percent returns amount * rate / 100, rounded half-up.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(rate).Div(hundred))
}

// HasMoneyPrecision reports whether d needs no more than MoneyPlaces digits.
func HasMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

// FormatMoney renders d with exactly two fractional digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// The MarshalJSON methods below render every monetary field as a string with
// exactly two fractional digits. Decoding keeps the default behaviour, which
// accepts those strings.

func (a Account) MarshalJSON() ([]byte, error) {
	type plain Account
	return json.Marshal(struct {
		plain
		Balance string `json:"balance"`
	}{plain(a), FormatMoney(a.Balance)})
}

func (m Member) MarshalJSON() ([]byte, error) {
	type plain Member
	return json.Marshal(struct {
		plain
		RegistrationFee string `json:"registration_fee"`
	}{plain(m), FormatMoney(m.RegistrationFee)})
}

func (e LedgerEntry) MarshalJSON() ([]byte, error) {
	type plain LedgerEntry
	return json.Marshal(struct {
		plain
		Amount        string `json:"amount"`
		BalanceBefore string `json:"balance_before"`
		BalanceAfter  string `json:"balance_after"`
	}{plain(e), FormatMoney(e.Amount), FormatMoney(e.BalanceBefore), FormatMoney(e.BalanceAfter)})
}

func (t LoanType) MarshalJSON() ([]byte, error) {
	type plain LoanType
	return json.Marshal(struct {
		plain
		InterestRate  string `json:"interest_rate"`
		FeePercentage string `json:"fee_percentage"`
		MinAmount     string `json:"min_amount"`
		MaxAmount     string `json:"max_amount"`
	}{plain(t), FormatMoney(t.InterestRate), FormatMoney(t.FeePercentage), FormatMoney(t.MinAmount), FormatMoney(t.MaxAmount)})
}

func (l Loan) MarshalJSON() ([]byte, error) {
	type plain Loan
	return json.Marshal(struct {
		plain
		Principal          string `json:"principal"`
		Interest           string `json:"interest"`
		Fee                string `json:"fee"`
		Total              string `json:"total"`
		OutstandingBalance string `json:"outstanding_balance"`
	}{plain(l), FormatMoney(l.Principal), FormatMoney(l.Interest), FormatMoney(l.Fee), FormatMoney(l.Total), FormatMoney(l.OutstandingBalance)})
}

func (i LoanLineItem) MarshalJSON() ([]byte, error) {
	type plain LoanLineItem
	return json.Marshal(struct {
		plain
		UnitPrice string `json:"unit_price"`
		LineTotal string `json:"line_total"`
	}{plain(i), FormatMoney(i.UnitPrice), FormatMoney(i.LineTotal)})
}

func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	return json.Marshal(struct {
		plain
		BuyingPrice  string `json:"buying_price"`
		SellingPrice string `json:"selling_price"`
	}{plain(p), FormatMoney(p.BuyingPrice), FormatMoney(p.SellingPrice)})
}
