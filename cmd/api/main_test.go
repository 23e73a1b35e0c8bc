package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/mcclellann/imarisha/pkg/config"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testAPI struct {
	server *Server
	router *mux.Router
	token  string
}

func signToken(t *testing.T, secret, subject string, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func setupTestServer(t *testing.T) *testAPI {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:              testSecret,
		DisbursementAccount:    models.AccountDrawdown,
		DefaultRegistrationFee: decimal.NewFromInt(800),
	}
	server, err := NewServer(storetest.New(t), cfg, storetest.Logger())
	require.NoError(t, err)
	return &testAPI{
		server: server,
		router: server.Router(),
		token:  signToken(t, testSecret, "7", jwt.SigningMethodHS256),
	}
}

// do sends body as JSON and decodes the response into out when given.
func (a *testAPI) do(t *testing.T, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+a.token)
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	if out != nil && rr.Code < 300 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out), rr.Body.String())
	}
	return rr
}

type memberResponse struct {
	Member   models.Member     `json:"member"`
	Accounts []models.Account `json:"accounts"`
}

func (a *testAPI) createMember(t *testing.T, code string) memberResponse {
	t.Helper()
	var res memberResponse
	rr := a.do(t, "POST", "/api/members", map[string]any{"member_code": code, "branch_id": 1}, &res)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, res.Accounts, 2)
	return res
}

func TestAuthRequired(t *testing.T) {
	api := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/loans", nil)
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	for name, token := range map[string]string{
		"wrong secret":  signToken(t, "other", "7", jwt.SigningMethodHS256),
		"wrong method":  signToken(t, testSecret, "7", jwt.SigningMethodHS512),
		"non-numeric":   signToken(t, testSecret, "alice", jwt.SigningMethodHS256),
		"garbage token": "abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/loans", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			api.router.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}

	rr = httptest.NewRecorder()
	api.router.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAPI_DepositTransferAndHistory(t *testing.T) {
	api := setupTestServer(t)
	m := api.createMember(t, "MB0100")
	savings, drawdown := m.Accounts[0], m.Accounts[1]
	assert.Equal(t, models.AccountSavings, savings.Kind)

	var entry map[string]any
	rr := api.do(t, "POST", fmt.Sprintf("/api/accounts/%d/deposit", savings.ID),
		map[string]any{"amount": "45000", "external_code": "QAB12CD"}, &entry)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "45000.00", entry["amount"])
	assert.Equal(t, "0.00", entry["balance_before"])
	assert.Equal(t, float64(7), entry["processed_by"])

	rr = api.do(t, "POST", fmt.Sprintf("/api/accounts/%d/deposit", drawdown.ID), map[string]any{"amount": 5000}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res struct {
		TransferID string         `json:"transfer_id"`
		Out        map[string]any `json:"out"`
		In         map[string]any `json:"in"`
	}
	rr = api.do(t, "POST", "/api/transfers", map[string]any{
		"member_id": m.Member.ID, "from_account": "savings", "to_account": "drawdown", "amount": "2000.00",
	}, &res)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "43000.00", res.Out["balance_after"])
	assert.Equal(t, "7000.00", res.In["balance_after"])
	assert.Equal(t, res.TransferID, res.Out["transfer_id"])

	var acc map[string]any
	rr = api.do(t, "GET", fmt.Sprintf("/api/accounts/%d", savings.ID), nil, &acc)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "43000.00", acc["balance"])

	var page struct {
		Entries      []map[string]any `json:"entries"`
		NextBeforeID int64            `json:"next_before_id"`
	}
	rr = api.do(t, "GET", fmt.Sprintf("/api/accounts/%d/history?limit=1", savings.ID), nil, &page)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "transfer_out", page.Entries[0]["kind"])
	assert.NotZero(t, page.NextBeforeID)

	var rec map[string]any
	rr = api.do(t, "GET", fmt.Sprintf("/api/accounts/%d/reconcile", savings.ID), nil, &rec)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, rec["consistent"])
}

func TestAPI_ErrorMapping(t *testing.T) {
	api := setupTestServer(t)
	m := api.createMember(t, "MB0200")
	savings := m.Accounts[0]

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad amount", "POST", fmt.Sprintf("/api/accounts/%d/deposit", savings.ID), map[string]any{"amount": "-1"}, http.StatusBadRequest, "validation_error"},
		{"bad body", "POST", "/api/transfers", "not an object", http.StatusBadRequest, "validation_error"},
		{"missing account", "GET", "/api/accounts/999", nil, http.StatusNotFound, "not_found"},
		{"overdraw", "POST", fmt.Sprintf("/api/accounts/%d/withdraw", savings.ID), map[string]any{"amount": "1"}, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"bad cursor", "GET", fmt.Sprintf("/api/accounts/%d/history?limit=x", savings.ID), nil, http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := api.do(t, tc.method, tc.path, tc.body, nil)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestAPI_RegistrationFee(t *testing.T) {
	api := setupTestServer(t)
	m := api.createMember(t, "MB0300")
	assert.Equal(t, "800.00", models.FormatMoney(m.Member.RegistrationFee))

	rr := api.do(t, "POST", fmt.Sprintf("/api/accounts/%d/deposit", m.Accounts[0].ID), map[string]any{"amount": "1000"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var charged struct {
		Member map[string]any `json:"member"`
		Entry  map[string]any `json:"entry"`
	}
	rr = api.do(t, "POST", fmt.Sprintf("/api/members/%d/registration-fee", m.Member.ID), nil, &charged)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, true, charged.Member["registration_fee_paid"])
	assert.Equal(t, "800.00", charged.Entry["amount"])
	rr = api.do(t, "POST", fmt.Sprintf("/api/members/%d/registration-fee", m.Member.ID), nil, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(t, "POST", "/api/members", map[string]any{"member_code": "MB0300", "branch_id": 1}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "duplicate member code")
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body.Code)
}

func TestAPI_ZeroRegistrationFee(t *testing.T) {
	api := setupTestServer(t)
	var res memberResponse
	rr := api.do(t, "POST", "/api/members", map[string]any{"member_code": "MB0310", "registration_fee": "0"}, &res)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var charged struct {
		Member map[string]any `json:"member"`
		Entry  map[string]any `json:"entry"`
	}
	rr = api.do(t, "POST", fmt.Sprintf("/api/members/%d/registration-fee", res.Member.ID), nil, &charged)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, true, charged.Member["registration_fee_paid"])
	assert.Nil(t, charged.Entry)
}

func TestAPI_LoanLifecycle(t *testing.T) {
	api := setupTestServer(t)
	m := api.createMember(t, "MB0400")

	var lt map[string]any
	rr := api.do(t, "POST", "/api/loan-types", map[string]any{
		"name": "Biashara", "interest_rate": "3.5", "fee_percentage": "4",
		"min_amount": "1000", "max_amount": "50000", "duration_months": 3,
	}, &lt)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	ltID := int64(lt["id"].(float64))

	rr = api.do(t, "POST", "/api/loans", map[string]any{"member_id": m.Member.ID, "loan_type_id": ltID, "amount": "60000"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "outside band")

	var loan map[string]any
	rr = api.do(t, "POST", "/api/loans", map[string]any{"member_id": m.Member.ID, "loan_type_id": ltID, "amount": "20000"}, &loan)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "700.00", loan["interest"])
	assert.Equal(t, "800.00", loan["fee"])
	assert.Equal(t, "21500.00", loan["total"])
	assert.Equal(t, "pending", loan["status"])
	assert.True(t, strings.HasPrefix(loan["loan_number"].(string), "LN-"))
	loanPath := fmt.Sprintf("/api/loans/%d", int64(loan["id"].(float64)))

	rr = api.do(t, "POST", loanPath+"/disburse", nil, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = api.do(t, "POST", loanPath+"/approve", nil, &loan)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "approved", loan["status"])

	var disbursed struct {
		Loan  map[string]any `json:"loan"`
		Entry map[string]any `json:"entry"`
	}
	rr = api.do(t, "POST", loanPath+"/disburse", nil, &disbursed)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "disbursed", disbursed.Loan["status"])
	assert.Equal(t, "loan_disbursement", disbursed.Entry["kind"])
	assert.Equal(t, float64(m.Accounts[1].ID), disbursed.Entry["account_id"])

	rr = api.do(t, "POST", loanPath+"/repayments", map[string]any{"account_id": m.Accounts[1].ID, "amount": "30000"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "overpayment")

	var repaid struct {
		Loan map[string]any `json:"loan"`
	}
	rr = api.do(t, "POST", loanPath+"/repayments", map[string]any{"account_id": m.Accounts[1].ID, "amount": "20000"}, &repaid)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "1500.00", repaid.Loan["outstanding_balance"])

	var list []map[string]any
	rr = api.do(t, "GET", "/api/loans?status=disbursed&branch_id=1", nil, &list)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, list, 1)

	var summary map[string]any
	rr = api.do(t, "GET", "/api/portfolio", nil, &summary)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1500.00", summary["total_outstanding"])
}

func TestAPI_ItemLoanAndStock(t *testing.T) {
	api := setupTestServer(t)
	m := api.createMember(t, "MB0500")

	var product map[string]any
	rr := api.do(t, "POST", "/api/products", map[string]any{
		"name": "Solar lamp", "buying_price": "1500", "selling_price": "2000",
		"stock_quantity": 5, "low_stock_threshold": 3, "critical_stock_threshold": 1,
	}, &product)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	productID := int64(product["id"].(float64))

	var lt map[string]any
	rr = api.do(t, "POST", "/api/loan-types", map[string]any{
		"name": "Asset", "interest_rate": "10", "fee_percentage": "0",
		"min_amount": "100", "max_amount": "100000", "duration_months": 6,
	}, &lt)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	app := map[string]any{
		"member_id":    m.Member.ID,
		"loan_type_id": int64(lt["id"].(float64)),
		"items":        []map[string]any{{"product_id": productID, "quantity": 6}},
	}
	rr = api.do(t, "POST", "/api/loans", app, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	app["items"] = []map[string]any{{"product_id": productID, "quantity": 3}}
	var loan map[string]any
	rr = api.do(t, "POST", "/api/loans", app, &loan)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "6000.00", loan["principal"])

	var items []map[string]any
	rr = api.do(t, "GET", fmt.Sprintf("/api/loans/%d/items", int64(loan["id"].(float64))), nil, &items)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, items, 1)
	assert.Equal(t, "2000.00", items[0]["unit_price"])

	var low []map[string]any
	rr = api.do(t, "GET", "/api/stock/low", nil, &low)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, low, 1)
	assert.Equal(t, "low", low[0]["level"])

	rr = api.do(t, "POST", "/api/stock/restock", map[string]any{"product_id": productID, "quantity": 10, "branch_id": 2}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var moves []map[string]any
	rr = api.do(t, "GET", fmt.Sprintf("/api/stock/movements?product_id=%d", productID), nil, &moves)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, moves, 3)
	assert.True(t, strings.HasPrefix(moves[0]["reference_number"].(string), "RESTOCK-"))

	var inv []map[string]any
	rr = api.do(t, "GET", "/api/stock/branches/2/inventory", nil, &inv)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, inv, 1)
	assert.Equal(t, float64(10), inv[0]["stock_quantity"])

	n, err := checkInventory(context.Background(), api.server.inventory, storetest.Logger())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInventoryWatchSchedule(t *testing.T) {
	api := setupTestServer(t)
	_, err := startInventoryWatch("not a schedule", api.server.inventory, storetest.Logger())
	assert.Error(t, err)

	c, err := startInventoryWatch("@every 1h", api.server.inventory, storetest.Logger())
	require.NoError(t, err)
	c.Stop()
}
