package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/config"
	"github.com/mcclellann/imarisha/pkg/ledger"
	"github.com/mcclellann/imarisha/pkg/loan"
	"github.com/mcclellann/imarisha/pkg/portfolio"
	"github.com/mcclellann/imarisha/pkg/stock"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/mcclellann/imarisha/pkg/transfer"
	"github.com/sirupsen/logrus"
)

// Server holds the engines behind the HTTP API.
type Server struct {
	store     store.Store
	accounts  *ledger.Ledger
	inventory *stock.Ledger
	loans     *loan.Engine
	transfers *transfer.Service
	portfolio *portfolio.Service
	cfg       *config.Config
	log       *logrus.Logger
}

func NewServer(s store.Store, cfg *config.Config, log *logrus.Logger) (*Server, error) {
	accounts := ledger.NewLedger(s, log)
	inventory := stock.NewLedger(s, log)
	loans := loan.NewEngine(s, accounts, inventory, log)
	if err := loans.SetDisbursementAccount(cfg.DisbursementAccount); err != nil {
		return nil, err
	}
	return &Server{
		store:     s,
		accounts:  accounts,
		inventory: inventory,
		loans:     loans,
		transfers: transfer.NewService(s, accounts, log),
		portfolio: portfolio.NewService(s, inventory),
		cfg:       cfg,
		log:       log,
	}, nil
}

// Router builds the route table. Everything under /api needs a staff token.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware([]byte(s.cfg.JWTSecret)))

	api.HandleFunc("/members", s.createMemberHandler).Methods("POST")
	api.HandleFunc("/members/{id:[0-9]+}", s.getMemberHandler).Methods("GET")
	api.HandleFunc("/members/{id:[0-9]+}/registration-fee", s.registrationFeeHandler).Methods("POST")

	api.HandleFunc("/accounts/{id:[0-9]+}", s.getAccountHandler).Methods("GET")
	api.HandleFunc("/accounts/{id:[0-9]+}/history", s.historyHandler).Methods("GET")
	api.HandleFunc("/accounts/{id:[0-9]+}/deposit", s.depositHandler).Methods("POST")
	api.HandleFunc("/accounts/{id:[0-9]+}/withdraw", s.withdrawHandler).Methods("POST")
	api.HandleFunc("/accounts/{id:[0-9]+}/reconcile", s.reconcileHandler).Methods("GET")

	api.HandleFunc("/transfers", s.transferHandler).Methods("POST")

	api.HandleFunc("/loan-types", s.createLoanTypeHandler).Methods("POST")
	api.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	api.HandleFunc("/loans", s.originateLoanHandler).Methods("POST")
	api.HandleFunc("/loans/{id:[0-9]+}", s.getLoanHandler).Methods("GET")
	api.HandleFunc("/loans/{id:[0-9]+}/items", s.loanItemsHandler).Methods("GET")
	api.HandleFunc("/loans/{id:[0-9]+}/approve", s.approveLoanHandler).Methods("POST")
	api.HandleFunc("/loans/{id:[0-9]+}/reject", s.rejectLoanHandler).Methods("POST")
	api.HandleFunc("/loans/{id:[0-9]+}/disburse", s.disburseLoanHandler).Methods("POST")
	api.HandleFunc("/loans/{id:[0-9]+}/default", s.defaultLoanHandler).Methods("POST")
	api.HandleFunc("/loans/{id:[0-9]+}/repayments", s.repayLoanHandler).Methods("POST")

	api.HandleFunc("/products", s.listProductsHandler).Methods("GET")
	api.HandleFunc("/products", s.createProductHandler).Methods("POST")
	api.HandleFunc("/stock/movements", s.listMovementsHandler).Methods("GET")
	api.HandleFunc("/stock/movements", s.createMovementHandler).Methods("POST")
	api.HandleFunc("/stock/restock", s.restockHandler).Methods("POST")
	api.HandleFunc("/stock/low", s.lowStockHandler).Methods("GET")
	api.HandleFunc("/stock/critical", s.criticalStockHandler).Methods("GET")
	api.HandleFunc("/stock/branches/{id:[0-9]+}/inventory", s.branchInventoryHandler).Methods("GET")

	api.HandleFunc("/portfolio", s.portfolioHandler).Methods("GET")
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInsufficientFunds, apperr.KindInsufficientStock:
		return http.StatusUnprocessableEntity
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and body. Internal errors are logged and
// answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	body := errorBody{Error: err.Error(), Code: kind.String()}
	var e *apperr.Error
	if errors.As(err, &e) {
		body.Field = e.Field
	}
	if kind == apperr.KindInternal {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		body = errorBody{Error: "internal server error", Code: kind.String()}
	}
	writeJSON(w, statusOf(kind), body)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("body", "invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

// queryInt reads an optional integer query parameter; absent means zero.
func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation(name, "must be an integer")
	}
	return v, nil
}

func cursorFrom(r *http.Request) (store.Cursor, error) {
	before, err := queryInt(r, "before_id")
	if err != nil {
		return store.Cursor{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return store.Cursor{}, err
	}
	return store.Cursor{BeforeID: before, Limit: int(limit)}.Normalize(), nil
}
