package main

import (
	"net/http"

	"github.com/mcclellann/imarisha/pkg/apperr"
	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/mcclellann/imarisha/pkg/stock"
	"github.com/mcclellann/imarisha/pkg/store"
	"github.com/shopspring/decimal"
)

func (s *Server) createProductHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name                   string          `json:"name"`
		BuyingPrice            decimal.Decimal `json:"buying_price"`
		SellingPrice           decimal.Decimal `json:"selling_price"`
		StockQuantity          int64           `json:"stock_quantity"`
		LowStockThreshold      int64           `json:"low_stock_threshold"`
		CriticalStockThreshold int64           `json:"critical_stock_threshold"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var err error
	switch {
	case req.Name == "":
		err = apperr.Validation("name", "is required")
	case req.BuyingPrice.IsNegative() || !models.HasMoneyPrecision(req.BuyingPrice):
		err = apperr.Validation("buying_price", "must be a non-negative amount with at most 2 decimal places")
	case !req.SellingPrice.IsPositive() || !models.HasMoneyPrecision(req.SellingPrice):
		err = apperr.Validation("selling_price", "must be a positive amount with at most 2 decimal places")
	case req.StockQuantity < 0:
		err = apperr.Validation("stock_quantity", "must not be negative")
	case req.CriticalStockThreshold < 0 || req.LowStockThreshold < req.CriticalStockThreshold:
		err = apperr.Validation("low_stock_threshold", "must be at least the critical threshold")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p := &models.Product{
		Name:                   req.Name,
		BuyingPrice:            req.BuyingPrice,
		SellingPrice:           req.SellingPrice,
		StockQuantity:          req.StockQuantity,
		LowStockThreshold:      req.LowStockThreshold,
		CriticalStockThreshold: req.CriticalStockThreshold,
		IsActive:               true,
	}
	if err := s.store.CreateProduct(r.Context(), p); err != nil {
		s.writeError(w, r, apperr.Wrap("create product", err))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts(r.Context())
	if err != nil {
		s.writeError(w, r, apperr.Wrap("list products", err))
		return
	}
	if products == nil {
		products = []*models.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) createMovementHandler(w http.ResponseWriter, r *http.Request) {
	var req stock.MovementRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.StaffID = staffID(r)
	mv, err := s.inventory.Move(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mv)
}

func (s *Server) listMovementsHandler(w http.ResponseWriter, r *http.Request) {
	cursor, err := cursorFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	product, err := queryInt(r, "product_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	branch, err := queryInt(r, "branch_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kind := models.MovementKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		s.writeError(w, r, apperr.Validation("kind", "unknown movement kind %q", kind))
		return
	}
	mvs, err := s.inventory.Movements(r.Context(), store.MovementFilter{ProductID: product, BranchID: branch, Kind: kind, Cursor: cursor})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mvs)
}

func (s *Server) restockHandler(w http.ResponseWriter, r *http.Request) {
	var req stock.RestockRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.StaffID = staffID(r)
	mv, err := s.inventory.Restock(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mv)
}

func (s *Server) lowStockHandler(w http.ResponseWriter, r *http.Request) {
	branch, err := queryInt(r, "branch_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	alerts, err := s.inventory.LowStockReport(r.Context(), branch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) criticalStockHandler(w http.ResponseWriter, r *http.Request) {
	branch, err := queryInt(r, "branch_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	alerts, err := s.inventory.CriticalStockReport(r.Context(), branch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) branchInventoryHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := s.inventory.BranchInventory(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
