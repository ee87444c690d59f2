package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vadiminshakov/tbills/internal/domain"
	"go.uber.org/zap"
)

const defaultPerPage = 20

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type balanceResponse struct {
	Identity string `json:"identity"`
	Balance  int64  `json:"balance"`
}

type purchaseRequest struct {
	BillID      uint64 `json:"bill_id"`
	TokenAmount int64  `json:"token_amount"`
}

type kycRequest struct {
	Status domain.KYCStatus `json:"status"`
}

type brokerPurchaseRequest struct {
	Amount      int64  `json:"amount"`
	Price       int64  `json:"price"`
	BrokerTxnID string `json:"broker_txn_id"`
	BillType    string `json:"bill_type"`
}

type adminRequest struct {
	Identity string `json:"identity"`
}

// GET /bills?page=0&per_page=20
func (s *Server) handleBillsPage(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	perPage, err := queryInt(r, "per_page", defaultPerPage)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	out, err := s.trading.BillsPage(r.Context(), page, perPage)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) handleActiveBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.trading.ActiveBills(r.Context())
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, bills)
}

func (s *Server) handleBill(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uintParam(w, r, "billID")
	if !ok {
		return
	}

	bill, err := s.trading.Bill(r.Context(), id)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, bill)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uintParam(w, r, "billID")
	if !ok {
		return
	}

	out, err := s.trading.BillAvailability(r.Context(), id)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, out)
}

// GET /bills/{billID}/cost?tokens=10
func (s *Server) handlePurchaseCost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uintParam(w, r, "billID")
	if !ok {
		return
	}
	tokens, err := strconv.ParseInt(r.URL.Query().Get("tokens"), 10, 64)
	if err != nil {
		s.respondWithError(w, domain.ErrInvalidTokenAmount)
		return
	}

	cost, err := s.trading.CalculatePurchaseCost(r.Context(), id, tokens)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]any{"bill_id": id, "tokens": tokens, "cost": cost})
}

func (s *Server) handlePlatformConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.trading.PlatformConfig(r.Context())
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleTradingMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.trading.TradingMetrics(r.Context())
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, m)
}

// GET /rates?cusip=912796RF6
func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.trading.Rates(r.Context(), strings.TrimSpace(r.URL.Query().Get("cusip")))
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, rates)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.trading.Stats(r.Context())
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegistrationRequest
	if !s.decode(w, r, &req) {
		return
	}

	account, err := s.trading.RegisterAccount(r.Context(), Caller(r.Context()), req)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, account)
}

func (s *Server) handleMyAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.trading.Account(r.Context(), Caller(r.Context()))
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, account)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}

	caller := Caller(r.Context())
	balance, err := s.trading.Deposit(r.Context(), caller, req.Amount)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, balanceResponse{Identity: caller, Balance: balance})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}

	caller := Caller(r.Context())
	balance, err := s.trading.Withdraw(r.Context(), caller, req.Amount)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, balanceResponse{Identity: caller, Balance: balance})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !s.decode(w, r, &req) {
		return
	}

	holding, err := s.trading.Purchase(r.Context(), req.BillID, req.TokenAmount, Caller(r.Context()))
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, holding)
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.trading.HoldingsByOwner(r.Context(), Caller(r.Context()))
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, holdings)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uintParam(w, r, "holdingID")
	if !ok {
		return
	}

	p, err := s.yields.Projection(r.Context(), id)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, p)
}

func (s *Server) handleCurrentValue(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uintParam(w, r, "holdingID")
	if !ok {
		return
	}

	v, err := s.yields.CurrentValue(r.Context(), id)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]any{"holding_id": id, "current_value": v})
}

func (s *Server) handleMaturedYield(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uintParam(w, r, "holdingID")
	if !ok {
		return
	}

	v, err := s.yields.MaturedYield(r.Context(), id)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]any{"holding_id": id, "yield": v})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.trading.TransactionsByOwner(r.Context(), Caller(r.Context()))
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req domain.BillCreateRequest
	if !s.decode(w, r, &req) {
		return
	}

	bill, err := s.trading.CreateBill(r.Context(), req)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, bill)
}

func (s *Server) handleMatureBills(w http.ResponseWriter, r *http.Request) {
	n, err := s.trading.MatureBills(r.Context())
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]int{"matured": n})
}

func (s *Server) handleUpdateKYC(w http.ResponseWriter, r *http.Request) {
	var req kycRequest
	if !s.decode(w, r, &req) {
		return
	}

	account, err := s.trading.UpdateKYCStatus(r.Context(), chi.URLParam(r, "identity"), req.Status)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, account)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.PlatformConfig
	if !s.decode(w, r, &cfg) {
		return
	}

	if err := s.trading.UpdatePlatformConfig(r.Context(), cfg); err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleBrokerPurchases(w http.ResponseWriter, r *http.Request) {
	ledger, err := s.trading.BrokerPurchases(r.Context())
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, ledger)
}

func (s *Server) handleAddBrokerPurchase(w http.ResponseWriter, r *http.Request) {
	var req brokerPurchaseRequest
	if !s.decode(w, r, &req) {
		return
	}

	p, err := s.trading.AddBrokerPurchase(r.Context(), req.Amount, req.Price, req.BrokerTxnID, req.BillType)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, p)
}

func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.rates.Refresh(r.Context())
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, rates)
}

// GET /admin/transactions?type=Fee
func (s *Server) handleTransactionsByType(w http.ResponseWriter, r *http.Request) {
	typ := domain.TransactionType(r.URL.Query().Get("type"))

	txs, err := s.trading.TransactionsByType(r.Context(), typ)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, txs)
}

func (s *Server) handleListAdmins(w http.ResponseWriter, _ *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.admins.List())
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !s.decode(w, r, &req) {
		return
	}
	if domain.IsAnonymous(req.Identity) {
		s.respondWithError(w, domain.ErrAnonymousCaller.Withf("anonymous identity cannot be authorized"))
		return
	}

	added := s.admins.Add(req.Identity)
	s.logger.Info("admin added", zap.String("identity", req.Identity), zap.String("by", Caller(r.Context())), zap.Bool("new", added))
	s.respondWithJSON(w, http.StatusOK, s.admins.List())
}

func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if !s.admins.Remove(identity) {
		s.respondWithError(w, domain.ErrRecordNotFound.Withf("admin %s not found", identity))
		return
	}

	s.logger.Info("admin removed", zap.String("identity", identity), zap.String("by", Caller(r.Context())))
	s.respondWithJSON(w, http.StatusOK, s.admins.List())
}
