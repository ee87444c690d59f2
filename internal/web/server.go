package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/metrics"
	"github.com/vadiminshakov/tbills/internal/services/trading"
	"go.uber.org/zap"
)

const (
	// CallerHeader carries the identity resolved by the fronting gateway.
	CallerHeader = "X-Caller-Identity"

	requestTimeout     = 15 * time.Second
	transactionPollInt = 2 * time.Second
)

// Trading is the engine surface exposed over HTTP.
type Trading interface {
	Purchase(ctx context.Context, billID uint64, tokenAmount int64, buyer string) (*domain.Holding, error)
	CalculatePurchaseCost(ctx context.Context, billID uint64, tokenAmount int64) (int64, error)
	Deposit(ctx context.Context, identity string, amount int64) (int64, error)
	Withdraw(ctx context.Context, identity string, amount int64) (int64, error)
	RegisterAccount(ctx context.Context, identity string, req domain.RegistrationRequest) (*domain.Account, error)
	UpdateKYCStatus(ctx context.Context, identity string, status domain.KYCStatus) (*domain.Account, error)
	Account(ctx context.Context, identity string) (*domain.Account, error)
	HoldingsByOwner(ctx context.Context, owner string) ([]domain.Holding, error)
	TransactionsByOwner(ctx context.Context, owner string) ([]domain.Transaction, error)
	TransactionsFrom(ctx context.Context, owner string, from uint64) ([]domain.Transaction, error)
	TransactionsByType(ctx context.Context, typ domain.TransactionType) ([]domain.Transaction, error)
	CreateBill(ctx context.Context, req domain.BillCreateRequest) (*domain.Bill, error)
	Bill(ctx context.Context, id uint64) (*domain.Bill, error)
	ActiveBills(ctx context.Context) ([]domain.Bill, error)
	BillsPage(ctx context.Context, page, perPage int) (domain.Page[domain.Bill], error)
	BillAvailability(ctx context.Context, id uint64) (*trading.Availability, error)
	MatureBills(ctx context.Context) (int, error)
	PlatformConfig(ctx context.Context) (domain.PlatformConfig, error)
	UpdatePlatformConfig(ctx context.Context, cfg domain.PlatformConfig) error
	TradingMetrics(ctx context.Context) (domain.TradingMetrics, error)
	AddBrokerPurchase(ctx context.Context, amount, price int64, brokerTxnID, billType string) (*domain.VerifiedBrokerPurchase, error)
	BrokerPurchases(ctx context.Context) ([]domain.VerifiedBrokerPurchase, error)
	Rates(ctx context.Context, cusip string) ([]domain.TreasuryRate, error)
	Stats(ctx context.Context) (map[string]int, error)
}

// Yields serves holding yield figures.
type Yields interface {
	Projection(ctx context.Context, holdingID uint64) (*domain.YieldProjection, error)
	CurrentValue(ctx context.Context, holdingID uint64) (int64, error)
	MaturedYield(ctx context.Context, holdingID uint64) (int64, error)
}

// RateRefresher reloads external treasury rates on demand.
type RateRefresher interface {
	Refresh(ctx context.Context) ([]domain.TreasuryRate, error)
}

// Admins is the authorization set gating administrative routes.
type Admins interface {
	AssertAdmin(caller string) error
	Add(identity string) bool
	Remove(identity string) bool
	List() []string
}

// Server exposes the platform operations as a JSON API with an SSE transaction stream.
type Server struct {
	Addr     string
	trading  Trading
	yields   Yields
	rates    RateRefresher
	admins   Admins
	logger   *zap.Logger
	pollTick time.Duration
}

// NewServer creates a new web server instance.
func NewServer(addr string, t Trading, y Yields, r RateRefresher, a Admins, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		Addr:     addr,
		trading:  t,
		yields:   y,
		rates:    r,
		admins:   a,
		logger:   logger,
		pollTick: transactionPollInt,
	}
}

// Handler builds the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(withCaller)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	// streams stay open past the request timeout
	r.With(s.requireUser).Get("/transactions/stream", s.handleTransactionStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/bills", func(r chi.Router) {
			r.Get("/", s.handleBillsPage)
			r.Get("/active", s.handleActiveBills)
			r.Get("/{billID}", s.handleBill)
			r.Get("/{billID}/availability", s.handleAvailability)
			r.Get("/{billID}/cost", s.handlePurchaseCost)
		})
		r.Get("/config", s.handlePlatformConfig)
		r.Get("/trading/metrics", s.handleTradingMetrics)
		r.Get("/rates", s.handleRates)
		r.Get("/stats", s.handleStats)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Post("/accounts", s.handleRegister)
			r.Get("/accounts/me", s.handleMyAccount)
			r.Post("/wallet/deposit", s.handleDeposit)
			r.Post("/wallet/withdraw", s.handleWithdraw)
			r.Post("/purchases", s.handlePurchase)
			r.Get("/holdings", s.handleHoldings)
			r.Get("/holdings/{holdingID}/projection", s.handleProjection)
			r.Get("/holdings/{holdingID}/value", s.handleCurrentValue)
			r.Get("/holdings/{holdingID}/matured-yield", s.handleMaturedYield)
			r.Get("/transactions", s.handleTransactions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Post("/bills", s.handleCreateBill)
			r.Post("/bills/mature", s.handleMatureBills)
			r.Put("/accounts/{identity}/kyc", s.handleUpdateKYC)
			r.Put("/config", s.handleUpdateConfig)
			r.Get("/broker-purchases", s.handleBrokerPurchases)
			r.Post("/broker-purchases", s.handleAddBrokerPurchase)
			r.Post("/rates/refresh", s.handleRefreshRates)
			r.Get("/transactions", s.handleTransactionsByType)
			r.Get("/admins", s.handleListAdmins)
			r.Post("/admins", s.handleAddAdmin)
			r.Delete("/admins/{identity}", s.handleRemoveAdmin)
		})
	})

	return metrics.InstrumentHandler(r)
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
