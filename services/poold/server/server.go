package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assetpool/core/types"
	"assetpool/crypto"
	nativecommon "assetpool/native/common"
	"assetpool/native/loans"
	"assetpool/native/oracle"
	"assetpool/native/pool"
	"assetpool/observability"
	"assetpool/services/poold/storage"
	"assetpool/state/bank"
)

// Ledger is the custody view the API needs beyond the engine contract.
type Ledger interface {
	bank.Ledger
	Balances(account crypto.Address) (map[types.Asset]uint64, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress         string
	DefaultSlippageBps    uint64
	DefaultLoanDurationMs uint64
	DefaultLoanRateBps    uint64
}

// Deps carries the engine resources and middleware the server exposes.
type Deps struct {
	Oracle  *oracle.Oracle
	Pool    *pool.Pool
	Book    *loans.Book
	Ledger  Ledger
	Pauses  *nativecommon.PauseSet
	Auth    *Authenticator
	Limiter *RateLimiter
	Quota   *nativecommon.QuotaTracker
	Store   *storage.Storage
	Stream  http.Handler
	Now     func() time.Time
	Logger  *slog.Logger
}

// Server hosts the poold HTTP API.
type Server struct {
	cfg     Config
	oracle  *oracle.Oracle
	pool    *pool.Pool
	book    *loans.Book
	ledger  Ledger
	pauses  *nativecommon.PauseSet
	auth    *Authenticator
	limiter *RateLimiter
	quota   *nativecommon.QuotaTracker
	store   *storage.Storage
	stream  http.Handler
	now     func() time.Time
	logger  *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Oracle == nil || deps.Pool == nil || deps.Book == nil {
		return nil, fmt.Errorf("oracle, pool and loan book required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Pauses == nil {
		deps.Pauses = nativecommon.NewPauseSet()
	}
	srv := &Server{
		cfg:     cfg,
		oracle:  deps.Oracle,
		pool:    deps.Pool,
		book:    deps.Book,
		ledger:  deps.Ledger,
		pauses:  deps.Pauses,
		auth:    deps.Auth,
		limiter: deps.Limiter,
		quota:   deps.Quota,
		store:   deps.Store,
		stream:  deps.Stream,
		now:     deps.Now,
		logger:  deps.Logger,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Route("/pool", func(pr chi.Router) {
			pr.Use(s.limiter.Middleware(nativecommon.ModulePool))
			pr.Method(http.MethodGet, "/", instrument("pool", "state", http.HandlerFunc(s.handlePoolState)))
			pr.Method(http.MethodGet, "/quote", instrument("pool", "quote", http.HandlerFunc(s.handleQuote)))
			pr.Method(http.MethodGet, "/positions/{account}", instrument("pool", "position", http.HandlerFunc(s.handlePosition)))
			pr.With(s.auth.Middleware(ScopeTrade)).Method(http.MethodPost, "/liquidity/add", instrument("pool", "add_liquidity", http.HandlerFunc(s.handleAddLiquidity)))
			pr.With(s.auth.Middleware(ScopeTrade)).Method(http.MethodPost, "/liquidity/remove", instrument("pool", "remove_liquidity", http.HandlerFunc(s.handleRemoveLiquidity)))
			pr.With(s.auth.Middleware(ScopeTrade)).Method(http.MethodPost, "/swap", instrument("pool", "swap", http.HandlerFunc(s.handleSwap)))
			pr.With(s.auth.Middleware(ScopeAdmin)).Method(http.MethodPost, "/fee", instrument("pool", "set_fee", http.HandlerFunc(s.handleSetFee)))
		})
		api.Route("/oracle", func(or chi.Router) {
			or.Use(s.limiter.Middleware(nativecommon.ModuleOracle))
			or.Method(http.MethodGet, "/", instrument("oracle", "read", http.HandlerFunc(s.handleOracleState)))
			or.With(s.auth.Middleware(ScopeFeed)).Method(http.MethodPost, "/price", instrument("oracle", "update", http.HandlerFunc(s.handleUpdatePrice)))
		})
		api.Route("/loans", func(lr chi.Router) {
			lr.Use(s.limiter.Middleware(nativecommon.ModuleLoans))
			lr.Method(http.MethodGet, "/", instrument("loans", "list", http.HandlerFunc(s.handleListLoans)))
			lr.Method(http.MethodGet, "/past-due", instrument("loans", "past_due", http.HandlerFunc(s.handlePastDue)))
			lr.Method(http.MethodGet, "/{id}", instrument("loans", "get", http.HandlerFunc(s.handleGetLoan)))
			lr.With(s.auth.Middleware(ScopeBorrow)).Method(http.MethodPost, "/", instrument("loans", "create", http.HandlerFunc(s.handleCreateLoan)))
			lr.With(s.auth.Middleware(ScopeBorrow)).Method(http.MethodPost, "/{id}/repay", instrument("loans", "repay", http.HandlerFunc(s.handleRepayLoan)))
			lr.With(s.auth.Middleware(ScopeTreasury)).Method(http.MethodPost, "/{id}/seize", instrument("loans", "seize", http.HandlerFunc(s.handleSeizeLoan)))
		})
		api.Method(http.MethodGet, "/accounts/{account}/balances", instrument("ledger", "balances", http.HandlerFunc(s.handleBalances)))
		api.Method(http.MethodGet, "/events", instrument("events", "list", http.HandlerFunc(s.handleListEvents)))
		if s.stream != nil {
			api.Handle("/events/stream", s.stream)
		}
		api.Route("/admin", func(ar chi.Router) {
			ar.Use(s.auth.Middleware(ScopeAdmin))
			ar.Method(http.MethodGet, "/pauses", instrument("admin", "pauses", http.HandlerFunc(s.handleListPauses)))
			ar.Method(http.MethodPost, "/pauses", instrument("admin", "set_pause", http.HandlerFunc(s.handleSetPause)))
			ar.Method(http.MethodPost, "/credit", instrument("admin", "credit", http.HandlerFunc(s.handleCredit)))
		})
	})
	return r
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("http server listening", "addr", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "paused": s.pauses.Paused()})
}

func (s *Server) nowMs() uint64 {
	return uint64(s.now().UnixMilli())
}

func (s *Server) principal(w http.ResponseWriter, r *http.Request) (*Principal, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return principal, true
}

// requirePoolAdmin restricts operator endpoints to the configured admin
// account in addition to the admin scope.
func (s *Server) requirePoolAdmin(w http.ResponseWriter, p *Principal) bool {
	if p.Subject != s.pool.State().Admin {
		writeError(w, http.StatusForbidden, "caller is not the pool admin")
		return false
	}
	return true
}

func pathAccount(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "account"))
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account")
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) refreshPoolGauges() {
	st := s.pool.State()
	observability.Pool().SetReserves(st.AssetA.String(), st.ReserveA, st.AssetB.String(), st.ReserveB, st.Supply)
}

func (s *Server) refreshLoanGauges() {
	var principal, collateral uint64
	all := s.book.List(crypto.Address{})
	active := 0
	for _, loan := range all {
		if loan.Status != loans.StatusActive {
			continue
		}
		active++
		principal += loan.Principal
		collateral += loan.Collateral
	}
	observability.Loans().SetBook(active, principal, collateral, s.book.Issuer().Supply())
}
