package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	nativecommon "lendvault/native/common"
	"lendvault/native/oracle"
	"lendvault/native/positions"
	"lendvault/native/vault"
	"lendvault/observability"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// Server exposes the vault engine over HTTP.
type Server struct {
	engine    *vault.Engine
	valuer    *oracle.Valuer
	positions *positions.Registry
	switches  *nativecommon.Switches
	logger    *slog.Logger
	limiter   *rateLimiter
}

// Option customises a Server.
type Option func(*Server)

// WithValuer mounts the oracle quote submission endpoint.
func WithValuer(v *oracle.Valuer) Option {
	return func(s *Server) { s.valuer = v }
}

// WithDevPositions mounts unauthenticated position minting endpoints backed
// by the in-memory registry. Development deployments only.
func WithDevPositions(r *positions.Registry) Option {
	return func(s *Server) { s.positions = r }
}

// WithPauses mounts the administrative pause endpoint over the given
// switch set. The same set must be wired into the engine.
func WithPauses(switches *nativecommon.Switches) Option {
	return func(s *Server) { s.switches = switches }
}

// WithRateLimit applies a per-client request budget to all API routes.
func WithRateLimit(requestsPerMinute float64, burst int) Option {
	return func(s *Server) { s.limiter = newRateLimiter(requestsPerMinute, burst) }
}

// NewServer builds an HTTP front for the engine. A nil logger falls back to
// the process default.
func NewServer(engine *vault.Engine, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{engine: engine, logger: logger.With("component", "rpc")}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}

		r.Get("/market", s.getMarket)
		r.Get("/reserves", s.getReserves)
		r.Post("/reserves/withdraw", s.withdrawReserves)
		r.Get("/lenders/{address}", s.getLender)

		r.Route("/pool", func(r chi.Router) {
			r.Post("/deposit", s.deposit)
			r.Post("/redeem", s.redeem)
			r.Post("/withdraw", s.withdraw)
			r.Get("/preview", s.preview)
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", s.createLoan)
			r.Get("/{id}", s.getLoan)
			r.Post("/{id}/borrow", s.borrow)
			r.Post("/{id}/repay", s.repay)
			r.Post("/{id}/liquidate", s.liquidate)
			r.Post("/{id}/transform", s.transform)
			r.Post("/{id}/operators", s.approveOperator)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/token-config", s.setTokenConfig)
			r.Post("/global-limits", s.setGlobalLimits)
			r.Post("/daily-limits", s.setDailyLimits)
			r.Post("/reserve-factor", s.setReserveFactor)
			r.Post("/reserve-protection", s.setReserveProtection)
			r.Post("/transformers/remove", s.removeTransformer)
			if s.switches != nil {
				r.Post("/pause", s.setPaused)
			}
		})

		if s.valuer != nil {
			r.Post("/oracle/quotes", s.submitQuote)
		}
		if s.positions != nil {
			r.Post("/dev/positions", s.mintPosition)
		}
	})

	return r
}

// observe records per-route request metrics and an access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	metrics := observability.HTTP()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		duration := time.Since(start)
		metrics.Observe(route, r.Method, ww.Status(), duration)
		s.logger.Debug("http request",
			"route", route,
			"method", r.Method,
			"status", ww.Status(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// statusFor maps engine and oracle errors onto HTTP status codes. Unknown
// errors are treated as internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidConfig),
		errors.Is(err, oracle.ErrInvalidQuote):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrLoanNotFound),
		errors.Is(err, vault.ErrTokenNotConfigured),
		errors.Is(err, oracle.ErrUnknownToken),
		errors.Is(err, positions.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, vault.ErrInsufficientLiquidity),
		errors.Is(err, vault.ErrInsufficientReserves),
		errors.Is(err, vault.ErrPositionPledged),
		errors.Is(err, vault.ErrNotHealthy),
		errors.Is(err, vault.ErrNotLiquidatable),
		errors.Is(err, vault.ErrNoDebt),
		errors.Is(err, vault.ErrRepayExceedsDebt),
		errors.Is(err, vault.ErrMinLoanSize),
		errors.Is(err, vault.ErrDailyLimitExceeded),
		errors.Is(err, vault.ErrGlobalLendLimit),
		errors.Is(err, vault.ErrGlobalDebtLimit),
		errors.Is(err, vault.ErrCollateralValueLimit),
		errors.Is(err, vault.ErrTransformActive),
		errors.Is(err, vault.ErrTransformerNotAllowed),
		errors.Is(err, vault.ErrOwnershipLost),
		errors.Is(err, oracle.ErrPriceDeviation),
		errors.Is(err, oracle.ErrNoFreshQuote):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeRequest(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, requestBodyLimit)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

// parseAmount accepts a non-negative decimal string. Handlers that require a
// positive amount rely on the engine's own validation.
func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	return amount, nil
}

func parseOptionalAmount(field, value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	return parseAmount(field, value)
}

func errExactlyOneOf(a, b string) error {
	return fmt.Errorf("exactly one of %s and %s must be provided", a, b)
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func positionID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id: invalid position id %q", raw)
	}
	return id, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
