package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fundtreasury/gateway/middleware"
	"fundtreasury/ledger"
	"fundtreasury/storage/audit"
)

// RateLimitKey is the limiter bucket shared by every mutating route.
const RateLimitKey = "mutations"

type Config struct {
	Ledger        *ledger.Ledger
	Audit         *audit.Store
	ExportDir     string
	MaxPageSize   int
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Idempotency   *middleware.IdempotencyStore
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

type server struct {
	ledger      *ledger.Ledger
	audit       *audit.Store
	exportDir   string
	maxPageSize int
	logger      *slog.Logger
}

// New mounts the treasury API. Queries accept anonymous callers; every
// mutating route requires a bearer token naming the caller.
func New(cfg Config) (http.Handler, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("routes: ledger required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("routes: authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxPage := cfg.MaxPageSize
	if maxPage <= 0 {
		maxPage = 500
	}
	s := &server{
		ledger:      cfg.Ledger,
		audit:       cfg.Audit,
		exportDir:   cfg.ExportDir,
		maxPageSize: maxPage,
		logger:      logger,
	}

	obs := cfg.Observability
	named := func(name string, h http.HandlerFunc) http.Handler {
		if obs == nil {
			return h
		}
		return obs.Middleware(name)(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	r.Route("/v1", func(v chi.Router) {
		v.Use(cfg.Authenticator.Middleware(false))

		v.Method(http.MethodGet, "/treasury", named("treasury.summary", s.handleSummary))
		v.Method(http.MethodGet, "/owner", named("treasury.owner", s.handleOwner))
		v.Method(http.MethodGet, "/authorities", named("authorities.list", s.handleListAuthorities))
		v.Method(http.MethodGet, "/authorities/{address}", named("authorities.get", s.handleIsAuthority))
		v.Method(http.MethodGet, "/threshold", named("threshold.get", s.handleThreshold))
		v.Method(http.MethodGet, "/proposals", named("proposals.list", s.handleListProposals))
		v.Method(http.MethodGet, "/proposals/{id}", named("proposals.get", s.handleGetProposal))
		v.Method(http.MethodGet, "/proposals/{id}/stage", named("proposals.stage", s.handleStageDetails))
		v.Method(http.MethodGet, "/transfers", named("transfers.list", s.handleTransfers))
		v.Method(http.MethodGet, "/journal", named("journal.list", s.handleJournal))
		v.Method(http.MethodGet, "/journal/verify", named("journal.verify", s.handleVerifyJournal))
		v.Method(http.MethodGet, "/audit/records", named("audit.records", s.handleAuditRecords))
		v.Method(http.MethodGet, "/events", named("events.stream", s.handleEvents))

		v.Group(func(m chi.Router) {
			m.Use(cfg.Authenticator.Middleware(true))
			if cfg.RateLimiter != nil {
				m.Use(cfg.RateLimiter.Middleware(RateLimitKey))
			}
			if cfg.Idempotency != nil {
				m.Use(cfg.Idempotency.Middleware)
			}
			m.Method(http.MethodPost, "/deposits", named("treasury.deposit", s.handleDeposit))
			m.Method(http.MethodPost, "/authorities", named("authorities.add", s.handleAddAuthority))
			m.Method(http.MethodDelete, "/authorities/{address}", named("authorities.remove", s.handleRemoveAuthority))
			m.Method(http.MethodPut, "/threshold", named("threshold.update", s.handleUpdateThreshold))
			m.Method(http.MethodPost, "/proposals", named("proposals.submit", s.handleSubmitProposal))
			m.Method(http.MethodPost, "/proposals/{id}/votes", named("proposals.vote", s.handleVote))
			m.Method(http.MethodPost, "/proposals/{id}/release-initial", named("proposals.release_initial", s.handleReleaseInitial))
			m.Method(http.MethodPost, "/proposals/{id}/report", named("proposals.report", s.handleStageReport))
			m.Method(http.MethodPost, "/proposals/{id}/stage-approvals", named("proposals.approve_stage", s.handleApproveStage))
			m.Method(http.MethodPost, "/proposals/{id}/release-final", named("proposals.release_final", s.handleReleaseFinal))
			m.Method(http.MethodPost, "/audit/exports", named("audit.export", s.handleAuditExport))
		})
	})

	return r, nil
}
