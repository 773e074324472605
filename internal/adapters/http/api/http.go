// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/ranking"
	"github.com/okian/capboard/internal/domain/types"
	"github.com/okian/capboard/pkg/logger"
	"github.com/okian/capboard/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	CompanyDependencies
	TickDependencies
	HealthDependencies
	StatsProvider
}

// CompanyDependencies are the leaderboard reads and writes.
type CompanyDependencies interface {
	Insert(ctx context.Context, c model.Company) error
	IncrementScore(ctx context.Context, symbol string, delta decimal.Decimal) (decimal.Decimal, error)
	Remove(ctx context.Context, symbol string) error
	GetRanked(ctx context.Context, mode ranking.Mode) ([]types.Ranked, error)
	GetBySymbols(ctx context.Context, symbols []string) ([]types.Ranked, error)
	GetRank(ctx context.Context, symbol string) (types.Ranked, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	companiesHandler *CompaniesHandler
	ticksHandler     *TicksHandler
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	logger           logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, l logger.Logger) *Server {
	if l == nil {
		l = logger.Nop()
	}
	return &Server{
		companiesHandler: NewCompaniesHandler(deps),
		ticksHandler:     NewTicksHandler(deps),
		healthHandler:    NewHealthHandler(deps),
		statsHandler:     NewStatsHandler(deps),
		logger:           l,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestID(s.logger, MetricsMiddleware(h, endpoint)))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	route("GET /companies", "companies", s.companiesHandler.HandleList)
	route("POST /companies", "companies", s.companiesHandler.HandleCreate)
	route("GET /companies/{symbol}", "company", s.companiesHandler.HandleGet)
	route("PATCH /companies/{symbol}", "company", s.companiesHandler.HandleIncrement)
	route("DELETE /companies/{symbol}", "company", s.companiesHandler.HandleDelete)
	route("POST /ticks", "ticks", s.ticksHandler.HandlePostTick)

	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
