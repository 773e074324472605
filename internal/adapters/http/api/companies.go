package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/ranking"
	"github.com/okian/capboard/internal/domain/types"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// CompaniesHandler serves the /companies routes.
type CompaniesHandler struct {
	deps CompanyDependencies
}

// NewCompaniesHandler creates a new companies handler.
func NewCompaniesHandler(deps CompanyDependencies) *CompaniesHandler {
	return &CompaniesHandler{deps: deps}
}

type incrementRequest struct {
	Amount decimal.NullDecimal `json:"amount"`
}

type scoreResponse struct {
	Symbol    string `json:"symbol"`
	MarketCap string `json:"marketCap"`
}

// HandleList handles GET /companies?sort=MODE and GET /companies?symbols=a,b.
// Without a query it returns the whole leaderboard.
func (h *CompaniesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_companies"
	q := r.URL.Query()

	if q.Has("symbols") {
		var symbols []string
		for _, s := range strings.Split(q.Get("symbols"), ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) == 0 {
			writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("empty symbols list")))
			return
		}
		rows, err := h.deps.GetBySymbols(r.Context(), symbols)
		if err != nil {
			writeError(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}

	mode := ranking.ModeAll
	if q.Has("sort") {
		m, err := ranking.ParseMode(q.Get("sort"))
		if err != nil {
			writeError(w, Wrap(op, err))
			return
		}
		mode = m
	}
	rows, err := h.deps.GetRanked(r.Context(), mode)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if rows == nil {
		rows = []types.Ranked{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleGet handles GET /companies/{symbol}: one company with its rank on
// the full leaderboard.
func (h *CompaniesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_company"
	row, err := h.deps.GetRank(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HandleCreate handles POST /companies.
func (h *CompaniesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_company"
	var req types.CompanyRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	c, err := req.ToCompany()
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if err := h.deps.Insert(r.Context(), c); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, types.CompanyRecord{
		Symbol:    c.Symbol,
		MarketCap: decimal.NewNullDecimal(c.MarketCap),
		Company:   c.Name,
		Country:   c.Country,
	})
}

// HandleIncrement handles PATCH /companies/{symbol} with body {amount}.
func (h *CompaniesHandler) HandleIncrement(w http.ResponseWriter, r *http.Request) {
	const op = "api.increment_company"
	symbol := r.PathValue("symbol")
	var req incrementRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if !req.Amount.Valid {
		writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("missing amount")))
		return
	}
	next, err := h.deps.IncrementScore(r.Context(), symbol, req.Amount.Decimal)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Symbol: model.NormalizeSymbol(symbol), MarketCap: next.String()})
}

// HandleDelete handles DELETE /companies/{symbol}.
func (h *CompaniesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_company"
	if err := h.deps.Remove(r.Context(), r.PathValue("symbol")); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
