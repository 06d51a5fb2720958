package chart

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kyodo-analytics/finmap/internal/domain/common"
)

const maxSeedBytes = 8 << 20

// Handler exposes the reference chart of accounts over HTTP. The load
// endpoints accept raw CSV bodies and are meant for seeding environments.
type Handler struct {
	repo    Repository
	catalog *Catalog
	loader  *Loader
	logger  *slog.Logger
}

func NewHandler(repo Repository, catalog *Catalog, loader *Loader, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, catalog: catalog, loader: loader, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/reference/accounts", h.ListAccounts).Methods(http.MethodGet)
	r.HandleFunc("/reference/accounts", h.LoadAccounts).Methods(http.MethodPost)
	r.HandleFunc("/reference/formulas", h.ListFormulas).Methods(http.MethodGet)
	r.HandleFunc("/reference/formulas", h.LoadFormulas).Methods(http.MethodPost)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	st, ok := ParseStatementType(r.URL.Query().Get("statement_type"))
	if !ok {
		common.RespondError(w, fmt.Errorf("%w: unknown statement_type", common.ErrBadRequest))
		return
	}

	accounts, err := h.repo.ListAccounts(r.Context(), st)
	if err != nil {
		h.logger.Error("failed to list standard accounts", slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, accounts)
}

func (h *Handler) ListFormulas(w http.ResponseWriter, r *http.Request) {
	st, ok := ParseStatementType(r.URL.Query().Get("statement_type"))
	if !ok {
		common.RespondError(w, fmt.Errorf("%w: unknown statement_type", common.ErrBadRequest))
		return
	}

	formulas, err := h.repo.ListFormulas(r.Context(), st)
	if err != nil {
		h.logger.Error("failed to list account formulas", slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, formulas)
}

type loadResult struct {
	Loaded int `json:"loaded"`
}

func (h *Handler) LoadAccounts(w http.ResponseWriter, r *http.Request) {
	data, err := readSeed(w, r)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	loaded, err := h.loader.LoadAccounts(r.Context(), data)
	if err != nil {
		h.logger.Error("failed to load standard accounts", slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	if err := h.catalog.Refresh(r.Context()); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, loadResult{Loaded: loaded})
}

func (h *Handler) LoadFormulas(w http.ResponseWriter, r *http.Request) {
	data, err := readSeed(w, r)
	if err != nil {
		common.RespondError(w, err)
		return
	}

	loaded, err := h.loader.LoadFormulas(r.Context(), data)
	if err != nil {
		h.logger.Error("failed to load account formulas", slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, loadResult{Loaded: loaded})
}

func readSeed(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSeedBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body", common.ErrBadRequest)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", common.ErrBadRequest)
	}
	return data, nil
}
