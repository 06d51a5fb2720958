package aggregation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kyodo-analytics/finmap/internal/domain/common"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/institutions/{institutionID}/balances/build", h.Build).Methods(http.MethodPost)
	r.HandleFunc("/institutions/{institutionID}/balances/aggregate", h.Aggregate).Methods(http.MethodPost)
	r.HandleFunc("/institutions/{institutionID}/balances", h.List).Methods(http.MethodGet)
}

type buildRequest struct {
	Year          int    `json:"year"`
	StatementType string `json:"statement_type"`
}

func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	institutionID := mux.Vars(r)["institutionID"]

	var req buildRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondError(w, err)
		return
	}

	result, err := h.service.BuildBalances(r.Context(), institutionID, req.Year, req.StatementType)
	if err != nil {
		h.logger.Error("balance build failed", slog.String("institution_id", institutionID), slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	institutionID := mux.Vars(r)["institutionID"]

	var req buildRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondError(w, err)
		return
	}

	result, err := h.service.Aggregate(r.Context(), institutionID, req.Year, req.StatementType)
	if err != nil {
		h.logger.Error("aggregation failed", slog.String("institution_id", institutionID), slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	institutionID := mux.Vars(r)["institutionID"]
	q := r.URL.Query()
	year, _ := strconv.Atoi(q.Get("year"))

	balances, err := h.service.Balances(r.Context(), institutionID, year, q.Get("statement_type"))
	if err != nil {
		common.RespondError(w, err)
		return
	}
	if balances == nil {
		balances = []*Balance{}
	}
	common.RespondJSON(w, http.StatusOK, balances)
}
