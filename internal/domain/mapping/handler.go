package mapping

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
	r.HandleFunc("/institutions/{institutionID}/mappings/resolve", h.Resolve).Methods(http.MethodPost)
	r.HandleFunc("/institutions/{institutionID}/mappings", h.List).Methods(http.MethodGet)
	r.HandleFunc("/institutions/{institutionID}/mappings/unmapped-count", h.UnmappedCount).Methods(http.MethodGet)
	r.HandleFunc("/institutions/{institutionID}/mappings/override", h.Override).Methods(http.MethodPost)
}

type resolveRequest struct {
	Year          int    `json:"year"`
	StatementType string `json:"statement_type"`
	BatchSize     int    `json:"batch_size"`
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	institutionID := mux.Vars(r)["institutionID"]

	var req resolveRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondError(w, err)
		return
	}

	result, err := h.service.Resolve(r.Context(), institutionID, req.Year, req.StatementType, req.BatchSize)
	if err != nil {
		h.logger.Error("resolve failed", slog.String("institution_id", institutionID), slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	institutionID := mux.Vars(r)["institutionID"]
	statementType := r.URL.Query().Get("statement_type")

	mappings, err := h.service.Mappings(r.Context(), institutionID, statementType)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	if mappings == nil {
		mappings = []*Mapping{}
	}
	common.RespondJSON(w, http.StatusOK, mappings)
}

func (h *Handler) UnmappedCount(w http.ResponseWriter, r *http.Request) {
	institutionID := mux.Vars(r)["institutionID"]
	q := r.URL.Query()
	year, _ := strconv.Atoi(q.Get("year"))

	count, err := h.service.UnmappedCount(r.Context(), institutionID, year, q.Get("statement_type"))
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]int{"unmapped": count})
}

type overrideRequest struct {
	OriginalAccountName string `json:"original_account_name"`
	StatementType       string `json:"statement_type"`
	StandardAccountCode string `json:"standard_account_code"`
}

func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	institutionID := mux.Vars(r)["institutionID"]

	var req overrideRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondError(w, err)
		return
	}
	if req.OriginalAccountName == "" || req.StandardAccountCode == "" {
		common.RespondError(w, common.ErrBadRequest)
		return
	}

	if err := h.service.Override(r.Context(), institutionID, req.OriginalAccountName, req.StatementType, req.StandardAccountCode); err != nil {
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusNoContent, nil)
}
