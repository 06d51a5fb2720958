package institution

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kyodo-analytics/finmap/internal/domain/common"
)

type Handler struct {
	repo   Repository
	logger *slog.Logger
}

func NewHandler(repo Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/institutions", h.List).Methods(http.MethodGet)
	r.HandleFunc("/institutions", h.Upsert).Methods(http.MethodPut)
	r.HandleFunc("/institutions/{code}", h.Get).Methods(http.MethodGet)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	institutions, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list institutions", slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	if institutions == nil {
		institutions = []*Institution{}
	}
	common.RespondJSON(w, http.StatusOK, institutions)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	inst, err := h.repo.Get(r.Context(), code)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	if inst == nil {
		common.RespondError(w, fmt.Errorf("institution %s: %w", code, common.ErrNotFound))
		return
	}
	common.RespondJSON(w, http.StatusOK, inst)
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var inst Institution
	if err := common.DecodeJSON(r, &inst); err != nil {
		common.RespondError(w, err)
		return
	}
	if inst.Code == "" || inst.Name == "" {
		common.RespondError(w, common.ErrBadRequest)
		return
	}

	if err := h.repo.Upsert(r.Context(), &inst); err != nil {
		h.logger.Error("failed to upsert institution", slog.String("code", inst.Code), slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusNoContent, nil)
}
