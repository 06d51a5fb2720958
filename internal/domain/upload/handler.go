package upload

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kyodo-analytics/finmap/internal/domain/common"
)

// uploads are whole statements, not ledgers; 16 MiB is generous
const maxUploadBytes = 16 << 20

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/institutions/{institutionID}/uploads", h.Upload).Methods(http.MethodPost)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	institutionID := mux.Vars(r)["institutionID"]

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		common.RespondError(w, common.ErrBadRequest)
		return
	}

	year, err := strconv.Atoi(r.FormValue("year"))
	if err != nil {
		common.RespondError(w, common.ErrBadRequest)
		return
	}
	statementType := r.FormValue("statement_type")

	file, header, err := r.FormFile("file")
	if err != nil {
		common.RespondError(w, common.ErrBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		common.RespondError(w, common.ErrBadRequest)
		return
	}

	result, err := h.service.Ingest(r.Context(), institutionID, year, statementType, header.Filename, data)
	if err != nil {
		h.logger.Error("upload failed",
			slog.String("institution_id", institutionID),
			slog.String("filename", header.Filename),
			slog.Any("error", err))
		common.RespondError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, result)
}
