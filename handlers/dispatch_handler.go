package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/nexus-gateway/models"
	"github.com/upb/nexus-gateway/repositories"
	"github.com/upb/nexus-gateway/services"
	"github.com/upb/nexus-gateway/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// DispatchListResponse is a page of dispatch records
type DispatchListResponse struct {
	Records []*models.DispatchRecord `json:"records"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

// DispatchHandler serves the dispatch log
type DispatchHandler struct {
	repo   repositories.DispatchRepository
	logger *zap.Logger
}

// NewDispatchHandler creates a new DispatchHandler
func NewDispatchHandler(repo repositories.DispatchRepository, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{
		repo:   repo,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/dispatches?limit=&offset=
func (h *DispatchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		_ = utils.WriteBadRequest(w, "limit must be between 1 and 500", nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		_ = utils.WriteBadRequest(w, "offset must be a non-negative integer", nil)
		return
	}

	records, err := h.repo.ListRecent(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to list dispatch records", err), h.logger)
		return
	}
	if records == nil {
		records = []*models.DispatchRecord{}
	}

	_ = utils.WriteOK(w, DispatchListResponse{Records: records, Limit: limit, Offset: offset})
}

// HandleGetByRequest handles GET /api/v1/dispatches/{requestID}
func (h *DispatchHandler) HandleGetByRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	records, err := h.repo.GetByRequestID(r.Context(), requestID)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to get dispatch records", err), h.logger)
		return
	}
	if len(records) == 0 {
		_ = utils.WriteNotFound(w, "no dispatch records for request "+requestID)
		return
	}

	_ = utils.WriteOK(w, records)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
