// Package handler provides HTTP request handlers for the dispatch board.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/devrev/dispatchboard/internal/config"
	"github.com/devrev/dispatchboard/internal/converter"
	apperrors "github.com/devrev/dispatchboard/internal/errors"
	"github.com/devrev/dispatchboard/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	engine       *service.AssignmentService
	httpToModel  *converter.HTTPToModel
	modelToHTTP  *converter.ModelToHTTP
	errorHandler *apperrors.Handler
	operator     config.OperatorConfig
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	engine *service.AssignmentService,
	errorHandler *apperrors.Handler,
	operator config.OperatorConfig,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:       engine,
		httpToModel:  converter.NewHTTPToModel(),
		modelToHTTP:  converter.NewModelToHTTP(),
		errorHandler: errorHandler,
		operator:     operator,
		logger:       logger,
	}
}

// ListTechnicians handles GET /technicians requests.
func (h *Handlers) ListTechnicians(w http.ResponseWriter, r *http.Request) {
	board, err := h.engine.Board(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, "failed to get technicians and requests", err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.modelToHTTP.BoardResponse(board))
}

// CreateTechnician handles POST /technicians requests.
func (h *Handlers) CreateTechnician(w http.ResponseWriter, r *http.Request) {
	const prefix = "failed to add technician"

	req, err := h.httpToModel.CreateTechnicianRequest(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	if err := h.engine.CreateTechnician(r.Context(), req.TechnicianID, req.FullName); err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UpdateTechnician handles PATCH /technicians/{technicianID} requests.
func (h *Handlers) UpdateTechnician(w http.ResponseWriter, r *http.Request) {
	const prefix = "failed to update technician"

	req, err := h.httpToModel.UpdateTechnicianRequest(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	if err := h.engine.UpdateTechnician(r.Context(), mux.Vars(r)["technicianID"], req.FullName); err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteTechnician handles DELETE /technicians/{technicianID} requests.
// The technician's requests are deleted with it.
func (h *Handlers) DeleteTechnician(w http.ResponseWriter, r *http.Request) {
	technicianID := mux.Vars(r)["technicianID"]

	if _, err := h.engine.DeleteTechnician(r.Context(), technicianID); err != nil {
		h.errorHandler.HandleError(w, r, "failed to delete technician", err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.modelToHTTP.DeleteTechnicianResponse(technicianID))
}

// MoveRequest handles PATCH /technicians requests.
func (h *Handlers) MoveRequest(w http.ResponseWriter, r *http.Request) {
	const prefix = "failed to move request"

	req, err := h.httpToModel.MoveRequestRequest(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	result, err := h.engine.MoveRequest(r.Context(), req.RequestID, req.SrcTechnicianID, req.DestTechnicianID)
	if err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.modelToHTTP.MoveResponse(result))
}

// TechnicianCapacity handles GET /technicians/{technicianID}/capacity requests.
func (h *Handlers) TechnicianCapacity(w http.ResponseWriter, r *http.Request) {
	const prefix = "failed to check capacity"

	additional, err := h.httpToModel.AdditionalComplexity(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	check, err := h.engine.CheckCapacity(r.Context(), mux.Vars(r)["technicianID"], additional)
	if err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, h.modelToHTTP.CapacityResponse(check))
}

// CreateRequest handles POST /requests requests.
func (h *Handlers) CreateRequest(w http.ResponseWriter, r *http.Request) {
	const prefix = "failed to add request"

	req, err := h.httpToModel.CreateRequestRequest(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	if err := h.engine.CreateRequest(r.Context(), req); err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UpdateRequest handles PATCH /requests/{requestID} requests.
func (h *Handlers) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	const prefix = "failed to update request"

	req, err := h.httpToModel.UpdateRequestRequest(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	if err := h.engine.UpdateRequest(r.Context(), mux.Vars(r)["requestID"], req.Address, req.Complexity); err != nil {
		h.errorHandler.HandleError(w, r, prefix, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteRequest handles DELETE /requests/{requestID} requests.
func (h *Handlers) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteRequest(r.Context(), mux.Vars(r)["requestID"]); err != nil {
		h.errorHandler.HandleError(w, r, "failed to delete request", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// User handles GET /user requests.
func (h *Handlers) User(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, converter.UserHTTPResponse{
		Username: h.operator.Username,
		Avatar:   h.operator.Avatar,
	})
}

// writeJSONResponse writes a JSON response.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
