// Package handlers contains the HTTP handlers for the memory API. Handlers
// decode and validate requests, dispatch through the command/query buses, and
// translate domain errors to HTTP statuses.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bms-backend/application/commands"
	"bms-backend/application/commands/bus"
	"bms-backend/application/queries"
	querybus "bms-backend/application/queries/bus"
	"bms-backend/pkg/common"
	pkgerrors "bms-backend/pkg/errors"
	"bms-backend/pkg/utils"
)

// request bodies are capped; states above the oversize threshold still fit
const maxBodyBytes = 1 << 20

// MemoryHandler handles memory lineage HTTP requests
type MemoryHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	logger     *zap.Logger
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		logger:     logger,
	}
}

// StoreMemoryRequest represents the request body for storing a state
type StoreMemoryRequest struct {
	Coordinate string            `json:"coordinate,omitempty" validate:"omitempty,len=26"`
	State      json.RawMessage   `json:"state" validate:"required"`
	Author     string            `json:"author,omitempty" validate:"omitempty,max=256"`
	Tags       []string          `json:"tags,omitempty" validate:"omitempty,max=32,dive,max=64"`
	Alias      string            `json:"alias,omitempty" validate:"omitempty,max=256"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Store handles POST /memories
func (h *MemoryHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req StoreMemoryRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	cmd := commands.StoreStateCommand{
		Coordinate: req.Coordinate,
		State:      req.State,
		Author:     req.Author,
		Tags:       req.Tags,
		Alias:      req.Alias,
		Metadata:   req.Metadata,
	}

	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	storeResult, ok := result.(*commands.StoreStateResult)
	if !ok {
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Unexpected result type")
		return
	}

	status := http.StatusOK
	if storeResult.Created {
		status = http.StatusCreated
	}
	common.RespondJSON(w, status, storeResult)
}

// Recall handles GET /memories/{coordinate}
func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	coordinate := chi.URLParam(r, "coordinate")

	position := 0
	if raw := r.URL.Query().Get("position"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "position must be a non-negative integer")
			return
		}
		position = parsed
	}

	result, err := h.queryBus.Ask(r.Context(), queries.RecallStateQuery{
		Coordinate: coordinate,
		Position:   position,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Verify handles GET /memories/{coordinate}/verify
func (h *MemoryHandler) Verify(w http.ResponseWriter, r *http.Request) {
	coordinate := chi.URLParam(r, "coordinate")

	result, err := h.queryBus.Ask(r.Context(), queries.VerifyChainQuery{Coordinate: coordinate})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Snapshot handles POST /memories/{coordinate}/snapshot
func (h *MemoryHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	coordinate := chi.URLParam(r, "coordinate")

	result, err := h.commandBus.Send(r.Context(), commands.CreateSnapshotCommand{Coordinate: coordinate})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, result)
}

// List handles GET /memories
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	result, err := h.queryBus.Ask(r.Context(), queries.ListCoordinatesQuery{Limit: limit})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Stats handles GET /stats
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetStatsQuery{})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// respondError maps domain errors to HTTP responses
func (h *MemoryHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		if appErr.HTTPStatus >= 500 {
			h.logger.Error("request failed",
				zap.String("path", r.URL.Path),
				zap.String("error_type", string(appErr.Type)),
				zap.Error(err))
		}
		common.RespondErrorWithDetails(w, appErr.HTTPStatus, string(appErr.Type), appErr.Message, appErr.Details)
		return
	}

	h.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, err.Error())
}
