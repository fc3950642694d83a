package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"bms-backend/application/queries"
	querybus "bms-backend/application/queries/bus"
	"bms-backend/pkg/common"
	pkgerrors "bms-backend/pkg/errors"
	"bms-backend/pkg/utils"
)

// SearchHandler handles semantic search requests
type SearchHandler struct {
	queryBus *querybus.QueryBus
	logger   *zap.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(queryBus *querybus.QueryBus, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		queryBus: queryBus,
		logger:   logger,
	}
}

// SearchRequest represents the request body for a semantic search
type SearchRequest struct {
	Query    string  `json:"query" validate:"required,max=8192"`
	Limit    int     `json:"limit,omitempty" validate:"omitempty,min=1"`
	MinScore float64 `json:"min_score,omitempty" validate:"omitempty,gte=-1,lte=1"`
	Author   string  `json:"author,omitempty" validate:"omitempty,max=256"`
}

// Search handles POST /search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.SearchMemoriesQuery{
		Query:    req.Query,
		Limit:    req.Limit,
		MinScore: req.MinScore,
		Author:   req.Author,
	})
	if err != nil {
		if appErr := pkgerrors.GetAppError(err); appErr != nil {
			common.RespondErrorWithDetails(w, appErr.HTTPStatus, string(appErr.Type), appErr.Message, appErr.Details)
			return
		}
		h.logger.Error("search failed", zap.Error(err))
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, err.Error())
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
