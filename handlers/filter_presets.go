package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pillar-api/events"
	"pillar-api/globals"
	"pillar-api/models"
	"pillar-api/repository"
	"pillar-api/types"

	"github.com/gin-gonic/gin"
)

type FilterPresetsHandler struct {
	presetsRepo *repository.FilterPresetsRepository
	emitter     *events.Emitter
}

func NewFilterPresetsHandler(presetsRepo *repository.FilterPresetsRepository, emitter *events.Emitter) *FilterPresetsHandler {
	return &FilterPresetsHandler{presetsRepo: presetsRepo, emitter: emitter}
}

func presetSnapshot(fp *models.FilterPreset) types.FilterPresetSnapshot {
	return types.FilterPresetSnapshot{ID: fp.ID, UserID: fp.UserID, Name: fp.Name, Params: fp.Params}
}

func (h *FilterPresetsHandler) CreateFilterPreset(c *gin.Context) {
	var req struct {
		Name   string          `json:"name" binding:"required"`
		Params json.RawMessage `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	userID := c.GetInt("userId")
	if len(req.Params) == 0 {
		req.Params = json.RawMessage("{}")
	}
	fp, err := h.presetsRepo.CreateFilterPreset(userID, req.Name, req.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, types.NewSuccessResponse(fp))

	h.emitter.Emit(types.EntityFilterPreset, types.ActionCreated, userID, c.GetHeader(globals.SessionHeader), fp.ID, nil, presetSnapshot(fp))
}

func (h *FilterPresetsHandler) GetFilterPresets(c *gin.Context) {
	userID := c.GetInt("userId")
	presets, err := h.presetsRepo.GetFilterPresetsForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(presets))
}

func (h *FilterPresetsHandler) UpdateFilterPreset(c *gin.Context) {
	fp, ok := h.loadOwned(c)
	if !ok {
		return
	}
	var req struct {
		Name   string          `json:"name" binding:"required"`
		Params json.RawMessage `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	if len(req.Params) == 0 {
		req.Params = fp.Params
	}
	updated, err := h.presetsRepo.UpdateFilterPreset(fp.ID, req.Name, req.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(updated))

	userID := c.GetInt("userId")
	h.emitter.Emit(types.EntityFilterPreset, types.ActionUpdated, userID, c.GetHeader(globals.SessionHeader), updated.ID, nil, presetSnapshot(updated))
}

func (h *FilterPresetsHandler) DeleteFilterPreset(c *gin.Context) {
	fp, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := h.presetsRepo.SetFilterPresetDeleted(fp.ID, true); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(gin.H{"message": "Filter preset deleted successfully"}))

	userID := c.GetInt("userId")
	h.emitter.Emit(types.EntityFilterPreset, types.ActionDeleted, userID, c.GetHeader(globals.SessionHeader), fp.ID, nil, nil)
}

func (h *FilterPresetsHandler) loadOwned(c *gin.Context) (*models.FilterPreset, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid filter preset ID"))
		return nil, false
	}
	fp, err := h.presetsRepo.GetFilterPresetByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return nil, false
	}
	if fp == nil || fp.IsDeleted {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Filter preset not found"))
		return nil, false
	}
	if fp.UserID != c.GetInt("userId") {
		c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "No permission to modify the filter preset"))
		return nil, false
	}
	return fp, true
}
