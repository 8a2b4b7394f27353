package handlers

import (
	"net/http"
	"strconv"

	"pillar-api/events"
	"pillar-api/globals"
	"pillar-api/models"
	"pillar-api/repository"
	"pillar-api/types"

	"github.com/gin-gonic/gin"
)

type CategoriesHandler struct {
	categoriesRepo *repository.CategoriesRepository
	emitter        *events.Emitter
}

func NewCategoriesHandler(categoriesRepo *repository.CategoriesRepository, emitter *events.Emitter) *CategoriesHandler {
	return &CategoriesHandler{categoriesRepo: categoriesRepo, emitter: emitter}
}

func categorySnapshot(cat *models.Category) types.CategorySnapshot {
	return types.CategorySnapshot{ID: cat.ID, Name: cat.Name, Color: cat.Color, UserID: cat.UserID}
}

func (h *CategoriesHandler) CreateCategory(c *gin.Context) {
	var req struct {
		Name  string `json:"name" binding:"required"`
		Color string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	userID := c.GetInt("userId")

	cat, err := h.categoriesRepo.CreateCategory(req.Name, req.Color, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, types.NewSuccessResponse(cat))

	// Categories are personal: no target list, delivery goes to the
	// actor's other sessions only.
	h.emitter.Emit(types.EntityCategory, types.ActionCreated, userID, c.GetHeader(globals.SessionHeader), cat.ID, nil, categorySnapshot(cat))
}

func (h *CategoriesHandler) GetCategories(c *gin.Context) {
	userID := c.GetInt("userId")
	cats, err := h.categoriesRepo.GetCategoriesForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(cats))
}

func (h *CategoriesHandler) UpdateCategory(c *gin.Context) {
	cat, ok := h.loadOwned(c)
	if !ok {
		return
	}
	var req struct {
		Name  string `json:"name" binding:"required"`
		Color string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	updated, err := h.categoriesRepo.UpdateCategory(cat.ID, req.Name, req.Color)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(updated))

	userID := c.GetInt("userId")
	h.emitter.Emit(types.EntityCategory, types.ActionUpdated, userID, c.GetHeader(globals.SessionHeader), updated.ID, nil, categorySnapshot(updated))
}

func (h *CategoriesHandler) DeleteCategory(c *gin.Context) {
	cat, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := h.categoriesRepo.SetCategoryDeleted(cat.ID, true); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(gin.H{"message": "Category deleted successfully"}))

	userID := c.GetInt("userId")
	h.emitter.Emit(types.EntityCategory, types.ActionDeleted, userID, c.GetHeader(globals.SessionHeader), cat.ID, nil, nil)
}

func (h *CategoriesHandler) loadOwned(c *gin.Context) (*models.Category, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "Invalid category ID"))
		return nil, false
	}
	cat, err := h.categoriesRepo.GetCategoryByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, err.Error()))
		return nil, false
	}
	if cat == nil || cat.IsDeleted {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Category not found"))
		return nil, false
	}
	if cat.UserID != c.GetInt("userId") {
		c.JSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, "No permission to modify the category"))
		return nil, false
	}
	return cat, true
}
