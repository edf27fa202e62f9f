package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/calvin/shopsearch/internal/domain"
	"github.com/calvin/shopsearch/internal/repository"
	"github.com/calvin/shopsearch/internal/service"
)

// CategoryHandler handles category authoring endpoints.
type CategoryHandler struct {
	categories *repository.CategoryRepository
}

// NewCategoryHandler creates a new category handler.
func NewCategoryHandler(categories *repository.CategoryRepository) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// categoryInput carries the writable fields of a category.
type categoryInput struct {
	Name      string `json:"name"`
	Handle    string `json:"handle"`
	ParentID  *uint  `json:"parent_id"`
	SortOrder int    `json:"sort_order"`
	IsActive  *bool  `json:"is_active"`
}

// List handles GET /api/v1/categories.
func (h *CategoryHandler) List(c *gin.Context) {
	activeOnly := c.Query("all") == ""
	cats, err := h.categories.List(c.Request.Context(), activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

// Get handles GET /api/v1/categories/:id.
func (h *CategoryHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	cat, err := h.categories.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

// Create handles POST /api/v1/categories.
func (h *CategoryHandler) Create(c *gin.Context) {
	var input categoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, domain.NewValidationError("invalid request body: %v", err))
		return
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		respondError(c, domain.NewValidationError("category name is required"))
		return
	}
	handle := strings.TrimSpace(input.Handle)
	if handle == "" {
		handle = service.Slugify(name)
	}
	cat := &domain.Category{
		Name:      name,
		Handle:    handle,
		ParentID:  input.ParentID,
		SortOrder: input.SortOrder,
		IsActive:  true,
	}
	if input.IsActive != nil {
		cat.IsActive = *input.IsActive
	}
	if err := h.categories.Create(c.Request.Context(), cat); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

// Update handles PUT /api/v1/categories/:id.
func (h *CategoryHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	cat, err := h.categories.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	var input categoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, domain.NewValidationError("invalid request body: %v", err))
		return
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		cat.Name = name
	}
	if handle := strings.TrimSpace(input.Handle); handle != "" {
		cat.Handle = handle
	}
	cat.ParentID = input.ParentID
	cat.SortOrder = input.SortOrder
	if input.IsActive != nil {
		cat.IsActive = *input.IsActive
	}
	if err := h.categories.Update(c.Request.Context(), cat); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

// Delete handles DELETE /api/v1/categories/:id.
func (h *CategoryHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.categories.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
