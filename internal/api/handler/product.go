package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/calvin/shopsearch/internal/domain"
	"github.com/calvin/shopsearch/internal/service"
)

// ProductHandler handles product authoring endpoints.
type ProductHandler struct {
	productService *service.ProductService
}

// NewProductHandler creates a new product handler.
func NewProductHandler(productService *service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

func pathID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, domain.NewValidationError("invalid %s %q", name, raw)
	}
	return uint(id), nil
}

// Get handles GET /api/v1/products/:id.
func (h *ProductHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	product, err := h.productService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// Create handles POST /api/v1/products.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProductHandler) Create(c *gin.Context) {
	var input service.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, domain.NewValidationError("invalid request body: %v", err))
		return
	}
	product, err := h.productService.Create(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// Update handles PUT /api/v1/products/:id.
func (h *ProductHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var input service.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, domain.NewValidationError("invalid request body: %v", err))
		return
	}
	product, err := h.productService.Update(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// Delete handles DELETE /api/v1/products/:id.
func (h *ProductHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.productService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// variantGenerateRequest is the body of the variant preview endpoint.
type variantGenerateRequest struct {
	Options []service.OptionInput `json:"options"`
}

// GenerateVariants handles POST /api/v1/products/:id/variants/generate.
// It returns the variant set the submitted options would produce,
// reconciled against the product's saved variants, without persisting.
func (h *ProductHandler) GenerateVariants(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var body variantGenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, domain.NewValidationError("invalid request body: %v", err))
		return
	}
	variants, err := h.productService.GenerateVariantPreview(c.Request.Context(), id, body.Options)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variants": variants})
}

// UploadImage handles POST /api/v1/products/:id/images.
func (h *ProductHandler) UploadImage(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		respondError(c, domain.NewValidationError("image file is required"))
		return
	}
	f, err := file.Open()
	if err != nil {
		respondError(c, domain.NewValidationError("failed to read image: %v", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, service.MaxImageBytes+1))
	if err != nil {
		respondError(c, domain.NewValidationError("failed to read image: %v", err))
		return
	}

	image, err := h.productService.UploadImage(c.Request.Context(), id, data, c.PostForm("alt_text"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, image)
}

// DeleteImage handles DELETE /api/v1/products/:id/images/:imageID.
func (h *ProductHandler) DeleteImage(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	imageID, err := pathID(c, "imageID")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.productService.DeleteImage(c.Request.Context(), id, imageID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
