package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/calvin/shopsearch/internal/domain"
	"github.com/calvin/shopsearch/internal/repository"
	"github.com/calvin/shopsearch/internal/service"
)

// CatalogHandler serves read-only catalog browsing and facets.
type CatalogHandler struct {
	searchService *service.SearchService
	facetService  *service.FacetService
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(searchService *service.SearchService, facetService *service.FacetService) *CatalogHandler {
	return &CatalogHandler{searchService: searchService, facetService: facetService}
}

// ListProducts handles GET /api/v1/catalog/products. Filters arrive as
// query parameters; multi-value dimensions are comma separated.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	req := &service.SearchRequest{
		Query:    c.Query("q"),
		Filters:  filter,
		Sort:     c.Query("sort"),
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "page_size"),
	}
	result, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Facets handles GET /api/v1/catalog/filters.
func (h *CatalogHandler) Facets(c *gin.Context) {
	facets, err := h.facetService.Facets(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, facets)
}

func intQuery(c *gin.Context, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}

func filterFromQuery(c *gin.Context) (*repository.ProductFilter, error) {
	payload := filterPayload{
		Vendors:      splitQuery(c.Query("vendor")),
		ProductTypes: splitQuery(c.Query("product_type")),
		Stock:        c.Query("stock"),
	}
	for _, raw := range splitQuery(c.Query("category_id")) {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, domain.NewValidationError("invalid category_id %q", raw)
		}
		payload.CategoryIDs = append(payload.CategoryIDs, uint(id))
	}
	if v := c.Query("min_price"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, domain.NewValidationError("invalid min_price %q", v)
		}
		payload.MinPrice = &price
	}
	if v := c.Query("max_price"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, domain.NewValidationError("invalid max_price %q", v)
		}
		payload.MaxPrice = &price
	}
	// Option values arrive as a JSON object, the same shape the search
	// body uses: {"Size":["S","M"]}.
	if v := c.Query("options"); v != "" {
		if err := json.Unmarshal([]byte(v), &payload.Options); err != nil {
			return nil, domain.NewValidationError("invalid options JSON: %v", err)
		}
	}
	return payload.toFilter()
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
