package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/calvin/shopsearch/internal/domain"
	"github.com/calvin/shopsearch/internal/repository"
	"github.com/calvin/shopsearch/internal/service"
)

// filterPayload is the wire form of the search filter set.
type filterPayload struct {
	CategoryIDs  []uint              `json:"category_ids"`
	Vendors      []string            `json:"vendors"`
	ProductTypes []string            `json:"product_types"`
	Options      map[string][]string `json:"options"`
	MinPrice     *float64            `json:"min_price"`
	MaxPrice     *float64            `json:"max_price"`
	Stock        string              `json:"stock"`
}

func (f *filterPayload) toFilter() (*repository.ProductFilter, error) {
	if f == nil {
		return nil, nil
	}
	switch f.Stock {
	case "", "in_stock", "out_of_stock":
	default:
		return nil, domain.NewValidationError("unknown stock filter %q", f.Stock)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return nil, domain.NewValidationError("min_price exceeds max_price")
	}
	return &repository.ProductFilter{
		CategoryIDs:  f.CategoryIDs,
		Vendors:      f.Vendors,
		ProductTypes: f.ProductTypes,
		Options:      f.Options,
		MinPrice:     f.MinPrice,
		MaxPrice:     f.MaxPrice,
		Stock:        f.Stock,
	}, nil
}

// SearchHandler handles search endpoints.
type SearchHandler struct {
	searchService *service.SearchService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - searchService: search service instance.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(searchService *service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// jsonSearchRequest is the application/json request body.
type jsonSearchRequest struct {
	Query    string         `json:"query"`
	Filters  *filterPayload `json:"filters"`
	Sort     string         `json:"sort"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// Search handles POST /api/v1/search. Text-only requests may be sent as
// JSON; requests carrying an image use multipart/form-data with the
// image in the "image" field and the remaining parameters as form
// fields ("filters" is a JSON string).
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Search(c *gin.Context) {
	var req *service.SearchRequest
	var err error

	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/form-data") {
		req, err = h.parseMultipart(c)
	} else {
		req, err = h.parseJSON(c)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *SearchHandler) parseJSON(c *gin.Context) (*service.SearchRequest, error) {
	var body jsonSearchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, domain.NewValidationError("invalid request body: %v", err)
	}
	filter, err := body.Filters.toFilter()
	if err != nil {
		return nil, err
	}
	return &service.SearchRequest{
		Query:    body.Query,
		Filters:  filter,
		Sort:     body.Sort,
		Page:     body.Page,
		PageSize: body.PageSize,
	}, nil
}

func (h *SearchHandler) parseMultipart(c *gin.Context) (*service.SearchRequest, error) {
	req := &service.SearchRequest{
		Query: c.PostForm("query"),
		Sort:  c.PostForm("sort"),
	}
	if v := c.PostForm("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return nil, domain.NewValidationError("invalid page %q", v)
		}
		req.Page = page
	}
	if v := c.PostForm("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return nil, domain.NewValidationError("invalid page_size %q", v)
		}
		req.PageSize = size
	}
	if raw := c.PostForm("filters"); raw != "" {
		var payload filterPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, domain.NewValidationError("invalid filters JSON: %v", err)
		}
		filter, err := payload.toFilter()
		if err != nil {
			return nil, err
		}
		req.Filters = filter
	}

	file, err := c.FormFile("image")
	if err == nil && file != nil {
		f, err := file.Open()
		if err != nil {
			return nil, domain.NewValidationError("failed to read image: %v", err)
		}
		defer f.Close()
		// Read one byte past the limit so the size check can reject
		// oversized payloads without buffering them whole.
		data, err := io.ReadAll(io.LimitReader(f, service.MaxImageBytes+1))
		if err != nil {
			return nil, domain.NewValidationError("failed to read image: %v", err)
		}
		req.ImageData = data
	}

	// search_type is advisory; when present it must agree with the
	// inputs actually supplied.
	switch mode := c.PostForm("search_type"); mode {
	case "", "text_image":
	case "text":
		if strings.TrimSpace(req.Query) == "" {
			return nil, domain.NewValidationError("search_type text requires a query")
		}
	case "image":
		if len(req.ImageData) == 0 {
			return nil, domain.NewValidationError("search_type image requires an image")
		}
	default:
		return nil, domain.NewValidationError("unknown search_type %q", mode)
	}

	return req, nil
}
