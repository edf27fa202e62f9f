package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calvin/shopsearch/internal/service"
)

// AdminHandler handles maintenance endpoints.
type AdminHandler struct {
	indexer *service.IndexerService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(indexer *service.IndexerService) *AdminHandler {
	return &AdminHandler{indexer: indexer}
}

// Reindex handles POST /api/v1/admin/reindex. The rebuild runs within
// the request; callers should use a generous client timeout on large
// catalogs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) Reindex(c *gin.Context) {
	report, err := h.indexer.Reindex(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
