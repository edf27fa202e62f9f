package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calvin/shopsearch/internal/domain"
)

// respondError writes a JSON error body with the status implied by the
// error's kind. Non-domain errors become opaque 500s.
func respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindValidation, domain.KindTooManyOptions:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindSearchUnavailable:
		status = http.StatusServiceUnavailable
	}

	body := gin.H{"error": err.Error()}
	if kind != "" {
		body["kind"] = string(kind)
	}
	c.JSON(status, body)
}
