package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/vendfleet/backend/internal/domain/shared"
	"github.com/vendfleet/backend/internal/interfaces/http/dto"
)

// bindListFilter binds pagination parameters and the named query
// filters into a shared.Filter
func bindListFilter(c *gin.Context, filterKeys ...string) (shared.Filter, error) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		return shared.Filter{}, err
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Filters:  make(map[string]interface{}),
	}
	for _, key := range filterKeys {
		if value := c.Query(key); value != "" {
			filter.Filters[key] = value
		}
	}
	return filter, nil
}
