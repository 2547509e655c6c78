package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"real-estate-catalog/internal/search"
)

// SearchHandler serves full-text search over indexed catalog properties
type SearchHandler struct {
	client *search.SearchClient
	logger *slog.Logger
}

func NewSearchHandler(client *search.SearchClient, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{client: client, logger: logger}
}

// parseFilterParams reads ?q, min_price, max_price, min_year, owner (repeatable
// or comma separated), has_images, sort, limit and offset.
func parseFilterParams(c *gin.Context) (search.FilterParams, error) {
	params := search.FilterParams{
		Query:  c.Query("q"),
		SortBy: c.Query("sort"),
	}

	if v := c.Query("min_price"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return params, err
		}
		params.MinPrice = &f
	}
	if v := c.Query("max_price"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return params, err
		}
		params.MaxPrice = &f
	}
	if v := c.Query("min_year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, err
		}
		params.MinYear = &n
	}
	for _, owner := range c.QueryArray("owner") {
		for _, id := range strings.Split(owner, ",") {
			if id = strings.TrimSpace(id); id != "" {
				params.OwnerIDs = append(params.OwnerIDs, id)
			}
		}
	}
	params.HasImages = c.Query("has_images") == "true"
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return params, err
		}
		params.Limit = min(n, 200)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return params, err
		}
		params.Offset = n
	}
	return params, nil
}

// Search runs a search against the index
func (h *SearchHandler) Search(c *gin.Context) {
	if h.client == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not configured"})
		return
	}
	params, err := parseFilterParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.client.Search(c.Request.Context(), params)
	if err != nil {
		h.logger.Error("search failed", "query", params.Query, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
