package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/models"
)

// CatalogService is the catalog surface served over HTTP. *catalog.Aggregator satisfies it.
type CatalogService interface {
	LoadCatalog(ctx context.Context) (*catalog.Catalog, error)
	CreateProperty(ctx context.Context, draft models.PropertyDraft) (*models.Property, error)
	CreatePropertyImage(ctx context.Context, draft models.PropertyImageDraft) (*models.PropertyImage, error)
	ListOwners(ctx context.Context) ([]models.Owner, error)
	CreateOwner(ctx context.Context, draft models.OwnerDraft) (*models.Owner, error)
}

// CatalogHandler serves the catalog view model and forwards creates to the backend
type CatalogHandler struct {
	service CatalogService
	view    *catalog.View
	logger  *slog.Logger
}

// NewCatalogHandler creates a catalog handler. view may be nil.
func NewCatalogHandler(service CatalogService, view *catalog.View, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{service: service, view: view, logger: logger}
}

// GetCatalog assembles a fresh catalog for every request
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	cat, err := h.service.LoadCatalog(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

// GetLatestCatalog returns the catalog published by the last scheduled refresh
func (h *CatalogHandler) GetLatestCatalog(c *gin.Context) {
	if h.view == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduled refresh is not configured"})
		return
	}
	cat := h.view.Current()
	if cat == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "no catalog published yet",
			"status": h.view.Status(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"catalog": cat,
		"status":  h.view.Status(),
	})
}

// GetOwners lists backend owners
func (h *CatalogHandler) GetOwners(c *gin.Context) {
	owners, err := h.service.ListOwners(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owners": owners,
		"count":  len(owners),
	})
}

// CreateProperty forwards a new property to the backend
func (h *CatalogHandler) CreateProperty(c *gin.Context) {
	var draft models.PropertyDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.service.CreateProperty(c.Request.Context(), draft)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// CreatePropertyImage forwards a new property image to the backend
func (h *CatalogHandler) CreatePropertyImage(c *gin.Context) {
	var draft models.PropertyImageDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.service.CreatePropertyImage(c.Request.Context(), draft)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// CreateOwner forwards a new owner to the backend
func (h *CatalogHandler) CreateOwner(c *gin.Context) {
	var draft models.OwnerDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.service.CreateOwner(c.Request.Context(), draft)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// writeError maps catalog errors to HTTP statuses.
func (h *CatalogHandler) writeError(c *gin.Context, err error) {
	var rejected *catalog.RejectedError
	switch {
	case errors.Is(err, context.Canceled):
		// client went away
		c.Status(499)
	case errors.Is(err, catalog.ErrInvalidDraft):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          "rejected by backend",
			"message":        rejected.Message,
			"backend_status": rejected.StatusCode,
		})
	case errors.Is(err, catalog.ErrCatalogUnavailable), errors.Is(err, catalog.ErrOwnersUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error("backend request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
