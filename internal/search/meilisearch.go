package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meilisearch/meilisearch-go"

	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/config"
)

// Document is a catalog property as stored in the search index.
type Document struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Price        float64 `json:"price"`
	CodeInternal string  `json:"codeInternal,omitempty"`
	Year         *int    `json:"year,omitempty"`
	IDOwner      string  `json:"idOwner"`
	ImageCount   int     `json:"imageCount"`
	CoverImage   string  `json:"coverImage,omitempty"`
}

// DocumentsFromCatalog converts every catalog property to a search document.
// The cover image is the first displayable image, unless it is embedded data.
func DocumentsFromCatalog(cat *catalog.Catalog) []Document {
	docs := make([]Document, 0, len(cat.Properties))
	seen := make(map[string]bool, len(cat.Properties))
	for _, p := range cat.Properties {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		images := cat.Images.For(p.ID)
		doc := Document{
			ID:           p.ID,
			Name:         p.Name,
			Address:      p.Address,
			Price:        p.Price,
			CodeInternal: p.CodeInternal,
			Year:         p.Year,
			IDOwner:      p.IDOwner,
			ImageCount:   len(images),
		}
		for _, img := range images {
			if !img.IsEmbedded() {
				doc.CoverImage = img.File
				break
			}
		}
		docs = append(docs, doc)
	}
	return docs
}

type SearchClient struct {
	client *meilisearch.Client
	index  string
	logger *slog.Logger
}

func NewSearchClient(host, apiKey, index string, logger *slog.Logger) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "properties"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchClient{
		client: client,
		index:  index,
		logger: logger,
	}
}

// NewFromConfig returns nil when no Meilisearch host is configured.
func NewFromConfig(cfg config.MeilisearchConfig, logger *slog.Logger) *SearchClient {
	if cfg.Host == "" {
		return nil
	}
	return NewSearchClient(cfg.Host, cfg.APIKey, cfg.Index, logger)
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	if err != nil && !strings.Contains(err.Error(), "index_already_exists") {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}

	idx := s.client.Index(s.index)
	if _, err := idx.UpdateSearchableAttributes(&[]string{
		"name",
		"address",
		"codeInternal",
	}); err != nil {
		return err
	}
	if _, err := idx.UpdateFilterableAttributes(&[]string{
		"id",
		"price",
		"year",
		"idOwner",
		"imageCount",
	}); err != nil {
		return err
	}
	if _, err := idx.UpdateSortableAttributes(&[]string{
		"price",
		"year",
		"name",
	}); err != nil {
		return err
	}
	return nil
}

// Healthy reports whether the search server answers its health check.
func (s *SearchClient) Healthy() bool {
	return s.client.IsHealthy()
}

// IndexCatalog adds or replaces the documents of every catalog property.
// Indexing is asynchronous on the server side.
func (s *SearchClient) IndexCatalog(ctx context.Context, cat *catalog.Catalog) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	docs := DocumentsFromCatalog(cat)
	if len(docs) == 0 {
		return 0, nil
	}
	task, err := s.client.Index(s.index).AddDocuments(docs, "id")
	if err != nil {
		return 0, fmt.Errorf("index %d properties: %w", len(docs), err)
	}
	s.logger.Info("catalog indexed", "documents", len(docs), "task_uid", task.TaskUID)
	return len(docs), nil
}

// DeleteProperties removes documents from the index.
func (s *SearchClient) DeleteProperties(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.Index(s.index).DeleteDocuments(ids); err != nil {
		return fmt.Errorf("delete %d documents: %w", len(ids), err)
	}
	return nil
}

// SearchResult represents search results with facets
type SearchResult struct {
	Hits           []Document     `json:"hits"`
	TotalHits      int64          `json:"total_hits"`
	Facets         map[string]any `json:"facets,omitempty"`
	ProcessingTime int64          `json:"processing_time_ms"`
}

// Search searches the index with the given filters
func (s *SearchClient) Search(ctx context.Context, params FilterParams) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = 20
	}

	req := &meilisearch.SearchRequest{
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	if filter := params.Filter(); filter != "" {
		req.Filter = filter
	}
	if sort := params.Sort(); len(sort) > 0 {
		req.Sort = sort
	}
	if len(params.Facets) > 0 {
		req.Facets = params.Facets
	}

	res, err := s.client.Index(s.index).Search(params.Query, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", params.Query, err)
	}

	hits := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, err := decodeHit(hit)
		if err != nil {
			s.logger.Warn("skipping undecodable search hit", "err", err)
			continue
		}
		hits = append(hits, doc)
	}

	result := &SearchResult{
		Hits:           hits,
		TotalHits:      res.EstimatedTotalHits,
		ProcessingTime: res.ProcessingTimeMs,
	}
	if facets, ok := res.FacetDistribution.(map[string]any); ok {
		result.Facets = facets
	}
	return result, nil
}

// decodeHit converts a raw hit to a Document by round-tripping through JSON.
func decodeHit(hit any) (Document, error) {
	var doc Document
	raw, err := json.Marshal(hit)
	if err != nil {
		return doc, err
	}
	err = json.Unmarshal(raw, &doc)
	return doc, err
}
