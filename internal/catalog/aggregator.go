// Package catalog assembles the property catalog view model from the backend.
//
// LoadCatalog fetches the properties collection, then fetches every
// property's images as one concurrent batch and waits for the whole batch to
// settle. A failed image fetch degrades only its own property, which maps to an
// empty image list; a failed properties fetch fails the whole call. Nothing is
// cached between calls.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"real-estate-catalog/internal/backend"
	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/models"
)

// Backend collection paths, relative to the configured base URI.
const (
	pathProperties     = "/properties"
	pathPropertyImages = "/PropertyImages"
	pathCreateProperty = "/Properties"
	pathOwners         = "/Owners"
)

// HTTPClient is the transport the aggregator depends on.
// *backend.Client satisfies it.
type HTTPClient interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, in, out any) error
}

// Options configures an Aggregator.
type Options struct {
	Policy      config.ImagePolicy
	Concurrency int
	Logger      *slog.Logger
}

// Aggregator builds catalogs and forwards create requests to the backend.
type Aggregator struct {
	client      HTTPClient
	policy      config.ImagePolicy
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Catalog is the result of one LoadCatalog call.
type Catalog struct {
	Properties []models.Property `json:"properties"`
	Images     ImageIndex        `json:"images"`
	// Failures lists properties whose image fetch failed, with the reason.
	Failures map[string]string `json:"failures,omitempty"`
	LoadedAt time.Time         `json:"loadedAt"`
}

// NewAggregator creates an Aggregator. Zero options select the enabled-only
// image policy and a fan-out of 8 concurrent image requests.
func NewAggregator(client HTTPClient, opts Options) *Aggregator {
	if opts.Policy == "" {
		opts.Policy = config.ImagePolicyEnabledOnly
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Aggregator{
		client:      client,
		policy:      opts.Policy,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// NewAggregatorFromConfig creates an Aggregator with the configured image policy.
func NewAggregatorFromConfig(client HTTPClient, cfg *config.Config, logger *slog.Logger) *Aggregator {
	return NewAggregator(client, Options{
		Policy:      cfg.Images.Policy,
		Concurrency: cfg.Images.Concurrency,
		Logger:      logger,
	})
}

// Policy returns the image policy in effect.
func (a *Aggregator) Policy() config.ImagePolicy {
	return a.policy
}

// LoadCatalog fetches all properties and their images.
//
// It fails with ErrCatalogUnavailable when the properties fetch fails, in
// which case no image request is issued. If ctx ends while images are still
// loading, it returns ctx's error and no catalog.
func (a *Aggregator) LoadCatalog(ctx context.Context) (*Catalog, error) {
	start := a.now()

	var properties []models.Property
	if err := a.client.GetJSON(ctx, pathProperties, &properties); err != nil {
		a.logger.ErrorContext(ctx, "catalog unavailable", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	if properties == nil {
		properties = []models.Property{}
	}

	lists := make([][]models.PropertyImage, len(properties))
	errs := make([]error, len(properties))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i := range properties {
		i := i
		g.Go(func() error {
			lists[i], errs[i] = a.fetchImages(ctx, properties[i].ID)
			// per-item failures are recorded, never returned, so the
			// batch is not cut short
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("catalog load cancelled: %w", err)
	}

	cat := &Catalog{
		Properties: properties,
		Images:     make(ImageIndex, len(properties)),
		Failures:   map[string]string{},
		LoadedAt:   a.now(),
	}
	for i, p := range properties {
		if errs[i] != nil {
			// a failure never hides images already indexed under a
			// duplicated id
			if _, ok := cat.Images[p.ID]; !ok {
				cat.Images[p.ID] = []models.PropertyImage{}
				cat.Failures[p.ID] = errs[i].Error()
			}
			continue
		}
		cat.Images[p.ID] = lists[i]
		delete(cat.Failures, p.ID)
	}

	a.logger.InfoContext(ctx, "catalog loaded",
		"properties", len(cat.Properties),
		"images", cat.Images.Count(),
		"image_failures", len(cat.Failures),
		"policy", string(a.policy),
		"duration_ms", a.now().Sub(start).Milliseconds())
	return cat, nil
}

// fetchImages returns the displayable images of one property. On failure it
// returns an empty slice and an error matching ErrImageFetchFailed.
func (a *Aggregator) fetchImages(ctx context.Context, propertyID string) ([]models.PropertyImage, error) {
	var images []models.PropertyImage
	path := pathPropertyImages + "/property/" + url.PathEscape(propertyID)
	if err := a.client.GetJSON(ctx, path, &images); err != nil {
		if ctx.Err() == nil {
			a.logger.WarnContext(ctx, "image fetch failed", "property_id", propertyID, "err", err)
		}
		return []models.PropertyImage{}, fmt.Errorf("%w: property %s: %w", ErrImageFetchFailed, propertyID, err)
	}
	return applyPolicy(a.policy, images), nil
}

// CreateProperty submits a new property and returns it as echoed by the
// backend. Loaded catalogs are not touched; call LoadCatalog again to see it.
func (a *Aggregator) CreateProperty(ctx context.Context, draft models.PropertyDraft) (*models.Property, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}

	var created models.Property
	if err := a.client.PostJSON(ctx, pathCreateProperty, draft, &created); err != nil {
		return nil, a.createError(ctx, "property", err)
	}

	a.logger.InfoContext(ctx, "property created", "property_id", created.ID, "name", created.Name)
	return &created, nil
}

// CreatePropertyImage submits a new image for a property.
func (a *Aggregator) CreatePropertyImage(ctx context.Context, draft models.PropertyImageDraft) (*models.PropertyImage, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}

	var created models.PropertyImage
	if err := a.client.PostJSON(ctx, pathPropertyImages, draft, &created); err != nil {
		return nil, a.createError(ctx, "property image", err)
	}

	a.logger.InfoContext(ctx, "property image created",
		"image_id", created.ID, "property_id", created.IDProperty, "enabled", created.Enabled)
	return &created, nil
}

// ListOwners fetches all owners in backend order.
func (a *Aggregator) ListOwners(ctx context.Context) ([]models.Owner, error) {
	var owners []models.Owner
	if err := a.client.GetJSON(ctx, pathOwners, &owners); err != nil {
		a.logger.ErrorContext(ctx, "owners unavailable", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrOwnersUnavailable, err)
	}
	if owners == nil {
		owners = []models.Owner{}
	}
	return owners, nil
}

// CreateOwner submits a new owner. The birthday is sent as RFC 3339 UTC.
func (a *Aggregator) CreateOwner(ctx context.Context, draft models.OwnerDraft) (*models.Owner, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	birthday, err := models.NormalizeBirthday(draft.Birthday)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	draft.Birthday = birthday

	var created models.Owner
	if err := a.client.PostJSON(ctx, pathOwners, draft, &created); err != nil {
		return nil, a.createError(ctx, "owner", err)
	}

	a.logger.InfoContext(ctx, "owner created", "owner_id", created.ID, "name", created.Name)
	return &created, nil
}

// createError turns a non-2xx answer into a RejectedError and wraps
// everything else (transport, timeout, malformed body) unchanged.
func (a *Aggregator) createError(ctx context.Context, resource string, err error) error {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		rejected := &RejectedError{
			Resource:   resource,
			StatusCode: statusErr.StatusCode,
			Message:    statusErr.Message(),
			Err:        err,
		}
		a.logger.WarnContext(ctx, "create rejected", "resource", resource, "status", statusErr.StatusCode, "message", rejected.Message)
		return rejected
	}
	return fmt.Errorf("create %s: %w", resource, err)
}
