package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/cleanup"
	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/database"
	"real-estate-catalog/internal/models"
	"real-estate-catalog/internal/ratelimit"
	"real-estate-catalog/internal/snapshot"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeCatalog struct {
	cat       *catalog.Catalog
	loadErr   error
	createErr error
	owners    []models.Owner
}

func (f *fakeCatalog) LoadCatalog(context.Context) (*catalog.Catalog, error) {
	return f.cat, f.loadErr
}

func (f *fakeCatalog) CreateProperty(_ context.Context, d models.PropertyDraft) (*models.Property, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrInvalidDraft, err)
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.Property{ID: "new", Name: d.Name, Address: d.Address, Price: d.Price, IDOwner: d.IDOwner}, nil
}

func (f *fakeCatalog) CreatePropertyImage(_ context.Context, d models.PropertyImageDraft) (*models.PropertyImage, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.PropertyImage{ID: "img", IDProperty: d.IDProperty, File: d.File, Enabled: d.Enabled}, nil
}

func (f *fakeCatalog) ListOwners(context.Context) ([]models.Owner, error) {
	if f.loadErr != nil {
		return nil, catalog.ErrOwnersUnavailable
	}
	return f.owners, nil
}

func (f *fakeCatalog) CreateOwner(_ context.Context, d models.OwnerDraft) (*models.Owner, error) {
	return &models.Owner{ID: "o9", Name: d.Name}, nil
}

func newTestRouter(t *testing.T, fc *fakeCatalog, mutate func(*RouterDeps)) *gin.Engine {
	t.Helper()
	deps := RouterDeps{
		Catalog:     fc,
		RateLimiter: ratelimit.NewRateLimiter(100, 0, 0, true),
		Logger:      discard,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewRouter(deps)
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &fakeCatalog{}, nil)
	w := do(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestGetCatalog(t *testing.T) {
	fc := &fakeCatalog{cat: &catalog.Catalog{
		Properties: []models.Property{{ID: "1", Name: "Casa"}, {ID: "2", Name: "Loft"}},
		Images: catalog.ImageIndex{
			"1": {{ID: "a", IDProperty: "1", File: "a.jpg", Enabled: true}},
			"2": {},
		},
		Failures: map[string]string{},
	}}
	r := newTestRouter(t, fc, nil)

	w := do(r, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got catalog.Catalog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got.Properties, 2)
	assert.Len(t, got.Images["1"], 1)
	assert.NotNil(t, got.Images["2"])
	assert.Contains(t, w.Body.String(), `"2":[]`)
}

func TestGetCatalog_Unavailable(t *testing.T) {
	fc := &fakeCatalog{loadErr: fmt.Errorf("%w: dial tcp: refused", catalog.ErrCatalogUnavailable)}
	r := newTestRouter(t, fc, nil)

	w := do(r, http.MethodGet, "/api/catalog", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "catalog unavailable")

	w = do(r, http.MethodGet, "/api/owners", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetCatalog_ClientGone(t *testing.T) {
	fc := &fakeCatalog{loadErr: fmt.Errorf("%w: GET /properties: %w", catalog.ErrCatalogUnavailable, context.Canceled)}
	r := newTestRouter(t, fc, nil)

	w := do(r, http.MethodGet, "/api/catalog", nil)
	assert.Equal(t, 499, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestCreateProperty_StatusMapping(t *testing.T) {
	valid := models.PropertyDraft{Name: "Casa", Address: "Calle 1", Price: 100, IDOwner: "o1"}

	tests := []struct {
		name      string
		draft     models.PropertyDraft
		createErr error
		want      int
	}{
		{name: "created", draft: valid, want: http.StatusCreated},
		{name: "missing name", draft: models.PropertyDraft{Address: "Calle 1", IDOwner: "o1"}, want: http.StatusBadRequest},
		{name: "rejected", draft: valid, createErr: &catalog.RejectedError{Resource: "property", StatusCode: 400, Message: "owner unknown"}, want: http.StatusUnprocessableEntity},
		{name: "transport", draft: valid, createErr: errors.New("connection refused"), want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &fakeCatalog{createErr: tt.createErr}, nil)
			w := do(r, http.MethodPost, "/api/properties", tt.draft)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusUnprocessableEntity {
				assert.Contains(t, w.Body.String(), "owner unknown")
			}
		})
	}
}

func TestCreateProperty_MalformedBody(t *testing.T) {
	r := newTestRouter(t, &fakeCatalog{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/properties", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRoutes_RateLimited(t *testing.T) {
	r := newTestRouter(t, &fakeCatalog{}, func(d *RouterDeps) {
		d.RateLimiter = ratelimit.NewRateLimiter(1, 0, 0, true)
	})

	w := do(r, http.MethodPost, "/api/property-images", models.PropertyImageDraft{IDProperty: "1", File: "a.jpg"})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = do(r, http.MethodPost, "/api/owners", models.OwnerDraft{Name: "Eva"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// reads are not limited
	w = do(r, http.MethodGet, "/api/ratelimit/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rejected":1`)
}

func TestOptionalServicesAnswer503(t *testing.T) {
	r := newTestRouter(t, &fakeCatalog{}, nil)
	for _, path := range []string{"/api/search?q=casa", "/api/properties/1/history", "/api/changes/recent", "/api/admin/stats", "/api/catalog/latest"} {
		w := do(r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
	w := do(r, http.MethodPost, "/api/admin/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLatestCatalog(t *testing.T) {
	fc := &fakeCatalog{cat: &catalog.Catalog{Properties: []models.Property{{ID: "1"}}, Images: catalog.ImageIndex{"1": {}}}}
	view := catalog.NewView(fc)
	r := newTestRouter(t, fc, func(d *RouterDeps) { d.View = view })

	w := do(r, http.MethodGet, "/api/catalog/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := view.Refresh(context.Background())
	require.NoError(t, err)

	w = do(r, http.MethodGet, "/api/catalog/latest", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"ready"`)
}

func TestHistoryRoutes(t *testing.T) {
	gdb, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: "file:handlers_history?mode=memory&cache=shared"},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, gdb.InitSchema())
	t.Cleanup(func() { _ = gdb.Close() })

	snapshots := snapshot.NewService(gdb, discard)
	_, err = snapshots.RecordCatalog(context.Background(), &catalog.Catalog{
		Properties: []models.Property{{ID: "1", Name: "Casa", Price: 100}},
		Images:     catalog.ImageIndex{"1": {}},
	})
	require.NoError(t, err)

	r := newTestRouter(t, &fakeCatalog{}, func(d *RouterDeps) {
		d.Store = gdb
		d.Snapshots = snapshots
		d.Cleanup = cleanup.NewService(gdb.DB(), nil, discard)
		d.RetentionDays = 90
	})

	w := do(r, http.MethodGet, "/api/properties/1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Count     int                       `json:"count"`
		Snapshots []models.PropertySnapshot `json:"snapshots"`
		Changes   []models.PropertyChange   `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, 1, history.Count)
	require.Len(t, history.Changes, 1)
	assert.Equal(t, models.ChangeTypeNew, history.Changes[0].ChangeType)

	w = do(r, http.MethodGet, "/api/changes/recent?type=new_property&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = do(r, http.MethodGet, "/api/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":1`)

	w = do(r, http.MethodPost, "/api/admin/cleanup/run", gin.H{"retention_days": 30})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dry_run":true`)

	w = do(r, http.MethodGet, "/api/admin/refresh/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"health"`)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := newTestRouter(t, &fakeCatalog{}, func(d *RouterDeps) {
		d.LogRequests = true
		d.Logger = logger
	})

	do(r, http.MethodGet, "/health", nil)
	assert.Contains(t, buf.String(), "path=/health")
	assert.Contains(t, buf.String(), "status=200")
}

func TestAdminStats_DatabaseFailure(t *testing.T) {
	gdb, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: "file:handlers_stats_failure?mode=memory&cache=shared"},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, gdb.InitSchema())
	require.NoError(t, gdb.Close())

	r := newTestRouter(t, &fakeCatalog{}, func(d *RouterDeps) { d.Store = gdb })

	w := do(r, http.MethodGet, "/api/admin/stats", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}
