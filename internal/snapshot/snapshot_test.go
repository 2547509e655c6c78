package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/database"
	"real-estate-catalog/internal/models"
)

func newTestService(t *testing.T, clock *time.Time) *Service {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, gdb.InitSchema())
	t.Cleanup(func() { _ = gdb.Close() })

	s := NewService(gdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return *clock }
	return s
}

func img(id, propertyID string) models.PropertyImage {
	return models.PropertyImage{ID: id, IDProperty: propertyID, File: id + ".jpg", Enabled: true}
}

func TestRecordCatalog_DetectsChangesAcrossDays(t *testing.T) {
	clock := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	s := newTestService(t, &clock)
	ctx := context.Background()

	day1 := &catalog.Catalog{
		Properties: []models.Property{
			{ID: "1", Name: "Casa Azul", Address: "Calle 1", Price: 250000, IDOwner: "o1"},
			{ID: "2", Name: "Loft", Address: "Calle 2", Price: 90000, IDOwner: "o2"},
		},
		Images: catalog.ImageIndex{"1": {img("a", "1")}, "2": {}},
	}
	res, err := s.RecordCatalog(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Snapshots)
	assert.Equal(t, 2, res.Changes)
	assert.Equal(t, []string{"1", "2"}, res.New)

	clock = clock.AddDate(0, 0, 1)
	day2 := &catalog.Catalog{
		Properties: []models.Property{
			{ID: "1", Name: "Casa Azul", Address: "Calle 1", Price: 240000, IDOwner: "o1"},
			{ID: "3", Name: "Chalet", Address: "Calle 3", Price: 500000, IDOwner: "o1"},
		},
		Images: catalog.ImageIndex{"1": {img("a", "1"), img("b", "1")}, "3": {}},
	}
	res, err = s.RecordCatalog(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, res.New)
	assert.Equal(t, []string{"2"}, res.Removed)

	changes, err := s.GetPropertyChanges(ctx, "1", 0)
	require.NoError(t, err)
	types := map[string]models.PropertyChange{}
	for _, c := range changes {
		types[c.ChangeType] = c
	}
	require.Contains(t, types, models.ChangeTypePrice)
	require.Contains(t, types, models.ChangeTypeImageCount)
	require.Contains(t, types, models.ChangeTypeNew)
	assert.Equal(t, "250000.00", types[models.ChangeTypePrice].OldValue)
	require.NotNil(t, types[models.ChangeTypePrice].ChangeMagnitude)
	assert.InDelta(t, -10000, *types[models.ChangeTypePrice].ChangeMagnitude, 0.001)

	removed, err := s.GetRecentChanges(ctx, models.ChangeTypeRemoved, 10)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "2", removed[0].PropertyID)

	history, err := s.GetPropertyHistory(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].ImageCount)
	assert.True(t, history[0].HasChanged)
}

func TestRecordCatalog_SameDayRerunReplaces(t *testing.T) {
	clock := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	s := newTestService(t, &clock)
	ctx := context.Background()

	cat := &catalog.Catalog{
		Properties: []models.Property{{ID: "1", Name: "Casa", Price: 100}},
		Images:     catalog.ImageIndex{"1": {}},
	}
	_, err := s.RecordCatalog(ctx, cat)
	require.NoError(t, err)

	clock = clock.AddDate(0, 0, 1)
	cat.Properties[0].Price = 120
	_, err = s.RecordCatalog(ctx, cat)
	require.NoError(t, err)

	clock = clock.Add(3 * time.Hour)
	cat.Properties[0].Price = 130
	_, err = s.RecordCatalog(ctx, cat)
	require.NoError(t, err)

	history, err := s.GetPropertyHistory(ctx, "1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, 130.0, history[0].Price)

	prices, err := s.GetRecentChanges(ctx, models.ChangeTypePrice, 0)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "130.00", prices[0].NewValue)
}

func TestRecordCatalog_FailedImagesKeepPreviousCount(t *testing.T) {
	clock := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	s := newTestService(t, &clock)
	ctx := context.Background()

	_, err := s.RecordCatalog(ctx, &catalog.Catalog{
		Properties: []models.Property{{ID: "1", Name: "Casa"}},
		Images:     catalog.ImageIndex{"1": {img("a", "1"), img("b", "1")}},
	})
	require.NoError(t, err)

	clock = clock.AddDate(0, 0, 1)
	res, err := s.RecordCatalog(ctx, &catalog.Catalog{
		Properties: []models.Property{{ID: "1", Name: "Casa"}},
		Images:     catalog.ImageIndex{"1": {}},
		Failures:   map[string]string{"1": "image fetch failed"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Changes)

	history, err := s.GetPropertyHistory(ctx, "1", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].ImageCount)
}

func TestDetectChanges(t *testing.T) {
	at := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	last := &models.PropertySnapshot{Name: "Casa", Address: "Calle 1", Price: 100, IDOwner: "o1", ImageCount: 1}

	assert.Empty(t, DetectChanges(last, &models.Property{ID: "1", Name: "Casa", Address: "Calle 1", Price: 100, IDOwner: "o1"}, 1, true, at))

	changes := DetectChanges(last, &models.Property{ID: "1", Name: "Casa Nueva", Address: "Calle 9", Price: 100, IDOwner: "o2"}, 3, false, at)
	var types []string
	for _, c := range changes {
		types = append(types, c.ChangeType)
	}
	assert.Equal(t, []string{models.ChangeTypeName, models.ChangeTypeAddress, models.ChangeTypeOwner}, types)
}
