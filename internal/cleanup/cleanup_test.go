package cleanup

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

	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/database"
	"real-estate-catalog/internal/models"
)

type fakeSearch struct {
	deleted []string
}

func (f *fakeSearch) DeleteProperties(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

var now = time.Date(2025, 9, 1, 3, 0, 0, 0, time.UTC)

// seed tracks "old" (removed 100 days ago), "recent" (removed 10 days ago)
// and "live", each with one snapshot 120 days old and one from yesterday.
func seed(t *testing.T) (*database.GormDB, *Service, *fakeSearch) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := database.Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, gdb.InitSchema())
	t.Cleanup(func() { _ = gdb.Close() })

	all := []models.Property{{ID: "old", Name: "Old"}, {ID: "recent", Name: "Recent"}, {ID: "live", Name: "Live"}}
	_, _, err = gdb.SyncTracked(all, now.AddDate(0, 0, -200))
	require.NoError(t, err)
	_, _, err = gdb.SyncTracked(all[1:], now.AddDate(0, 0, -100))
	require.NoError(t, err)
	_, _, err = gdb.SyncTracked(all[2:], now.AddDate(0, 0, -10))
	require.NoError(t, err)

	for _, p := range all {
		for _, age := range []int{120, 1} {
			at := now.AddDate(0, 0, -age).Truncate(24 * time.Hour)
			require.NoError(t, gdb.DB().Create(&models.PropertySnapshot{PropertyID: p.ID, SnapshotAt: at, Name: p.Name}).Error)
			require.NoError(t, gdb.DB().Create(&models.PropertyChange{PropertyID: p.ID, ChangeType: models.ChangeTypePrice, DetectedAt: at}).Error)
		}
	}

	search := &fakeSearch{}
	s := NewService(gdb.DB(), search, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	return gdb, s, search
}

func TestRun_PurgesExpiredAndPrunesHistory(t *testing.T) {
	gdb, s, search := seed(t)
	ctx := context.Background()

	res, err := s.Run(ctx, CleanupConfig{RetentionDays: 90, MaxDeletionCount: 10, DeleteFromSearch: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.TargetCount)
	assert.Equal(t, []string{"old"}, res.DeletedProperties)
	assert.Equal(t, []string{"old"}, search.deleted)
	// old's two snapshots went with the property; the 120-day rows of the others are pruned
	assert.Equal(t, int64(2), res.PrunedSnapshots)
	assert.Equal(t, int64(2), res.PrunedChanges)

	_, err = gdb.GetTrackedProperty("old")
	assert.Error(t, err)

	var remaining int64
	require.NoError(t, gdb.DB().Model(&models.PropertySnapshot{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)

	logs, err := s.GetRecentDeleteLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "old", logs[0].PropertyID)
	assert.Equal(t, 2, logs[0].SnapshotCount)

	stats, err := s.GetDeleteStats(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDeleted)
	assert.Equal(t, int64(1), stats.ByReason[models.DeleteReasonExpired])
	assert.Equal(t, int64(1), stats.CurrentlyRemoved)
	assert.Equal(t, 0, stats.ReadyForDeletion)
}

func TestRun_DryRunDeletesNothing(t *testing.T) {
	gdb, s, search := seed(t)

	res, err := s.Run(context.Background(), CleanupConfig{RetentionDays: 90, MaxDeletionCount: 10, DryRun: true, DeleteFromSearch: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedCount)
	assert.Equal(t, int64(3), res.PrunedSnapshots)
	assert.Empty(t, search.deleted)

	var snapshots int64
	require.NoError(t, gdb.DB().Model(&models.PropertySnapshot{}).Count(&snapshots).Error)
	assert.Equal(t, int64(6), snapshots)
}

func TestRun_SafetyLimit(t *testing.T) {
	_, s, _ := seed(t)

	_, err := s.Run(context.Background(), CleanupConfig{RetentionDays: 5, MaxDeletionCount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safety check failed")
}

func TestConfigFromSettings(t *testing.T) {
	c := ConfigFromSettings(config.SnapshotsConfig{RetentionDays: 30, DryRun: true})
	assert.Equal(t, 30, c.RetentionDays)
	assert.Equal(t, 10000, c.MaxDeletionCount)
	assert.True(t, c.DryRun)
	assert.True(t, c.DeleteFromSearch)
}
