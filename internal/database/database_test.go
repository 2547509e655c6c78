package database

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/models"
)

func openTestDB(t *testing.T) *GormDB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, gdb.InitSchema())
	t.Cleanup(func() { _ = gdb.Close() })
	return gdb
}

func TestOpen_Disabled(t *testing.T) {
	_, err := Open(config.DatabaseConfig{}, nil)
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = Open(config.DatabaseConfig{Type: "oracle"}, nil)
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"cat:secret@tcp(db:3306)/catalog?charset=utf8mb4&parseTime=True&loc=UTC",
		mysqlDSN(config.MySQLConfig{Host: "db", User: "cat", Password: "secret", Database: "catalog"}))
	assert.Equal(t,
		"host=pg port=6543 user=cat password=secret dbname=catalog sslmode=require TimeZone=UTC",
		postgresDSN(config.PostgresConfig{Host: "pg", Port: 6543, User: "cat", Password: "secret", Database: "catalog", SSLMode: "require"}))
}

func TestSyncTracked(t *testing.T) {
	gdb := openTestDB(t)
	day1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day3 := day2.AddDate(0, 0, 1)

	newIDs, removed, err := gdb.SyncTracked([]models.Property{{ID: "b", Name: "B"}, {ID: "a", Name: "A"}}, day1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, newIDs)
	assert.Empty(t, removed)

	newIDs, removed, err = gdb.SyncTracked([]models.Property{{ID: "a", Name: "A2"}, {ID: "c", Name: "C"}}, day2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, newIDs)
	assert.Equal(t, []string{"b"}, removed)

	b, err := gdb.GetTrackedProperty("b")
	require.NoError(t, err)
	assert.Equal(t, models.TrackedStatusRemoved, b.Status)
	require.NotNil(t, b.RemovedAt)

	a, err := gdb.GetTrackedProperty("a")
	require.NoError(t, err)
	assert.Equal(t, "A2", a.Name)

	// b comes back
	newIDs, _, err = gdb.SyncTracked([]models.Property{{ID: "a"}, {ID: "b"}, {ID: "c"}}, day3)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, newIDs)
	b, err = gdb.GetTrackedProperty("b")
	require.NoError(t, err)
	assert.Equal(t, models.TrackedStatusActive, b.Status)
	assert.Nil(t, b.RemovedAt)
}

func TestRefreshState(t *testing.T) {
	gdb := openTestDB(t)

	state, err := gdb.LoadRefreshState()
	require.NoError(t, err)
	assert.Equal(t, 0, state.SuccessCount)

	now := time.Date(2025, 5, 1, 2, 0, 0, 0, time.UTC)
	state.RecordFailure(now, fmt.Errorf("catalog unavailable"))
	state.RecordFailure(now, fmt.Errorf("catalog unavailable"))
	require.NoError(t, gdb.SaveRefreshState(state))

	state, err = gdb.LoadRefreshState()
	require.NoError(t, err)
	assert.Equal(t, 2, state.ConsecutiveFailures)
	assert.Equal(t, "catalog unavailable", state.LastError)

	state.RecordSuccess(now.Add(time.Hour), 12, 1)
	require.NoError(t, gdb.SaveRefreshState(state))

	state, err = gdb.LoadRefreshState()
	require.NoError(t, err)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.Equal(t, 2, state.FailureCount)
	assert.Equal(t, 12, state.LastPropertyCount)
	require.NotNil(t, state.LastSuccess)
}
