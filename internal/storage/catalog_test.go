package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masahif/packfetch/internal/model"
)

func openCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })
	return catalog
}

func item(name string) model.Item {
	return model.NewItem("https://example.com/page", "https://example.com/files/"+name, name+" (12MB)")
}

func TestCatalogRunLifecycle(t *testing.T) {
	catalog := openCatalog(t)

	runID, err := catalog.BeginRun("https://example.com/", "/tmp/samples")
	require.NoError(t, err)
	_, err = uuid.Parse(runID)
	require.NoError(t, err, "run ID should be a UUID")

	require.NoError(t, catalog.RecordItems(runID, StatusSkipped, []model.Item{item("old.zip")}))
	require.NoError(t, catalog.RecordItems(runID, StatusFailed, []model.Item{item("bad.zip")}))

	done := item("new.zip").Complete("/tmp/samples/new.zip", 2048, 2048, 1500*time.Millisecond)
	require.NoError(t, catalog.RecordDownloads(runID, []model.Download{done}))
	require.NoError(t, catalog.RecordPageErrors(runID, []string{"https://example.com/broken"}))

	require.NoError(t, catalog.FinishRun(runID, RunTotals{
		Pages:        3,
		PageErrors:   1,
		Discovered:   3,
		Skipped:      1,
		Succeeded:    1,
		Failed:       1,
		BytesWritten: 2048,
	}))

	runs, err := catalog.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, "https://example.com/", run.SeedURL)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, 3, run.Totals.Discovered)
	assert.Equal(t, int64(2048), run.Totals.BytesWritten)
	assert.Empty(t, run.Error)

	records, err := catalog.Items(runID, "")
	require.NoError(t, err)
	require.Len(t, records, 3)

	downloaded, err := catalog.Items(runID, StatusDownloaded)
	require.NoError(t, err)
	require.Len(t, downloaded, 1)
	assert.Equal(t, "new.zip", downloaded[0].FileName)
	assert.Equal(t, "12MB", downloaded[0].DeclaredSize)
	assert.Equal(t, "/tmp/samples/new.zip", downloaded[0].SavedPath)
	assert.Equal(t, int64(2048), downloaded[0].BytesWritten)
}

func TestCatalogStatusUpsert(t *testing.T) {
	catalog := openCatalog(t)
	runID, err := catalog.BeginRun("https://example.com/", "/tmp/samples")
	require.NoError(t, err)

	require.NoError(t, catalog.RecordItems(runID, StatusFailed, []model.Item{item("a.zip")}))
	done := item("a.zip").Complete("/tmp/samples/a.zip", 10, -1, time.Second)
	require.NoError(t, catalog.RecordDownloads(runID, []model.Download{done}))

	records, err := catalog.Items(runID, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusDownloaded, records[0].Status)
	assert.Equal(t, int64(10), records[0].ContentLength)
}

func TestCatalogInterruptedRun(t *testing.T) {
	catalog := openCatalog(t)
	runID, err := catalog.BeginRun("https://example.com/", "/tmp/samples")
	require.NoError(t, err)

	require.NoError(t, catalog.FinishRun(runID, RunTotals{
		Status: RunInterrupted,
		Err:    errors.New("context canceled"),
	}))

	runs, err := catalog.RecentRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunInterrupted, runs[0].Status)
	assert.Equal(t, "context canceled", runs[0].Error)
}

func TestCatalogRecentRunsOrder(t *testing.T) {
	catalog := openCatalog(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := catalog.BeginRun("https://example.com/", "/tmp/samples")
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := catalog.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, RunRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
}

func TestCatalogFinishUnknownRun(t *testing.T) {
	catalog := openCatalog(t)
	err := catalog.FinishRun("missing", RunTotals{})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCatalogEmptyBatches(t *testing.T) {
	catalog := openCatalog(t)
	assert.NoError(t, catalog.RecordItems("any", StatusSkipped, nil))
	assert.NoError(t, catalog.RecordDownloads("any", nil))
	assert.NoError(t, catalog.RecordPageErrors("any", nil))
}

func TestCatalogReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	first, err := Open(path)
	require.NoError(t, err)
	runID, err := first.BeginRun("https://example.com/", "/tmp/samples")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	runs, err := second.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
}
