package data

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-reports/internal/domain/model"
)

func TestFileArtifactStore_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	store, err := NewFileArtifactStore(FileArtifactStoreOptions{Dir: dir})
	require.NoError(t, err)

	artifact := &model.Artifact{
		JobID:       "job-1",
		Type:        model.ReportTypeSales,
		Parameters:  model.Parameters{"dateRange": "Q1"},
		GeneratedAt: "2024-01-01T12:00:00Z",
		Data:        map[string]any{"totalSales": 1234},
	}

	ref, err := store.Write(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, "/reports/report-job-1.json", ref)

	raw, err := os.ReadFile(filepath.Join(dir, "report-job-1.json"))
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, "sales", body["type"])
	assert.Equal(t, "2024-01-01T12:00:00Z", body["generatedAt"])
	assert.Equal(t, map[string]any{"dateRange": "Q1"}, body["parameters"])
	assert.Equal(t, map[string]any{"totalSales": float64(1234)}, body["data"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileArtifactStore_WriteOverwrites(t *testing.T) {
	store, err := NewFileArtifactStore(FileArtifactStoreOptions{Dir: t.TempDir(), URLPrefix: "/files"})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Write(ctx, &model.Artifact{JobID: "j", Type: model.ReportTypeUsers, Data: 1})
	require.NoError(t, err)
	ref, err := store.Write(ctx, &model.Artifact{JobID: "j", Type: model.ReportTypeUsers, Data: 2})
	require.NoError(t, err)
	assert.Equal(t, "/files/report-j.json", ref)

	raw, err := os.ReadFile(filepath.Join(store.Dir(), "report-j.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"data": 2`)
}

func TestFileArtifactStore_Errors(t *testing.T) {
	_, err := NewFileArtifactStore(FileArtifactStoreOptions{})
	require.Error(t, err)

	store, err := NewFileArtifactStore(FileArtifactStoreOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Write(context.Background(), nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Write(ctx, &model.Artifact{JobID: "x"})
	require.ErrorIs(t, err, context.Canceled)
}
