package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/domain/model"
	"github.com/target/mmk-reports/internal/mocks"
	"go.uber.org/mock/gomock"
)

func completedReport(id string) *model.Report {
	ref := "/reports/report-" + id + ".json"
	done := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &model.Report{
		ID:          id,
		OwnerID:     model.DefaultOwnerID,
		Type:        model.ReportTypeSales,
		Status:      model.ReportStatusCompleted,
		Parameters:  model.Parameters{"dateRange": "2024-01-01 to 2024-12-31"},
		ArtifactRef: &ref,
		CreatedAt:   done.Add(-time.Minute),
		CompletedAt: &done,
	}
}

func TestReportCacheKey(t *testing.T) {
	assert.Equal(t, "report:abc", core.ReportCacheKey("abc"))
}

func TestNewReportCache_DefaultTTL(t *testing.T) {
	c := core.NewReportCache(core.ReportCacheOptions{})
	assert.Equal(t, 300*time.Second, c.TTL())

	c = core.NewReportCache(core.ReportCacheOptions{TTL: time.Minute})
	assert.Equal(t, time.Minute, c.TTL())
}

func TestReportCache_Put(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		report  *model.Report
		setup   func(*mocks.MockCacheRepository, *model.Report)
		wantErr bool
	}{
		{
			name:   "completed report is cached with ttl",
			report: completedReport("r-1"),
			setup: func(cache *mocks.MockCacheRepository, r *model.Report) {
				raw, err := json.Marshal(r)
				if err != nil {
					panic(err)
				}
				cache.EXPECT().Set(gomock.Any(), "report:r-1", raw, 300*time.Second).Return(nil)
			},
		},
		{
			name: "pending report is skipped",
			report: &model.Report{
				ID:     "r-2",
				Status: model.ReportStatusPending,
			},
			setup: func(*mocks.MockCacheRepository, *model.Report) {},
		},
		{
			name:   "nil report is skipped",
			report: nil,
			setup:  func(*mocks.MockCacheRepository, *model.Report) {},
		},
		{
			name:   "set error surfaces",
			report: completedReport("r-3"),
			setup: func(cache *mocks.MockCacheRepository, _ *model.Report) {
				cache.EXPECT().Set(gomock.Any(), "report:r-3", gomock.Any(), gomock.Any()).
					Return(errors.New("redis down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			cacheRepo := mocks.NewMockCacheRepository(ctrl)
			tt.setup(cacheRepo, tt.report)

			c := core.NewReportCache(core.ReportCacheOptions{Cache: cacheRepo})
			err := c.Put(context.Background(), tt.report)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestReportCache_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	cacheRepo := mocks.NewMockCacheRepository(ctrl)
	c := core.NewReportCache(core.ReportCacheOptions{Cache: cacheRepo})
	ctx := context.Background()

	t.Run("hit decodes snapshot", func(t *testing.T) {
		want := completedReport("r-1")
		raw, err := json.Marshal(want)
		require.NoError(t, err)
		cacheRepo.EXPECT().Get(gomock.Any(), "report:r-1").Return(raw, nil)

		got, err := c.Get(ctx, "r-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, *want.ArtifactRef, *got.ArtifactRef)
		assert.True(t, want.CompletedAt.Equal(*got.CompletedAt))
	})

	t.Run("miss returns nil", func(t *testing.T) {
		cacheRepo.EXPECT().Get(gomock.Any(), "report:r-2").Return(nil, nil)

		got, err := c.Get(ctx, "r-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("corrupt entry is an error", func(t *testing.T) {
		cacheRepo.EXPECT().Get(gomock.Any(), "report:r-3").Return([]byte("{"), nil)

		_, err := c.Get(ctx, "r-3")
		assert.Error(t, err)
	})

	t.Run("backend error surfaces", func(t *testing.T) {
		cacheRepo.EXPECT().Get(gomock.Any(), "report:r-4").Return(nil, errors.New("timeout"))

		_, err := c.Get(ctx, "r-4")
		assert.Error(t, err)
	})
}

func TestReportCache_Evict(t *testing.T) {
	ctrl := gomock.NewController(t)
	cacheRepo := mocks.NewMockCacheRepository(ctrl)
	c := core.NewReportCache(core.ReportCacheOptions{Cache: cacheRepo})

	cacheRepo.EXPECT().Delete(gomock.Any(), "report:gone").Return(false, nil)
	assert.NoError(t, c.Evict(context.Background(), "gone"))
}
