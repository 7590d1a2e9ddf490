package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/data"
	"github.com/target/mmk-reports/internal/domain/model"
	apperrors "github.com/target/mmk-reports/internal/errors"
	"github.com/target/mmk-reports/internal/mocks"
	"github.com/target/mmk-reports/internal/observability/metrics"
	"github.com/target/mmk-reports/internal/observability/statsd"
)

type reportServiceFixture struct {
	svc      *ReportService
	repo     *mocks.MockReportRepository
	sessions *mocks.MockSessionProvider
	cache    *mocks.MockCacheRepository
	metrics  *statsd.Recorder
}

func newReportServiceFixture(t *testing.T) *reportServiceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &reportServiceFixture{
		repo:     mocks.NewMockReportRepository(ctrl),
		sessions: mocks.NewMockSessionProvider(ctrl),
		cache:    mocks.NewMockCacheRepository(ctrl),
		metrics:  &statsd.Recorder{},
	}
	f.svc = MustNewReportService(ReportServiceOptions{
		Repo:     f.repo,
		Sessions: f.sessions,
		Cache:    core.NewReportCache(core.ReportCacheOptions{Cache: f.cache}),
		Metrics:  f.metrics,
	})
	return f
}

func pendingReport(typ model.ReportType) *model.Report {
	return &model.Report{
		ID:         uuid.NewString(),
		OwnerID:    model.DefaultOwnerID,
		Type:       typ,
		Status:     model.ReportStatusPending,
		Parameters: model.Parameters{},
		CreatedAt:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func completedReport() *model.Report {
	r := pendingReport(model.ReportTypeSales)
	ref := "/reports/report-" + r.ID + ".json"
	done := r.CreatedAt.Add(5 * time.Second)
	r.Status = model.ReportStatusCompleted
	r.ArtifactRef = &ref
	r.StartedAt = &r.CreatedAt
	r.CompletedAt = &done
	return r
}

func TestNewReportService_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, err := NewReportService(ReportServiceOptions{Sessions: mocks.NewMockSessionProvider(ctrl)})
	require.Error(t, err)

	_, err = NewReportService(ReportServiceOptions{Repo: mocks.NewMockReportRepository(ctrl)})
	require.Error(t, err)

	assert.Panics(t, func() { MustNewReportService(ReportServiceOptions{}) })
}

func TestReportService_Submit(t *testing.T) {
	t.Run("persists pending and publishes the queue message", func(t *testing.T) {
		f := newReportServiceFixture(t)
		ctrl := gomock.NewController(t)
		sess := mocks.NewMockSession(ctrl)
		created := pendingReport(model.ReportTypeSales)
		created.Parameters = model.Parameters{"dateRange": "2024-01-01 to 2024-12-31"}

		f.repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.SubmitReportRequest) (*model.Report, error) {
				assert.Equal(t, model.ReportTypeSales, req.Type)
				assert.Equal(t, model.DefaultOwnerID, req.OwnerID)
				return created, nil
			})
		f.sessions.EXPECT().Session().Return(sess, nil)
		sess.EXPECT().
			Publish(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, body []byte) error {
				msg, err := model.DecodeQueueMessage(body)
				require.NoError(t, err)
				assert.Equal(t, created.ID, msg.JobID)
				assert.Equal(t, model.ReportTypeSales, msg.Type)
				assert.Equal(t, "2024-01-01 to 2024-12-31", msg.Parameters["dateRange"])
				assert.Equal(t, model.DefaultOwnerID, msg.OwnerID)
				return nil
			})

		got, err := f.svc.Submit(context.Background(), model.SubmitReportRequest{
			Type:       model.ReportTypeSales,
			Parameters: model.Parameters{"dateRange": "2024-01-01 to 2024-12-31"},
		})
		require.NoError(t, err)
		assert.Equal(t, created, got)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, model.ReportStatusPending, got.Status)

		publishes := f.metrics.Find(metrics.NamePublish)
		require.Len(t, publishes, 1)
		assert.Equal(t, metrics.ResultSuccess, publishes[0].Tags["result"])
	})

	t.Run("keeps caller owner", func(t *testing.T) {
		f := newReportServiceFixture(t)
		created := pendingReport(model.ReportTypeUsers)
		f.repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.SubmitReportRequest) (*model.Report, error) {
				assert.Equal(t, "owner-7", req.OwnerID)
				return created, nil
			})
		f.sessions.EXPECT().Session().Return(nil, apperrors.TransientUnavailable(nil, "no session"))

		_, err := f.svc.Submit(context.Background(), model.SubmitReportRequest{Type: "users", OwnerID: "owner-7"})
		require.NoError(t, err)
	})

	t.Run("invalid type persists nothing", func(t *testing.T) {
		for _, typ := range []model.ReportType{"", "inventory", "  ", "SALES", " sales", "Financial", " Users "} {
			f := newReportServiceFixture(t)
			f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)
			_, err := f.svc.Submit(context.Background(), model.SubmitReportRequest{Type: typ})
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidArgument(err), "type %q", typ)
			assert.Equal(t, "type", apperrors.GetField(err))
		}
	})

	t.Run("no session leaves the report pending", func(t *testing.T) {
		f := newReportServiceFixture(t)
		created := pendingReport(model.ReportTypeFinancial)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(created, nil)
		f.sessions.EXPECT().Session().Return(nil, apperrors.TransientUnavailable(nil, "broker session not available"))

		got, err := f.svc.Submit(context.Background(), model.SubmitReportRequest{Type: model.ReportTypeFinancial})
		require.NoError(t, err)
		assert.Equal(t, model.ReportStatusPending, got.Status)

		publishes := f.metrics.Find(metrics.NamePublish)
		require.Len(t, publishes, 1)
		assert.Equal(t, metrics.ResultError, publishes[0].Tags["result"])
		assert.Equal(t, string(apperrors.ErrCodeTransientUnavailable), publishes[0].Tags["error_class"])
	})

	t.Run("publish failure is swallowed", func(t *testing.T) {
		f := newReportServiceFixture(t)
		sess := mocks.NewMockSession(gomock.NewController(t))
		created := pendingReport(model.ReportTypeProducts)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(created, nil)
		f.sessions.EXPECT().Session().Return(sess, nil)
		sess.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("channel closed"))

		got, err := f.svc.Submit(context.Background(), model.SubmitReportRequest{Type: model.ReportTypeProducts})
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		f := newReportServiceFixture(t)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

		_, err := f.svc.Submit(context.Background(), model.SubmitReportRequest{Type: model.ReportTypeSales})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create report")
	})
}

func TestReportService_GetStatus(t *testing.T) {
	t.Run("malformed id", func(t *testing.T) {
		f := newReportServiceFixture(t)
		_, err := f.svc.GetStatus(context.Background(), "not-a-uuid")
		assert.True(t, apperrors.IsInvalidArgument(err))
	})

	t.Run("unknown id is NotFound", func(t *testing.T) {
		f := newReportServiceFixture(t)
		id := uuid.NewString()
		f.cache.EXPECT().Get(gomock.Any(), core.ReportCacheKey(id)).Return(nil, nil)
		f.repo.EXPECT().GetByID(gomock.Any(), id).Return(nil, data.ErrReportNotFound)

		_, err := f.svc.GetStatus(context.Background(), id)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.ErrorIs(t, err, data.ErrReportNotFound)
	})

	t.Run("pending report is not cached", func(t *testing.T) {
		f := newReportServiceFixture(t)
		r := pendingReport(model.ReportTypeSales)
		f.cache.EXPECT().Get(gomock.Any(), core.ReportCacheKey(r.ID)).Return(nil, nil)
		f.repo.EXPECT().GetByID(gomock.Any(), r.ID).Return(r, nil)

		got, err := f.svc.GetStatus(context.Background(), r.ID)
		require.NoError(t, err)
		assert.False(t, got.FromCache)
		assert.Equal(t, model.ReportStatusPending, got.Report.Status)
	})

	t.Run("second read of a completed report is served from cache", func(t *testing.T) {
		f := newReportServiceFixture(t)
		r := completedReport()
		key := core.ReportCacheKey(r.ID)
		var stored []byte

		gomock.InOrder(
			f.cache.EXPECT().Get(gomock.Any(), key).Return(nil, nil),
			f.cache.EXPECT().
				Set(gomock.Any(), key, gomock.Any(), core.DefaultReportCacheTTL).
				DoAndReturn(func(_ context.Context, _ string, v []byte, _ time.Duration) error {
					stored = v
					return nil
				}),
			f.cache.EXPECT().
				Get(gomock.Any(), key).
				DoAndReturn(func(context.Context, string) ([]byte, error) { return stored, nil }),
		)
		f.repo.EXPECT().GetByID(gomock.Any(), r.ID).Return(r, nil).Times(1)

		first, err := f.svc.GetStatus(context.Background(), r.ID)
		require.NoError(t, err)
		assert.False(t, first.FromCache)

		second, err := f.svc.GetStatus(context.Background(), r.ID)
		require.NoError(t, err)
		assert.True(t, second.FromCache)

		firstJSON, _ := json.Marshal(first.Report)
		secondJSON, _ := json.Marshal(second.Report)
		assert.JSONEq(t, string(firstJSON), string(secondJSON))

		var outcomes []string
		for _, m := range f.metrics.Find(metrics.NameCacheLookup) {
			outcomes = append(outcomes, m.Tags["outcome"])
		}
		assert.Equal(t, []string{"miss", "hit"}, outcomes)
	})

	t.Run("cache errors fall through to the store", func(t *testing.T) {
		f := newReportServiceFixture(t)
		r := completedReport()
		f.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("dial tcp: connection refused"))
		f.repo.EXPECT().GetByID(gomock.Any(), r.ID).Return(r, nil)
		f.cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("dial tcp: connection refused"))

		got, err := f.svc.GetStatus(context.Background(), r.ID)
		require.NoError(t, err)
		assert.False(t, got.FromCache)
		assert.Equal(t, r, got.Report)
	})

	t.Run("works without a cache", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockReportRepository(ctrl)
		svc := MustNewReportService(ReportServiceOptions{Repo: repo, Sessions: mocks.NewMockSessionProvider(ctrl)})
		r := completedReport()
		repo.EXPECT().GetByID(gomock.Any(), r.ID).Return(r, nil)

		got, err := svc.GetStatus(context.Background(), r.ID)
		require.NoError(t, err)
		assert.False(t, got.FromCache)
	})
}

func TestReportService_List(t *testing.T) {
	stats := func(total int64) *model.ReportStats {
		s := model.NewReportStats()
		s.Add(model.ReportStatusPending, total)
		return s
	}

	tests := []struct {
		name        string
		page, limit int
		total       int64
		wantPage    int
		wantLimit   int
		wantOffset  int
		wantPages   int
	}{
		{name: "defaults", page: 0, limit: 0, total: 25, wantPage: 1, wantLimit: 10, wantOffset: 0, wantPages: 3},
		{name: "third page", page: 3, limit: 10, total: 25, wantPage: 3, wantLimit: 10, wantOffset: 20, wantPages: 3},
		{name: "limit clamped", page: 1, limit: 500, total: 250, wantPage: 1, wantLimit: 100, wantOffset: 0, wantPages: 3},
		{name: "empty store", page: 2, limit: 5, total: 0, wantPage: 2, wantLimit: 5, wantOffset: 5, wantPages: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReportServiceFixture(t)
			f.repo.EXPECT().
				List(gomock.Any(), model.ReportListOptions{Limit: tt.wantLimit, Offset: tt.wantOffset}).
				Return(nil, nil)
			f.repo.EXPECT().CountByStatus(gomock.Any()).Return(stats(tt.total), nil)

			page, err := f.svc.List(context.Background(), tt.page, tt.limit)
			require.NoError(t, err)
			assert.NotNil(t, page.Reports)
			assert.Equal(t, tt.total, page.Total)
			assert.Equal(t, tt.wantPage, page.Page)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.wantPages, page.Pages)
		})
	}
}

func TestReportService_Delete(t *testing.T) {
	t.Run("removes report and evicts cache", func(t *testing.T) {
		f := newReportServiceFixture(t)
		id := uuid.NewString()
		f.repo.EXPECT().Delete(gomock.Any(), id).Return(nil)
		f.cache.EXPECT().Delete(gomock.Any(), core.ReportCacheKey(id)).Return(false, nil)

		require.NoError(t, f.svc.Delete(context.Background(), id))
	})

	t.Run("subsequent reads are NotFound", func(t *testing.T) {
		f := newReportServiceFixture(t)
		id := uuid.NewString()
		f.repo.EXPECT().Delete(gomock.Any(), id).Return(nil)
		f.cache.EXPECT().Delete(gomock.Any(), core.ReportCacheKey(id)).Return(true, nil)
		f.cache.EXPECT().Get(gomock.Any(), core.ReportCacheKey(id)).Return(nil, nil)
		f.repo.EXPECT().GetByID(gomock.Any(), id).Return(nil, data.ErrReportNotFound)

		require.NoError(t, f.svc.Delete(context.Background(), id))
		_, err := f.svc.GetStatus(context.Background(), id)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("unknown id", func(t *testing.T) {
		f := newReportServiceFixture(t)
		id := uuid.NewString()
		f.repo.EXPECT().Delete(gomock.Any(), id).Return(data.ErrReportNotFound)

		err := f.svc.Delete(context.Background(), id)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("cache eviction failure is not an error", func(t *testing.T) {
		f := newReportServiceFixture(t)
		id := uuid.NewString()
		f.repo.EXPECT().Delete(gomock.Any(), id).Return(nil)
		f.cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(false, errors.New("i/o timeout"))

		require.NoError(t, f.svc.Delete(context.Background(), id))
	})

	t.Run("malformed id", func(t *testing.T) {
		f := newReportServiceFixture(t)
		assert.True(t, apperrors.IsInvalidArgument(f.svc.Delete(context.Background(), "42")))
	})
}

func TestReportService_Stats(t *testing.T) {
	f := newReportServiceFixture(t)
	want := model.NewReportStats()
	want.Add(model.ReportStatusCompleted, 4)
	want.Add(model.ReportStatusFailed, 1)
	f.repo.EXPECT().CountByStatus(gomock.Any()).Return(want, nil)

	got, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Total)
	assert.Equal(t, int64(0), got.ByStatus[model.ReportStatusPending])
	assert.Len(t, got.ByStatus, 4)
}
