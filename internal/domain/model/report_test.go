package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportType_Valid(t *testing.T) {
	for _, rt := range ReportTypes() {
		assert.True(t, rt.Valid(), rt)
	}
	assert.False(t, ReportType("").Valid())
	assert.False(t, ReportType("weather").Valid())
	assert.False(t, ReportType("Sales").Valid())
}

func TestReportStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to ReportStatus
		want     bool
	}{
		{ReportStatusPending, ReportStatusProcessing, true},
		{ReportStatusPending, ReportStatusCompleted, false},
		{ReportStatusPending, ReportStatusFailed, false},
		{ReportStatusProcessing, ReportStatusProcessing, true},
		{ReportStatusProcessing, ReportStatusCompleted, true},
		{ReportStatusProcessing, ReportStatusFailed, true},
		{ReportStatusProcessing, ReportStatusPending, false},
		{ReportStatusCompleted, ReportStatusProcessing, false},
		{ReportStatusCompleted, ReportStatusFailed, false},
		{ReportStatusFailed, ReportStatusProcessing, false},
		{ReportStatusFailed, ReportStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestSubmitReportRequest_Normalize(t *testing.T) {
	req := SubmitReportRequest{Type: " Sales", OwnerID: "  "}
	req.Normalize()

	assert.Equal(t, ReportType(" Sales"), req.Type)
	assert.False(t, req.Type.Valid())
	assert.Empty(t, req.OwnerID)
	assert.NotNil(t, req.Parameters)
}

func TestReportStats_ZeroFilled(t *testing.T) {
	s := NewReportStats()
	require.Len(t, s.ByStatus, 4)
	s.Add(ReportStatusCompleted, 3)
	s.Add(ReportStatusPending, 2)

	assert.Equal(t, int64(5), s.Total)
	assert.Equal(t, int64(0), s.ByStatus[ReportStatusFailed])
	assert.Equal(t, int64(3), s.ByStatus[ReportStatusCompleted])
}

func TestReport_JSONOmitsUnsetOutcome(t *testing.T) {
	r := Report{
		ID:         "3b8f2f0e-5d7e-4d9a-9d6b-1f7f0d7b9a10",
		OwnerID:    DefaultOwnerID,
		Type:       ReportTypeUsers,
		Status:     ReportStatusPending,
		Parameters: Parameters{},
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.NotContains(t, got, "artifactRef")
	assert.NotContains(t, got, "errorMessage")
	assert.NotContains(t, got, "completedAt")
	assert.Equal(t, "user-123", got["ownerId"])
}
