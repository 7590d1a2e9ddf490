package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-reports/internal/domain/model"
	"github.com/target/mmk-reports/internal/migrate"
)

func TestPrintStatsListsEveryStatus(t *testing.T) {
	stats := model.NewReportStats()
	stats.Add(model.ReportStatusCompleted, 7)
	stats.Add(model.ReportStatusFailed, 1)

	var buf bytes.Buffer
	require.NoError(t, printStats(&buf, stats))

	out := buf.String()
	for _, s := range model.ReportStatuses() {
		require.Contains(t, out, string(s))
	}
	require.Regexp(t, `completed\s+7`, out)
	require.Regexp(t, `pending\s+0`, out)
	require.Regexp(t, `total\s+8`, out)
}

func TestPrintUsageIsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	require.Less(t, strings.Index(out, "cache-evict"), strings.Index(out, "migrate"))
	require.Less(t, strings.Index(out, "stale"), strings.Index(out, "stats"))
}

func TestParseReportIDs(t *testing.T) {
	id := uuid.NewString()
	ids, err := parseReportIDs([]string{id})
	require.NoError(t, err)
	require.Equal(t, []string{id}, ids)

	_, err = parseReportIDs(nil)
	require.Error(t, err)

	_, err = parseReportIDs([]string{id, "nope"})
	require.ErrorContains(t, err, "nope")
}

func TestParseTimeoutFlag(t *testing.T) {
	d, rest, err := parseTimeoutFlag("stats", []string{"-timeout", "2s", "extra"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)
	require.Equal(t, []string{"extra"}, rest)

	d, _, err = parseTimeoutFlag("stats", nil, time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, d)

	_, _, err = parseTimeoutFlag("stats", []string{"-timeout", "0s"}, time.Minute)
	require.Error(t, err)
}

func TestPrintMigrationStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printMigrationStatus(&buf, migrate.Status{
		Applied: []string{"0001_reports"},
		Pending: []string{"0002_indexes"},
	}))
	require.Regexp(t, `0001_reports\s+applied`, buf.String())
	require.Regexp(t, `0002_indexes\s+pending`, buf.String())
}
