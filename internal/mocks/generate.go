// Package mocks provides mock implementations of the core ports for testing the report pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/core. The mocks provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockReportRepository(ctrl)
//	repo.EXPECT().GetByID(gomock.Any(), id).Return(report, nil)
package mocks

// Job store and artifact ports:
// Create, GetByID, MarkProcessing, Complete, Fail, Delete, List, CountByStatus, CountStale, Write
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=report_repository_mock.go github.com/target/mmk-reports/internal/core ReportRepository,StaleReportRepository,ArtifactStore

// Result cache port: Set, Get, Delete, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/mmk-reports/internal/core CacheRepository

// Broker ports: Delivery, Session, Dialer, SessionProvider
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=broker_mock.go github.com/target/mmk-reports/internal/core Delivery,Session,Dialer,SessionProvider
