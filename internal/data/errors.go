package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrReportNotFound is returned when no report exists for an id.
	ErrReportNotFound = errors.New("report not found")
	// ErrInvalidTransition is returned when a report's current status does not allow the requested move.
	ErrInvalidTransition = errors.New("invalid report status transition")
)
