package automation

import "errors"

// Sentinel failures reported by automation backends. Wrap them with context;
// callers classify with errors.Is.
var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrWorkbookNotFound    = errors.New("workbook not found")
	ErrSheetNotFound       = errors.New("sheet not found")
	ErrChartNotFound       = errors.New("chart not found")
	// ErrRange covers malformed addresses and value/shape mismatches.
	ErrRange = errors.New("range error")
	// ErrChartType reports an unsupported chart type.
	ErrChartType = errors.New("invalid chart type")
	// ErrHost is a fault reported by the automation host itself.
	ErrHost = errors.New("automation host error")
	// ErrPermission covers access denied by the environment or document protection.
	ErrPermission = errors.New("permission denied")
	// ErrTimeout reports a call that exceeded its deadline. The host-side
	// operation may still complete.
	ErrTimeout = errors.New("operation timed out")
	// ErrInvalidArgument reports an argument the host rejected before acting.
	ErrInvalidArgument = errors.New("invalid argument")
)
