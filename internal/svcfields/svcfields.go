// Package svcfields holds shared log field helpers.
package svcfields

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey is the log key for subsystem tags.
const SubsystemKey = pslog.TrustedString("sys")

// Subsystem joins non-empty parts into a dotted subsystem path.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.Trim(part, ". "); part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem tags every entry of logger with subsystem. A nil logger
// becomes a no-op logger.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}
