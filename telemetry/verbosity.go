package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownVerbosity is returned by ParseVerbosity for unrecognized names.
var ErrUnknownVerbosity = errors.New("unknown iast telemetry verbosity")

// Verbosity controls how much telemetry is collected. Levels are ordered.
type Verbosity int32

const (
	VerbosityOff Verbosity = iota
	VerbosityMandatory
	VerbosityInformation
	VerbosityDebug
)

var verbosityNames = [...]string{"OFF", "MANDATORY", "INFORMATION", "DEBUG"}

// String returns the level name, or "OFF" for values outside the known range.
func (v Verbosity) String() string {
	if v < VerbosityOff || int(v) >= len(verbosityNames) {
		return "OFF"
	}
	return verbosityNames[v]
}

// IsInfoAllowed reports whether v is at least INFORMATION.
func IsInfoAllowed(v Verbosity) bool {
	return v >= VerbosityInformation
}

// IsDebugAllowed reports whether v is at least DEBUG.
func IsDebugAllowed(v Verbosity) bool {
	return v >= VerbosityDebug
}

// ParseVerbosity parses a level name case-insensitively. An empty string yields
// INFORMATION. An unknown name yields MANDATORY together with ErrUnknownVerbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return VerbosityInformation, nil
	}
	for i, name := range verbosityNames {
		if name == s {
			return Verbosity(i), nil
		}
	}
	return VerbosityMandatory, fmt.Errorf("%w: %q", ErrUnknownVerbosity, s)
}
