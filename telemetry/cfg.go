package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMissingOperationPolicy is returned for unrecognized missingOperation values.
var ErrUnknownMissingOperationPolicy = errors.New("unknown missing operation policy")

// MissingOperationPolicy decides where an operation-scoped metric goes when it is
// written outside of any collecting operation.
type MissingOperationPolicy int32

const (
	// MissingOperationGlobal records the write on the global collector.
	MissingOperationGlobal MissingOperationPolicy = iota
	// MissingOperationDrop discards the write.
	MissingOperationDrop
)

func (p MissingOperationPolicy) String() string {
	if p == MissingOperationDrop {
		return "drop"
	}
	return "global"
}

// ParseMissingOperationPolicy parses "global" or "drop". An empty string yields global.
func ParseMissingOperationPolicy(s string) (MissingOperationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "global":
		return MissingOperationGlobal, nil
	case "drop":
		return MissingOperationDrop, nil
	default:
		return MissingOperationGlobal, fmt.Errorf("%w: %q", ErrUnknownMissingOperationPolicy, s)
	}
}

// Cfg is the "telemetry" configuration document.
type Cfg struct {
	Enabled bool `mapstructure:"enabled"`

	// Verbosity is OFF, MANDATORY, INFORMATION or DEBUG. Empty means INFORMATION;
	// an unknown value degrades to MANDATORY with a warning.
	Verbosity string `mapstructure:"verbosity"`

	// MissingOperation is "global" (default) or "drop".
	MissingOperation string `mapstructure:"missingOperation"`

	// DoNotRegisterProvider keeps Configure from registering Drain with the reporter.
	DoNotRegisterProvider bool `mapstructure:"doNotRegisterProvider"`
}

// GetName implements config.Config.
func (c *Cfg) GetName() string {
	return "telemetry"
}

// Validate implements config.Config.
func (c *Cfg) Validate() error {
	_, err := ParseMissingOperationPolicy(c.MissingOperation)
	return err
}

// DefaultCfg returns an enabled configuration at INFORMATION verbosity.
func DefaultCfg() *Cfg {
	return &Cfg{
		Enabled:   true,
		Verbosity: VerbosityInformation.String(),
	}
}
