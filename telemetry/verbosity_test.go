package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		in      string
		want    Verbosity
		wantErr bool
	}{
		{"", VerbosityInformation, false},
		{"OFF", VerbosityOff, false},
		{"off", VerbosityOff, false},
		{"Mandatory", VerbosityMandatory, false},
		{"INFORMATION", VerbosityInformation, false},
		{" debug ", VerbosityDebug, false},
		{"verbose", VerbosityMandatory, true},
		{"0", VerbosityMandatory, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVerbosity(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownVerbosity))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerbosityOrdering(t *testing.T) {
	assert.False(t, IsInfoAllowed(VerbosityOff))
	assert.False(t, IsInfoAllowed(VerbosityMandatory))
	assert.True(t, IsInfoAllowed(VerbosityInformation))
	assert.True(t, IsInfoAllowed(VerbosityDebug))

	assert.False(t, IsDebugAllowed(VerbosityInformation))
	assert.True(t, IsDebugAllowed(VerbosityDebug))
}

func TestVerbosityString(t *testing.T) {
	assert.Equal(t, "OFF", VerbosityOff.String())
	assert.Equal(t, "MANDATORY", VerbosityMandatory.String())
	assert.Equal(t, "INFORMATION", VerbosityInformation.String())
	assert.Equal(t, "DEBUG", VerbosityDebug.String())
	assert.Equal(t, "OFF", Verbosity(7).String())
	assert.Equal(t, "OFF", Verbosity(-1).String())
}
