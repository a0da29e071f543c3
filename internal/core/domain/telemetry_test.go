package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/quarry/internal/core/domain"
)

func TestQueryEvent_IsReuse(t *testing.T) {
	tests := []struct {
		event   domain.QueryEvent
		isReuse bool
	}{
		{domain.EventHit, true},
		{domain.EventGreen, true},
		{domain.EventDiskLoad, true},
		{domain.EventExecuted, false},
		{domain.EventRed, false},
		{domain.EventCycle, false},
		{domain.EventFed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			assert.Equal(t, tt.isReuse, tt.event.IsReuse())
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    domain.LogLevel
		expected string
	}{
		{domain.LogLevelDebug, "DEBUG"},
		{domain.LogLevelInfo, "INFO"},
		{domain.LogLevelWarn, "WARN"},
		{domain.LogLevelError, "ERROR"},
		{domain.LogLevel(999), "INFO"}, // Default case
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestLogLevelFor(t *testing.T) {
	assert.Equal(t, domain.LogLevelError, domain.LogLevelFor(domain.DiagError))
	assert.Equal(t, domain.LogLevelError, domain.LogLevelFor(domain.DiagDelayedBug))
	assert.Equal(t, domain.LogLevelWarn, domain.LogLevelFor(domain.DiagWarning))
	assert.Equal(t, domain.LogLevelInfo, domain.LogLevelFor(domain.DiagNote))
}
