package ports_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/quarry/internal/core/ports"
)

func TestWatchOp(t *testing.T) {
	tests := []struct {
		op         ports.WatchOp
		name       string
		structural bool
	}{
		{ports.OpCreate, "create", true},
		{ports.OpWrite, "write", false},
		{ports.OpRemove, "remove", true},
		{ports.OpRename, "rename", true},
		{ports.WatchOp(42), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.op.String())
			assert.Equal(t, tt.structural, tt.op.Structural())
		})
	}
}
