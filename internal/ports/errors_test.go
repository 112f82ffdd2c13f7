package ports

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreError(t *testing.T) {
	tests := []struct {
		name    string
		err     *StoreError
		wantMsg string
	}{
		{
			name:    "with key",
			err:     NewStoreError("postgres", "update participant", "alice", ErrStoreUnavailable),
			wantMsg: "store error: store=postgres, operation=update participant, key=alice, err=store unavailable",
		},
		{
			name:    "without key",
			err:     NewStoreError("memory", "load config", "", ErrStoreUnavailable),
			wantMsg: "store error: store=memory, operation=load config, err=store unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrStoreUnavailable)
		})
	}
}

func TestConfigError(t *testing.T) {
	cause := errors.New("yaml: unknown field")
	err := NewConfigError("arena.yaml", cause)

	assert.Equal(t, "config error: key=arena.yaml, err=yaml: unknown field", err.Error())
	assert.ErrorIs(t, err, cause)

	var cfgErr *ConfigError
	assert.ErrorAs(t, fmt.Errorf("load: %w", err), &cfgErr)
	assert.Equal(t, "arena.yaml", cfgErr.ConfigKey)
}
