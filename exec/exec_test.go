package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRegistry_RunsRegisteredHandler(t *testing.T) {
	reg := NewMapRegistry()
	var gotPath string
	reg.Register("apply-firmware", func(ctx context.Context, bodyPath string) error {
		gotPath = bodyPath

		return nil
	})

	require.NoError(t, reg.Run(context.Background(), "apply-firmware", "/tmp/body"))
	assert.Equal(t, "/tmp/body", gotPath)
}

func TestMapRegistry_UnknownHandlerFails(t *testing.T) {
	reg := NewMapRegistry()
	err := reg.Run(context.Background(), "missing", "/tmp/body")
	assert.Error(t, err)
}

func TestMapRegistry_RegisterReplacesHandler(t *testing.T) {
	reg := NewMapRegistry()
	calls := 0
	reg.Register("h", func(ctx context.Context, bodyPath string) error {
		calls = 1

		return nil
	})
	reg.Register("h", func(ctx context.Context, bodyPath string) error {
		calls = 2

		return nil
	})

	require.NoError(t, reg.Run(context.Background(), "h", ""))
	assert.Equal(t, 2, calls)
}
