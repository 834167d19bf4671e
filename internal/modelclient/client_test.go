package modelclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"exec", "gemini"}, r.Providers())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	err := r.Register("gemini", func(ctx context.Context, cfg Config) (Caller, error) {
		return nil, nil
	})
	assert.ErrorContains(t, err, "already registered")
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.New(context.Background(), Config{Provider: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestExecCallerRequiresCmd(t *testing.T) {
	r := NewRegistry()
	_, err := r.New(context.Background(), Config{Provider: "exec"})
	assert.ErrorContains(t, err, "requires cmd")
}
