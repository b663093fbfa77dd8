package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
	"github.com/drblury/pipeflow/internal/runtime/jsoncodec"
)

func TestChainsAdd(t *testing.T) {
	var c Chains
	require.NoError(t, c.Add(MiddlewareDescriptor{Kind: ChainProcess, Name: "a"}))
	require.NoError(t, c.Add(MiddlewareDescriptor{Kind: ChainProcess, Name: "b"}))
	require.NoError(t, c.Add(MiddlewareDescriptor{Kind: ChainError, Name: "a"}))
	require.NoError(t, c.Add(MiddlewareDescriptor{Kind: ChainSubscription, Name: "s"}))

	assert.Equal(t, []string{"a", "b"}, c.Names(ChainProcess))
	assert.Equal(t, []string{"a"}, c.Names(ChainError))
	assert.Equal(t, []string{"s"}, c.Names(ChainSubscription))
	assert.Empty(t, c.Names(ChainKind(42)))
}

func TestChainsAddValidation(t *testing.T) {
	tests := []struct {
		name    string
		desc    MiddlewareDescriptor
		wantIs  error
		wantMsg string
	}{
		{name: "empty name", desc: MiddlewareDescriptor{Kind: ChainProcess}, wantIs: errspkg.ErrNameRequired},
		{name: "unknown kind", desc: MiddlewareDescriptor{Kind: ChainKind(7), Name: "x"}, wantIs: errspkg.ErrUnknownChainKind},
		{name: "duplicate", desc: MiddlewareDescriptor{Kind: ChainProcess, Name: "dup"}, wantMsg: `process middleware "dup" already registered`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Chains{Process: []MiddlewareDescriptor{{Kind: ChainProcess, Name: "dup"}}}
			err := c.Add(tt.desc)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Len(t, c.Process, 1)
		})
	}
}

func TestChainsCloneIsIndependent(t *testing.T) {
	var c Chains
	require.NoError(t, c.Add(MiddlewareDescriptor{Kind: ChainProcess, Name: "a"}))

	clone := c.Clone()
	require.NoError(t, clone.Add(MiddlewareDescriptor{Kind: ChainProcess, Name: "b"}))
	clone.Process[0].Name = "renamed"

	assert.Equal(t, []string{"a"}, c.Names(ChainProcess))
	assert.Equal(t, []string{"renamed", "b"}, clone.Names(ChainProcess))
}

func TestChainsJSON(t *testing.T) {
	c := Chains{Error: []MiddlewareDescriptor{{Kind: ChainError, Name: "error_logging"}}}
	data, err := jsoncodec.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"process":null,"error":[{"kind":"error","name":"error_logging"}],"subscription":null}`, string(data))
}
