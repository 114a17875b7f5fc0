package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_Builtins(t *testing.T) {
	r := DefaultRegistry()

	bash, ok := r.Get("Bash")
	require.True(t, ok)
	assert.Equal(t, KindShell, bash.Kind)
	assert.True(t, bash.Restricted)
	assert.Equal(t, "command", bash.ArgKey)

	read, ok := r.Get("Read")
	require.True(t, ok)
	assert.Equal(t, KindSinglePath, read.Kind)
	assert.True(t, read.ReadOnly)
	assert.False(t, read.Restricted)

	write, ok := r.Get("Write")
	require.True(t, ok)
	assert.True(t, write.Mutating)
	assert.True(t, write.Restricted)
}

func TestDescribe_UnknownToolIsRestricted(t *testing.T) {
	r := DefaultRegistry()

	d := r.Describe("mcp__weather__forecast")
	assert.Equal(t, KindOpaque, d.Kind)
	assert.True(t, d.Restricted)
	assert.Empty(t, d.ArgKey)
}

func TestArgument(t *testing.T) {
	d := Descriptor{Name: "Bash", Kind: KindShell, ArgKey: "command"}

	arg, ok := d.Argument(map[string]any{"command": "ls -la"})
	require.True(t, ok)
	assert.Equal(t, "ls -la", arg)

	_, ok = d.Argument(map[string]any{"other": "x"})
	assert.False(t, ok)

	_, ok = d.Argument(map[string]any{"command": 42})
	assert.False(t, ok)
}

func TestRegister_Replaces(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{Name: "Custom", Kind: KindOpaque})
	r.Register(Descriptor{Name: "Custom", Kind: KindSinglePath, ArgKey: "path"})

	d, ok := r.Get("Custom")
	require.True(t, ok)
	assert.Equal(t, KindSinglePath, d.Kind)
}
