package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iishyfishyy/calais/internal/hints"
)

func TestSystem(t *testing.T) {
	set := hints.NewSet([]hints.Doc{{Tool: "deployctl", Keywords: []string{"deploy"}, Content: "ships builds"}}, nil)
	b := &Builder{Env: Environment{OS: "linux", Shell: "/bin/zsh"}, Hints: set}

	out := b.System("deploy the api")
	assert.Contains(t, out, `"command"`)
	assert.Contains(t, out, "Operating System: linux")
	assert.Contains(t, out, "Shell: /bin/zsh")
	assert.Contains(t, out, "## deployctl")

	out = b.System("list files")
	assert.NotContains(t, out, "deployctl")
}

func TestSystem_CustomPolicy(t *testing.T) {
	b := &Builder{Policy: "Only answer with POSIX sh.", Env: Environment{OS: "darwin", Shell: "/bin/bash"}}
	out := b.System("anything")
	assert.Contains(t, out, "Only answer with POSIX sh.")
	assert.NotContains(t, out, "Response format")
}

func TestDetectEnvironment(t *testing.T) {
	t.Setenv("SHELL", "/usr/bin/fish")
	env := DetectEnvironment()
	assert.Equal(t, "/usr/bin/fish", env.Shell)
	assert.NotEmpty(t, env.OS)
}

func TestExplain(t *testing.T) {
	assert.Contains(t, Explain("ls -la"), "`ls -la`")
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Empty(t, p)

	path := filepath.Join(t.TempDir(), "policy.txt")
	require.NoError(t, os.WriteFile(path, []byte("be brief"), 0644))
	p, err = LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, "be brief", p)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
