package tooldispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "index.html", NormalizePath("index.html"))
	assert.Equal(t, "index.html", NormalizePath("/index.html"))
	assert.Equal(t, "a/b.go", NormalizePath("a/./b.go"))
	assert.Equal(t, "a/b.go", NormalizePath(`a\b.go`))
	assert.Equal(t, "b.go", NormalizePath("a/../b.go"))
}

func TestResolveWorkspacePathWithWorkspace(t *testing.T) {
	resolved, rel := ResolveWorkspacePath("output/ws-1/src/main.go", "ws-1", "slug")
	assert.True(t, rel)
	assert.Equal(t, "src/main.go", resolved)
}

func TestResolveWorkspacePathWithoutWorkspace(t *testing.T) {
	resolved, rel := ResolveWorkspacePath("src/main.go", "", "my-work-order")
	assert.False(t, rel)
	assert.Equal(t, "output/my-work-order/src/main.go", resolved)

	resolved2, _ := ResolveWorkspacePath("output/my-work-order/src/main.go", "", "my-work-order")
	assert.Equal(t, "output/my-work-order/src/main.go", resolved2)
}
