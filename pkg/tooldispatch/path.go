package tooldispatch

import (
	"path"
	"strings"
)

// NormalizePath cleans and slash-normalizes a tool-supplied file path, the
// way artifact path-uniqueness (invariant 4) and the "already written"
// rewrite-loop guard (§4.3 step 5) both require a canonical comparison key.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// ResolveWorkspacePath implements §6.2's routing rule: when a workspace is
// active, file_* and edit_file calls strip the "output/<workspace>/"
// prefix and route to the workspace endpoint; otherwise paths are confined
// under "output/<slug>/".
func ResolveWorkspacePath(p, workspaceID, fallbackSlug string) (resolved string, workspaceRelative bool) {
	norm := NormalizePath(p)
	if workspaceID != "" {
		prefix := "output/" + workspaceID + "/"
		if stripped, ok := strings.CutPrefix(norm, prefix); ok {
			return stripped, true
		}
		return norm, true
	}
	confined := "output/" + fallbackSlug + "/"
	if strings.HasPrefix(norm, confined) {
		return norm, false
	}
	return confined + norm, false
}
