// Package tooldispatch is the L2 abstraction (§2, §6.2): a fixed,
// closed-set tool table executed against an external backend (file I/O,
// code execution, shell, search, image gen). Grounded on the teacher's
// pkg/agent/tool_executor.go (ToolExecutor interface, ToolResult shape),
// adapted from an open MCP registry to a fixed switch table since the
// spec's Tool Dispatcher has no analogue to an MCP server catalogue.
package tooldispatch

import (
	"context"
	"time"
)

// Name is one of the recognized tool names (§6.2).
type Name string

const (
	FileRead            Name = "file_read"
	FileWrite           Name = "file_write"
	FileList            Name = "file_list"
	ScanDirectory       Name = "scan_directory"
	CodeSearch          Name = "code_search"
	ExecuteCode         Name = "execute_code"
	RunCommand          Name = "run_command"
	Git                 Name = "git"
	EditFile            Name = "edit_file"
	WebSearch           Name = "web_search"
	GenerateImage       Name = "generate_image"
	MemoryStore         Name = "memory_store"
	MemoryRecall        Name = "memory_recall"
	SystemStatus        Name = "system_status"
	RequestClarification Name = "request_clarification"
)

// KnownTools is the closed set recognized by the dispatcher.
var KnownTools = map[Name]struct{}{
	FileRead: {}, FileWrite: {}, FileList: {}, ScanDirectory: {},
	CodeSearch: {}, ExecuteCode: {}, RunCommand: {}, Git: {},
	EditFile: {}, WebSearch: {}, GenerateImage: {}, MemoryStore: {},
	MemoryRecall: {}, SystemStatus: {}, RequestClarification: {},
}

// IsKnown reports whether name is in the fixed tool table.
func IsKnown(name string) bool {
	_, ok := KnownTools[Name(name)]
	return ok
}

// FileProducingTools are the tools whose success the pod tool loop
// announces with an artifact_ready bus message (§4.3 step 5); no Artifact
// is built from their input.
var FileProducingTools = map[Name]struct{}{
	FileWrite: {}, EditFile: {},
}

// Request is a tool invocation, matching the wire contract's
// {tool, input} shape.
type Request struct {
	Tool  Name
	Input map[string]any
}

// Result is a tool's outcome. Content is the raw backend payload (already
// shaped per §6.2's per-tool result table); IsError distinguishes a
// backend-reported failure from a successful empty result.
type Result struct {
	Content  string
	IsError  bool
	Duration time.Duration
}

// Dispatcher executes a named tool against the external backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (Result, error)
}
