package tooldispatch

import (
	"context"
	"fmt"
	"sync"
)

// Stub is a scriptable Dispatcher for tests, mirroring the teacher's
// agent.StubToolExecutor — it records every call it receives and returns a
// pre-programmed Result keyed by tool name, falling back to an empty
// success result.
type Stub struct {
	mu      sync.Mutex
	Results map[Name]Result
	Errors  map[Name]error
	Calls   []Request
}

// NewStub builds an empty Stub.
func NewStub() *Stub {
	return &Stub{Results: map[Name]Result{}, Errors: map[Name]error{}}
}

func (s *Stub) Dispatch(ctx context.Context, req Request) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, req)

	if err, ok := s.Errors[req.Tool]; ok {
		return Result{}, err
	}
	if res, ok := s.Results[req.Tool]; ok {
		return res, nil
	}
	return Result{Content: fmt.Sprintf(`{"ok":true,"tool":%q}`, req.Tool)}, nil
}

// CallsFor returns every recorded call for the given tool, in call order.
func (s *Stub) CallsFor(tool Name) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, c := range s.Calls {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}
