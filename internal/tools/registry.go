package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
)

// DefaultTimeout bounds tool execution when the descriptor does not set one.
const DefaultTimeout = 30 * time.Second

// Registry holds tool descriptors and executes calls against them.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Descriptor
	logger logging.Logger
}

var _ Executor = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Descriptor),
		logger: logging.NewComponentLogger("tools"),
	}
}

// Register adds a tool. Registering a duplicate name is an error.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("tool already exists: %s", d.Name)
	}
	r.byName[d.Name] = d
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	delete(r.byName, name)
	return nil
}

// Get retrieves a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// validateArgs checks required parameters against the descriptor schema.
func validateArgs(d Descriptor, args map[string]any) error {
	for _, name := range d.Params.Required {
		v, ok := args[name]
		if !ok || v == nil {
			return fmt.Errorf("missing required parameter %q", name)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Errorf("required parameter %q is empty", name)
		}
	}
	return nil
}

type handlerOutcome struct {
	data any
	err  error
}

// Execute runs the named tool with argument validation and a per-tool
// deadline. Failures come back as results so the caller can observe them.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *ExecutionResult {
	start := time.Now()

	d, ok := r.Get(name)
	if !ok {
		r.logger.Warn("tool not found: %s", name)
		res := Failed(name, ErrKindNotFound, fmt.Sprintf("tool not found: %s", name))
		res.Duration = time.Since(start)
		return res
	}

	if err := validateArgs(d, args); err != nil {
		res := Failed(name, ErrKindInvalidParams, err.Error())
		res.Duration = time.Since(start)
		return res
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				outcome <- handlerOutcome{err: fmt.Errorf("tool panicked: %v", rec)}
			}
		}()
		data, err := d.Handler(execCtx, args)
		outcome <- handlerOutcome{data: data, err: err}
	}()

	select {
	case <-execCtx.Done():
		elapsed := time.Since(start)
		kind := ErrKindTimeout
		msg := fmt.Sprintf("tool %s timed out after %s", name, timeout)
		if ctx.Err() != nil {
			// Parent cancellation, not a per-tool deadline.
			kind = ErrKindExecution
			msg = fmt.Sprintf("tool %s canceled: %v", name, ctx.Err())
		}
		r.logger.Warn("%s", msg)
		res := Failed(name, kind, msg)
		res.Duration = elapsed
		return res
	case out := <-outcome:
		elapsed := time.Since(start)
		if out.err != nil {
			res := Failed(name, ErrKindExecution, out.err.Error())
			res.Duration = elapsed
			return res
		}
		r.logger.Debug("tool %s ok in %s", name, elapsed)
		return &ExecutionResult{Tool: name, OK: true, Data: out.data, Duration: elapsed}
	}
}
