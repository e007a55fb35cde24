// Package registry holds the tools plans can invoke.
//
// A Registry is an explicit instance built once at process start and passed
// to whatever needs to run tools; there is no package-level default.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// ErrInvalidArgs is returned when a call is missing required arguments or
// its arguments cannot be decoded.
var ErrInvalidArgs = errors.New("invalid tool arguments")

// ToolFunction defines the signature for a tool implementation.
// It receives a context and a map of arguments, and returns a result or error.
type ToolFunction func(ctx context.Context, args map[string]any) (any, error)

type entry struct {
	spec domain.Tool
	fn   ToolFunction
}

// Registry manages the available tools and which task types may use them.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	scopes map[domain.TaskType][]string
}

// New creates a new empty registry.
func New() *Registry {
	return &Registry{
		tools:  make(map[string]entry),
		scopes: make(map[domain.TaskType][]string),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten.
func (r *Registry) Register(spec domain.Tool, fn ToolFunction) error {
	if spec.Name == "" {
		return errors.New("tool name is required")
	}
	if fn == nil {
		return fmt.Errorf("tool %q has no implementation", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[spec.Name] = entry{spec: spec, fn: fn}
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(spec domain.Tool, fn ToolFunction) {
	if err := r.Register(spec, fn); err != nil {
		panic(err)
	}
}

// Scope declares the tools a task type may plan with, in prompt order.
// Names may be registered later.
func (r *Registry) Scope(taskType domain.TaskType, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if !slices.Contains(r.scopes[taskType], n) {
			r.scopes[taskType] = append(r.scopes[taskType], n)
		}
	}
}

// ToolsFor returns the registered tools scoped to taskType. A task type with
// no declared scope sees every tool.
func (r *Registry) ToolsFor(taskType domain.TaskType) []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names, scoped := r.scopes[taskType]
	if !scoped {
		names = make([]string, 0, len(r.tools))
		for n := range r.tools {
			names = append(names, n)
		}
		sort.Strings(names)
	}

	out := make([]domain.Tool, 0, len(names))
	for _, n := range names {
		if e, ok := r.tools[n]; ok {
			out = append(out, e.spec)
		}
	}
	return out
}

// Lookup returns the declaration of a tool.
func (r *Registry) Lookup(name string) (domain.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.spec, ok
}

// Names lists every registered tool, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Execute looks up a tool by name, checks required arguments and runs it.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}

	for _, req := range e.spec.Required() {
		if v, present := args[req]; !present || v == nil || v == "" {
			return nil, fmt.Errorf("%w: %s requires %q", ErrInvalidArgs, name, req)
		}
	}

	return e.fn(ctx, args)
}

// Decode converts loosely typed arguments into T using its json tags.
// Strings are coerced to numbers and booleans where needed.
func Decode[T any](args map[string]any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(args); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return out, nil
}

// Typed adapts a function taking a decoded argument struct into a ToolFunction.
func Typed[T any](fn func(ctx context.Context, args T) (any, error)) ToolFunction {
	return func(ctx context.Context, raw map[string]any) (any, error) {
		args, err := Decode[T](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
}
