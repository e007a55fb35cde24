package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/errand/internal/logging"
	"github.com/aretw0/errand/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultToolTimeout bounds a single tool invocation.
const DefaultToolTimeout = 30 * time.Second

// Executor invokes a tool by name. *registry.Registry satisfies it.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// Result is the outcome of one step. Step carries the final status, result
// and error message.
type Result struct {
	Index    int
	Step     domain.ExecutionStep
	Duration time.Duration
}

// Failed reports whether the step did not complete.
func (r Result) Failed() bool {
	return r.Step.Status == domain.StepFailed
}

// Option configures a Runner.
type Option func(*Runner)

// WithBatchCap overrides DefaultBatchCap.
func WithBatchCap(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.cap = n
		}
	}
}

// WithToolTimeout overrides DefaultToolTimeout.
func WithToolTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithLifecycleHooks reports tool calls.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) { r.hooks = hooks }
}

// WithBatchObserver is called with the size of every batch run.
func WithBatchObserver(fn func(size int)) Option {
	return func(r *Runner) { r.onBatch = fn }
}

// Runner executes steps with bounded concurrency.
type Runner struct {
	exec    Executor
	cap     int
	timeout time.Duration
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	onBatch func(int)
	tracer  trace.Tracer
}

// NewRunner returns a Runner over exec.
func NewRunner(exec Executor, opts ...Option) *Runner {
	r := &Runner{
		exec:    exec,
		cap:     DefaultBatchCap,
		timeout: DefaultToolTimeout,
		logger:  logging.NewNop(),
		tracer:  otel.Tracer("github.com/aretw0/errand/internal/steps"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cap returns the batch cap.
func (r *Runner) Cap() int {
	return r.cap
}

// Job is a step paired with its plan index.
type Job struct {
	Index int
	Step  domain.ExecutionStep
}

// Jobs pairs consecutive steps with indexes starting at offset.
func Jobs(batch []domain.ExecutionStep, offset int) []Job {
	out := make([]Job, len(batch))
	for i, st := range batch {
		out[i] = Job{Index: offset + i, Step: st}
	}
	return out
}

// RunBatch runs jobs concurrently on min(cap, len(jobs)) workers. Each
// worker claims the next unclaimed job until none remain. Results are
// sorted by plan index.
func (r *Runner) RunBatch(ctx context.Context, taskID string, jobs []Job) []Result {
	if len(jobs) == 0 {
		return nil
	}
	if r.onBatch != nil {
		r.onBatch(len(jobs))
	}

	var (
		next    atomic.Int64
		mu      sync.Mutex
		results = make([]Result, 0, len(jobs))
	)
	workers := min(r.cap, len(jobs))

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for {
				i := int(next.Add(1) - 1)
				if i >= len(jobs) {
					return nil
				}
				res := r.run(ctx, taskID, jobs[i].Step, jobs[i].Index)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		})
	}
	// Workers never return errors; failures are recorded per step.
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

// Run executes a single step inline.
func (r *Runner) Run(ctx context.Context, taskID string, step domain.ExecutionStep, index int) Result {
	return r.run(ctx, taskID, step, index)
}

func (r *Runner) run(ctx context.Context, taskID string, step domain.ExecutionStep, index int) Result {
	ctx, span := r.tracer.Start(ctx, "tool."+step.ToolName, trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String("step.id", step.ID),
		attribute.Int("step.index", index),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	r.emit(ctx, r.hooks.OnToolCall, domain.EventToolCall, taskID, step, nil, false, 0)

	out, err := r.invoke(callCtx, step)
	elapsed := time.Since(start)

	if err == nil {
		if msg, failed := ErrorPayload(out); failed {
			err = errors.New(msg)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("tool %s timed out after %s", step.ToolName, r.timeout)
	}

	step.Result = out
	if err != nil {
		step.Status = domain.StepFailed
		step.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("step failed", "task_id", taskID, "step", step.ID, "tool", step.ToolName, "err", err)
	} else {
		step.Status = domain.StepCompleted
		step.Error = ""
		r.logger.Debug("step completed", "task_id", taskID, "step", step.ID, "tool", step.ToolName, "duration", elapsed)
	}

	r.emit(ctx, r.hooks.OnToolReturn, domain.EventToolReturn, taskID, step, out, err != nil, elapsed)
	return Result{Index: index, Step: step, Duration: elapsed}
}

// invoke calls the tool, converting a panic into an error.
func (r *Runner) invoke(ctx context.Context, step domain.ExecutionStep) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", step.ToolName, p)
		}
	}()
	return r.exec.Execute(ctx, step.ToolName, step.ToolArgs)
}

func (r *Runner) emit(ctx context.Context, hook func(context.Context, *domain.ToolEvent), typ domain.EventType, taskID string, step domain.ExecutionStep, out any, isErr bool, d time.Duration) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.ToolEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, TaskID: taskID},
		StepID:    step.ID,
		ToolName:  step.ToolName,
		Input:     step.ToolArgs,
		Output:    out,
		IsError:   isErr,
		Duration:  d,
	})
}

// ErrorPayload detects a tool result that reports failure instead of
// returning an error: {"error": "..."} or {"success": false, ...}.
func ErrorPayload(out any) (string, bool) {
	switch v := out.(type) {
	case domain.ToolErrorPayload:
		return payloadMessage(v.Error, v.Success)
	case *domain.ToolErrorPayload:
		if v == nil {
			return "", false
		}
		return payloadMessage(v.Error, v.Success)
	case map[string]any:
		msg, _ := v["error"].(string)
		var success *bool
		if b, ok := v["success"].(bool); ok {
			success = &b
		}
		return payloadMessage(msg, success)
	}
	return "", false
}

func payloadMessage(msg string, success *bool) (string, bool) {
	if success != nil && *success {
		return "", false
	}
	if msg != "" {
		return msg, true
	}
	if success != nil {
		return "tool reported failure", true
	}
	return "", false
}
