package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"jira-mcp-server/internal/catalog"
	"jira-mcp-server/internal/common"
)

// Dispatcher is the entry point for tool invocation. It holds no mutable
// per-invocation state: the registry is read-only after startup and the
// executor's connection pool is internally synchronized, so any number of
// Invoke calls may run concurrently.
type Dispatcher struct {
	registry *catalog.Registry
	exec     *Executor
	logger   *common.Logger
	pageSize int
	maxPages int
}

// New creates a dispatcher over a loaded registry.
func New(registry *catalog.Registry, exec *Executor, logger *common.Logger, cfg common.DispatchConfig) *Dispatcher {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}
	return &Dispatcher{
		registry: registry,
		exec:     exec,
		logger:   logger,
		pageSize: pageSize,
		maxPages: maxPages,
	}
}

// Registry exposes the operation registry for the MCP surface.
func (d *Dispatcher) Registry() *catalog.Registry {
	return d.registry
}

// Invoke executes one tool call: registry lookup, argument binding,
// execution, normalization. Binding and registry failures surface
// immediately without any network call.
func (d *Dispatcher) Invoke(ctx context.Context, toolID string, args map[string]any) (*Envelope, error) {
	log := d.logger.WithCorrelationId(shortID())

	desc, err := d.registry.Resolve(toolID)
	if err != nil {
		var nf *catalog.NotFoundError
		if errors.As(err, &nf) {
			return nil, notFoundFailure(toolID)
		}
		return nil, AsFailure(err)
	}

	return d.invokeDescriptor(ctx, log, desc, args)
}

// invokeDescriptor runs bind → execute → normalize for a resolved
// descriptor. The walker and poller reuse it so every page fetch and
// status poll goes through the same path as a plain invocation.
func (d *Dispatcher) invokeDescriptor(ctx context.Context, log *common.Logger, desc *catalog.Descriptor, args map[string]any) (*Envelope, error) {
	bound, err := Bind(desc, args)
	if err != nil {
		log.Warn().Str("tool", desc.Name).Str("error", err.Error()).Msg("argument binding failed")
		return nil, err
	}

	raw, err := d.exec.Execute(ctx, bound)
	if err != nil {
		return nil, err
	}

	env, err := Normalize(raw, desc)
	if err != nil {
		f := AsFailure(err)
		log.Warn().Str("tool", desc.Name).Int("status", f.StatusCode).
			Str("kind", string(f.Kind)).Str("error", f.Message).Msg("remote error")
		return nil, err
	}

	log.Debug().Str("tool", desc.Name).Int("status", env.StatusCode).Msg("invocation complete")
	return env, nil
}

// InvokePaginated walks all pages of a paginated operation and returns the
// page envelopes in order. pageLimit <= 0 applies the configured cap. On a
// mid-walk failure the pages already fetched are returned alongside the
// error — at-least-delivered semantics; the caller decides how to treat the
// partial set. Non-paginated tools fall back to a single Invoke.
func (d *Dispatcher) InvokePaginated(ctx context.Context, toolID string, args map[string]any, pageLimit int) ([]*Envelope, error) {
	walker, err := d.Walk(toolID, args, pageLimit)
	if err != nil {
		return nil, err
	}

	var pages []*Envelope
	for {
		env, err := walker.Next(ctx)
		if err != nil {
			return pages, err
		}
		if env == nil {
			return pages, nil
		}
		pages = append(pages, env)
	}
}

// InvokeAsync executes a task-initiating operation and polls its status
// tool until a terminal state, the polling deadline, or cancellation.
// Non-async tools fall back to a single Invoke. Zero interval/maxWait
// select the configured defaults.
func (d *Dispatcher) InvokeAsync(ctx context.Context, toolID string, args map[string]any, pollInterval, maxWait time.Duration) (*Envelope, error) {
	log := d.logger.WithCorrelationId(shortID())

	desc, err := d.registry.Resolve(toolID)
	if err != nil {
		return nil, notFoundFailure(toolID)
	}

	env, err := d.invokeDescriptor(ctx, log, desc, args)
	if err != nil || desc.Async == nil {
		return env, err
	}

	handle, err := d.TaskHandle(desc, env)
	if err != nil {
		return nil, err
	}

	log.Info().Str("tool", toolID).Str("task_id", handle.TaskID).Msg("task started, polling")
	return d.AwaitTask(ctx, handle, pollInterval, maxWait)
}

func shortID() string {
	return uuid.NewString()[:8]
}
