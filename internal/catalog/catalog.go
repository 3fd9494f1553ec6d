// Package catalog holds the operation registry: the immutable mapping from
// tool name to the descriptor that tells the dispatcher how to build and
// interpret one Jira REST call. The registry is built once at startup and
// never mutated, so concurrent reads need no locking.
package catalog

import (
	"fmt"
	"sort"
)

// ParamLocation says where a parameter is placed on the wire.
type ParamLocation string

const (
	InPath   ParamLocation = "path"
	InQuery  ParamLocation = "query"
	InHeader ParamLocation = "header"
)

// ParamType is the primitive type a parameter value is coerced to.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeEnum    ParamType = "enum"
)

// ResponseKind describes how a successful response body is decoded.
type ResponseKind string

const (
	ResponseJSON   ResponseKind = "json"
	ResponseBinary ResponseKind = "binary"
	ResponseEmpty  ResponseKind = "empty"
)

// PaginationMode selects the traversal strategy for paginated operations.
type PaginationMode string

const (
	PaginateOffset PaginationMode = "offset"
	PaginateToken  PaginationMode = "token"
)

// Param describes one declared parameter of an operation.
type Param struct {
	Name        string        `yaml:"name" json:"name"`
	In          ParamLocation `yaml:"in" json:"in"`
	Type        ParamType     `yaml:"type" json:"type"`
	Required    bool          `yaml:"required" json:"required"`
	Enum        []string      `yaml:"enum,omitempty" json:"enum,omitempty"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
}

// Body describes the request body slot of an operation. The argument bag
// value under ArgName is serialized as-is; deep schema validation is left
// to the remote service.
type Body struct {
	ArgName     string `yaml:"arg" json:"arg"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required" json:"required"`
}

// Pagination carries the descriptor-supplied cursor semantics. Offset mode
// uses StartAtParam/MaxResultsParam with optional TotalField/IsLastField
// termination metadata; token mode threads TokenField from each response
// into TokenParam of the next request.
type Pagination struct {
	Mode            PaginationMode `yaml:"mode" json:"mode"`
	ItemsField      string         `yaml:"items_field,omitempty" json:"items_field,omitempty"`
	StartAtParam    string         `yaml:"start_at_param,omitempty" json:"start_at_param,omitempty"`
	MaxResultsParam string         `yaml:"max_results_param,omitempty" json:"max_results_param,omitempty"`
	TotalField      string         `yaml:"total_field,omitempty" json:"total_field,omitempty"`
	IsLastField     string         `yaml:"is_last_field,omitempty" json:"is_last_field,omitempty"`
	TokenParam      string         `yaml:"token_param,omitempty" json:"token_param,omitempty"`
	TokenField      string         `yaml:"token_field,omitempty" json:"token_field,omitempty"`
}

// Async marks an operation that returns a long-running task handle.
// StatusTool names the catalogue operation polled for progress; StatusMap
// translates the service's status vocabulary (which differs per operation
// family) into the poller's canonical states.
type Async struct {
	StatusTool  string            `yaml:"status_tool" json:"status_tool"`
	TaskIDField string            `yaml:"task_id_field" json:"task_id_field"`
	TaskIDParam string            `yaml:"task_id_param" json:"task_id_param"`
	StatusField string            `yaml:"status_field" json:"status_field"`
	StatusMap   map[string]string `yaml:"status_map" json:"status_map"`
}

// Descriptor is the immutable metadata describing one operation. Owned
// exclusively by the Registry once loaded.
type Descriptor struct {
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Method      string       `yaml:"method" json:"method"`
	Path        string       `yaml:"path" json:"path"`
	Params      []Param      `yaml:"params,omitempty" json:"params,omitempty"`
	Body        *Body        `yaml:"body,omitempty" json:"body,omitempty"`
	Pagination  *Pagination  `yaml:"pagination,omitempty" json:"pagination,omitempty"`
	Async       *Async       `yaml:"async,omitempty" json:"async,omitempty"`
	Response    ResponseKind `yaml:"response,omitempty" json:"response,omitempty"`
	Idempotent  bool         `yaml:"idempotent,omitempty" json:"idempotent,omitempty"`
}

// Param returns the declared parameter with the given name, or nil.
func (d *Descriptor) Param(name string) *Param {
	for i := range d.Params {
		if d.Params[i].Name == name {
			return &d.Params[i]
		}
	}
	return nil
}

// RetrySafe reports whether the executor may retry this operation after a
// transient failure. GET, PUT, DELETE and HEAD are idempotent by method;
// POST and PATCH need an explicit idempotent marker to avoid duplicate
// side effects such as double issue creation.
func (d *Descriptor) RetrySafe() bool {
	switch d.Method {
	case "GET", "PUT", "DELETE", "HEAD":
		return true
	default:
		return d.Idempotent
	}
}

// NotFoundError is returned by Resolve for an unknown tool name.
type NotFoundError struct {
	Tool string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

// Registry is the read-only operation registry.
type Registry struct {
	ops map[string]*Descriptor
}

// NewRegistry builds a registry from validated descriptors. Callers go
// through Load/Parse, which validate entries first.
func NewRegistry(descriptors []*Descriptor) *Registry {
	ops := make(map[string]*Descriptor, len(descriptors))
	for _, d := range descriptors {
		ops[d.Name] = d
	}
	return &Registry{ops: ops}
}

// Resolve returns the descriptor for toolID, or a NotFoundError.
func (r *Registry) Resolve(toolID string) (*Descriptor, error) {
	d, ok := r.ops[toolID]
	if !ok {
		return nil, &NotFoundError{Tool: toolID}
	}
	return d, nil
}

// Names returns all tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	return len(r.ops)
}
