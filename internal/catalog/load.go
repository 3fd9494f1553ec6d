package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// jiraCatalog is the embedded default catalogue: a representative cut of the
// Jira Cloud v3 REST API. A full catalogue can be dropped in via config.
//
//go:embed jira.yaml
var jiraCatalog []byte

// maxCatalogSize caps a catalogue document at 4MB; anything larger is
// almost certainly not a catalogue.
const maxCatalogSize = 4 << 20

// allowedMethods is the whitelist of HTTP methods for catalogue operations.
var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

var placeholderRe = regexp.MustCompile(`\{([^{}/]+)\}`)

// Error reports a malformed catalogue document. Registry construction
// aborts on the first invalid entry so partial operation sets never exist
// at runtime.
type Error struct {
	Tool   string
	Reason string
}

func (e *Error) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("invalid catalogue: %s", e.Reason)
	}
	return fmt.Sprintf("invalid catalogue entry %q: %s", e.Tool, e.Reason)
}

// document is the on-disk shape of a catalogue file.
type document struct {
	Tools []*Descriptor `yaml:"tools"`
}

// Load reads and validates a catalogue document. An empty path selects the
// embedded default Jira catalogue. YAML is a JSON superset, so .json
// catalogues parse through the same path.
func Load(path string) (*Registry, error) {
	data := jiraCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalogue %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse validates a catalogue document and builds the registry.
func Parse(data []byte) (*Registry, error) {
	if len(data) > maxCatalogSize {
		return nil, &Error{Reason: fmt.Sprintf("document too large: %d bytes (max %d)", len(data), maxCatalogSize)}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("parse failed: %v", err)}
	}
	if len(doc.Tools) == 0 {
		return nil, &Error{Reason: "no tools defined"}
	}

	seen := make(map[string]*Descriptor, len(doc.Tools))
	for _, d := range doc.Tools {
		if d == nil {
			return nil, &Error{Reason: "empty tool entry"}
		}
		if err := validateDescriptor(d); err != nil {
			return nil, err
		}
		if seen[d.Name] != nil {
			return nil, &Error{Tool: d.Name, Reason: "duplicate tool name"}
		}
		seen[d.Name] = d
	}

	// Async markers may reference any tool in the document, so resolve them
	// after the full set of names is known.
	for _, d := range doc.Tools {
		if d.Async == nil {
			continue
		}
		st := seen[d.Async.StatusTool]
		if st == nil {
			return nil, &Error{Tool: d.Name, Reason: fmt.Sprintf("async status_tool %q not in catalogue", d.Async.StatusTool)}
		}
		if st.Param(d.Async.TaskIDParam) == nil {
			return nil, &Error{Tool: d.Name, Reason: fmt.Sprintf("async task_id_param %q is not a parameter of status_tool %q", d.Async.TaskIDParam, d.Async.StatusTool)}
		}
	}

	return NewRegistry(doc.Tools), nil
}

// validateDescriptor checks a single entry and fills in defaults.
func validateDescriptor(d *Descriptor) error {
	if d.Name == "" {
		return &Error{Reason: "tool has empty name"}
	}
	d.Method = strings.ToUpper(d.Method)
	if !allowedMethods[d.Method] {
		return &Error{Tool: d.Name, Reason: fmt.Sprintf("unsupported method %q", d.Method)}
	}
	if d.Path == "" || !strings.HasPrefix(d.Path, "/") {
		return &Error{Tool: d.Name, Reason: fmt.Sprintf("invalid path %q", d.Path)}
	}
	if strings.Contains(d.Path, "..") {
		return &Error{Tool: d.Name, Reason: fmt.Sprintf("invalid path %q (contains ..)", d.Path)}
	}

	if d.Response == "" {
		d.Response = ResponseJSON
	}
	switch d.Response {
	case ResponseJSON, ResponseBinary, ResponseEmpty:
	default:
		return &Error{Tool: d.Name, Reason: fmt.Sprintf("unknown response kind %q", d.Response)}
	}

	if err := validateParams(d); err != nil {
		return err
	}
	if err := validatePlaceholders(d); err != nil {
		return err
	}
	if d.Pagination != nil {
		if err := validatePagination(d); err != nil {
			return err
		}
	}
	if d.Async != nil {
		if err := validateAsync(d); err != nil {
			return err
		}
	}
	return nil
}

func validateParams(d *Descriptor) error {
	// Names must be unique per location.
	type key struct {
		name string
		in   ParamLocation
	}
	seen := make(map[key]bool, len(d.Params))
	for i := range d.Params {
		p := &d.Params[i]
		if p.Name == "" {
			return &Error{Tool: d.Name, Reason: "parameter with empty name"}
		}
		switch p.In {
		case InPath, InQuery, InHeader:
		default:
			return &Error{Tool: d.Name, Reason: fmt.Sprintf("parameter %q has unknown location %q", p.Name, p.In)}
		}
		if p.Type == "" {
			p.Type = TypeString
		}
		switch p.Type {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeEnum:
		default:
			return &Error{Tool: d.Name, Reason: fmt.Sprintf("parameter %q has unknown type %q", p.Name, p.Type)}
		}
		if p.Type == TypeEnum && len(p.Enum) == 0 {
			return &Error{Tool: d.Name, Reason: fmt.Sprintf("enum parameter %q has no values", p.Name)}
		}
		if p.In == InPath && !p.Required {
			return &Error{Tool: d.Name, Reason: fmt.Sprintf("path parameter %q must be required", p.Name)}
		}
		k := key{p.Name, p.In}
		if seen[k] {
			return &Error{Tool: d.Name, Reason: fmt.Sprintf("duplicate parameter %q in %s", p.Name, p.In)}
		}
		seen[k] = true
	}

	if d.Body != nil {
		if d.Body.ArgName == "" {
			return &Error{Tool: d.Name, Reason: "body spec has empty arg name"}
		}
		for i := range d.Params {
			if d.Params[i].Name == d.Body.ArgName {
				return &Error{Tool: d.Name, Reason: fmt.Sprintf("body arg %q collides with a declared parameter", d.Body.ArgName)}
			}
		}
	}
	return nil
}

// validatePlaceholders checks that path placeholders and declared path
// parameters match one-to-one.
func validatePlaceholders(d *Descriptor) error {
	holes := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(d.Path, -1) {
		holes[m[1]] = true
	}
	for i := range d.Params {
		p := &d.Params[i]
		if p.In != InPath {
			continue
		}
		if !holes[p.Name] {
			return &Error{Tool: d.Name, Reason: fmt.Sprintf("path parameter %q has no placeholder in %q", p.Name, d.Path)}
		}
		delete(holes, p.Name)
	}
	for name := range holes {
		return &Error{Tool: d.Name, Reason: fmt.Sprintf("placeholder {%s} has no declared path parameter", name)}
	}
	return nil
}

func validatePagination(d *Descriptor) error {
	pg := d.Pagination
	switch pg.Mode {
	case PaginateOffset:
		if pg.StartAtParam == "" || pg.MaxResultsParam == "" {
			return &Error{Tool: d.Name, Reason: "offset pagination requires start_at_param and max_results_param"}
		}
		// Cursor parameters the walker rewrites must exist on the operation,
		// or every page fetch would be rejected at bind time.
		for _, name := range []string{pg.StartAtParam, pg.MaxResultsParam} {
			if p := d.Param(name); p == nil || p.In != InQuery {
				return &Error{Tool: d.Name, Reason: fmt.Sprintf("pagination cursor %q is not a declared query parameter", name)}
			}
		}
	case PaginateToken:
		if pg.TokenParam == "" || pg.TokenField == "" {
			return &Error{Tool: d.Name, Reason: "token pagination requires token_param and token_field"}
		}
		if p := d.Param(pg.TokenParam); p == nil || p.In != InQuery {
			return &Error{Tool: d.Name, Reason: fmt.Sprintf("pagination cursor %q is not a declared query parameter", pg.TokenParam)}
		}
	default:
		return &Error{Tool: d.Name, Reason: fmt.Sprintf("unknown pagination mode %q", pg.Mode)}
	}
	if d.Response != ResponseJSON {
		return &Error{Tool: d.Name, Reason: "paginated operations must return json"}
	}
	return nil
}

func validateAsync(d *Descriptor) error {
	a := d.Async
	if a.StatusTool == "" {
		return &Error{Tool: d.Name, Reason: "async marker has empty status_tool"}
	}
	if a.TaskIDField == "" || a.TaskIDParam == "" || a.StatusField == "" {
		return &Error{Tool: d.Name, Reason: "async marker requires task_id_field, task_id_param, and status_field"}
	}
	if len(a.StatusMap) == 0 {
		return &Error{Tool: d.Name, Reason: "async marker has empty status_map"}
	}
	for raw, mapped := range a.StatusMap {
		switch mapped {
		case "pending", "running", "succeeded", "failed", "cancelled":
		default:
			return &Error{Tool: d.Name, Reason: fmt.Sprintf("status_map value %q for %q is not a poller state", mapped, raw)}
		}
	}
	return nil
}
