package dispatch

import (
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"jira-mcp-server/internal/catalog"
)

// BoundRequest is a fully parameterized, ready-to-send request derived from
// a descriptor and caller arguments. It is consumed by the executor and
// discarded.
type BoundRequest struct {
	Tool       string
	Method     string
	Path       string // placeholders substituted, segments percent-encoded
	Query      string // encoded, parameters in declaration order
	Header     http.Header
	Body      []byte
	RetrySafe bool
}

// URL joins the bound path and query onto a base URL.
func (br *BoundRequest) URL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/") + br.Path
	if br.Query != "" {
		u += "?" + br.Query
	}
	return u
}

// Bind partitions and validates an argument bag against a descriptor.
// Every declared parameter is looked up by name, coerced to its primitive
// type, and placed at its declared location. A declared key carrying nil is
// treated as absent. Any key not matching a declared parameter or the body
// spec is rejected whatever its value — strict mode prevents silent typos
// across a high-cardinality operation set.
func Bind(desc *catalog.Descriptor, args map[string]any) (*BoundRequest, error) {
	br := &BoundRequest{
		Tool:      desc.Name,
		Method:    desc.Method,
		Path:      desc.Path,
		Header:    make(http.Header),
		RetrySafe: desc.RetrySafe(),
	}

	consumed := make(map[string]bool, len(args))
	var query []string

	for i := range desc.Params {
		p := &desc.Params[i]
		raw, present := args[p.Name]
		if present {
			consumed[p.Name] = true
		}
		if !present || raw == nil {
			if p.Required {
				return nil, validationFailure(DetailMissingRequired, "missing required parameter %q", p.Name)
			}
			continue
		}

		val, err := coerce(p, raw)
		if err != nil {
			return nil, err
		}

		switch p.In {
		case catalog.InPath:
			if val == "" {
				return nil, validationFailure(DetailMissingRequired, "path parameter %q is empty", p.Name)
			}
			br.Path = strings.ReplaceAll(br.Path, "{"+p.Name+"}", url.PathEscape(val))
		case catalog.InQuery:
			// Declaration order, not the alphabetical order url.Values.Encode
			// would impose; the remote service treats order as insignificant
			// but stable output keeps request logs and tests deterministic.
			query = append(query, url.QueryEscape(p.Name)+"="+url.QueryEscape(val))
		case catalog.InHeader:
			br.Header.Set(p.Name, val)
		}
	}
	br.Query = strings.Join(query, "&")

	if desc.Body != nil {
		raw, present := args[desc.Body.ArgName]
		if present {
			consumed[desc.Body.ArgName] = true
		}
		if !present || raw == nil {
			if desc.Body.Required {
				return nil, validationFailure(DetailMissingRequired, "missing required body argument %q", desc.Body.ArgName)
			}
		} else {
			body, err := marshalBody(desc.Body.ArgName, raw)
			if err != nil {
				return nil, err
			}
			br.Body = body
		}
	}

	for name := range args {
		if !consumed[name] {
			return nil, validationFailure(DetailUnknownParameter, "unknown parameter %q for tool %q", name, desc.Name)
		}
	}

	return br, nil
}

// marshalBody serializes the body argument as-is: structural pass-through,
// no schema validation. A string that already holds JSON is used verbatim.
func marshalBody(argName string, raw any) ([]byte, error) {
	if s, ok := raw.(string); ok {
		trimmed := strings.TrimSpace(s)
		if !json.Valid([]byte(trimmed)) {
			return nil, validationFailure(DetailWrongType, "body argument %q is not valid JSON", argName)
		}
		return []byte(trimmed), nil
	}
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, validationFailure(DetailWrongType, "body argument %q is not serializable: %v", argName, err)
	}
	return body, nil
}

// coerce converts an argument value to the string form of its declared
// primitive type. Argument bags arrive from JSON, so numbers come in as
// float64; string renditions of numbers and booleans are accepted as well
// since MCP clients frequently stringify everything.
func coerce(p *catalog.Param, raw any) (string, error) {
	switch p.Type {
	case catalog.TypeString:
		s, ok := raw.(string)
		if !ok {
			return "", wrongType(p, raw, "string")
		}
		return s, nil

	case catalog.TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return "", wrongType(p, raw, "string")
		}
		for _, allowed := range p.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return "", validationFailure(DetailWrongType, "parameter %q: value %q not in [%s]",
			p.Name, s, strings.Join(p.Enum, ", "))

	case catalog.TypeInteger:
		switch v := raw.(type) {
		case float64:
			if v != math.Trunc(v) {
				return "", wrongType(p, raw, "integer")
			}
			return strconv.FormatInt(int64(v), 10), nil
		case int:
			return strconv.Itoa(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case json.Number:
			if _, err := v.Int64(); err != nil {
				return "", wrongType(p, raw, "integer")
			}
			return v.String(), nil
		case string:
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return "", wrongType(p, raw, "integer")
			}
			return v, nil
		default:
			return "", wrongType(p, raw, "integer")
		}

	case catalog.TypeNumber:
		switch v := raw.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		case json.Number:
			return v.String(), nil
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return "", wrongType(p, raw, "number")
			}
			return v, nil
		default:
			return "", wrongType(p, raw, "number")
		}

	case catalog.TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case string:
			if v == "true" || v == "false" {
				return v, nil
			}
			return "", wrongType(p, raw, "boolean")
		default:
			return "", wrongType(p, raw, "boolean")
		}
	}
	return "", validationFailure(DetailWrongType, "parameter %q has unsupported type %q", p.Name, p.Type)
}

func wrongType(p *catalog.Param, raw any, want string) *Failure {
	return validationFailure(DetailWrongType, "parameter %q: cannot use %v (%T) as %s",
		p.Name, raw, raw, want)
}
