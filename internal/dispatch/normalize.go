package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"jira-mcp-server/internal/catalog"
)

// Normalize maps a raw HTTP response into the result union: a success
// Envelope decoded per the descriptor's response kind, or a typed Failure
// for remote errors and undecodable bodies.
func Normalize(raw *RawResponse, desc *catalog.Descriptor) (*Envelope, error) {
	contentType := raw.Header.Get("Content-Type")

	if raw.StatusCode >= 200 && raw.StatusCode < 300 {
		env := &Envelope{
			StatusCode:  raw.StatusCode,
			Raw:         raw.Body,
			ContentType: contentType,
		}
		switch desc.Response {
		case catalog.ResponseEmpty:
			env.Empty = true
			env.Raw = nil
			return env, nil
		case catalog.ResponseBinary:
			env.Binary = true
			return env, nil
		default:
			if len(raw.Body) == 0 || raw.StatusCode == http.StatusNoContent {
				// Some operations legitimately answer 204 even when the
				// descriptor expects json (e.g. notifyUsers variants).
				env.Empty = true
				env.Raw = nil
				return env, nil
			}
			var body any
			if err := json.Unmarshal(raw.Body, &body); err != nil {
				return nil, &Failure{
					Kind:       KindDecode,
					StatusCode: raw.StatusCode,
					Message:    fmt.Sprintf("expected JSON body: %v", err),
				}
			}
			env.Body = body
			return env, nil
		}
	}

	message := errorMessage(raw.Body, raw.StatusCode)

	switch {
	case raw.StatusCode == http.StatusTooManyRequests:
		return nil, &Failure{
			Kind:       KindClient,
			StatusCode: raw.StatusCode,
			Message:    message,
			Retryable:  true,
			RetryAfter: parseRetryAfter(raw.Header.Get("Retry-After")),
		}
	case raw.StatusCode >= 500:
		return nil, &Failure{
			Kind:       KindServer,
			StatusCode: raw.StatusCode,
			Message:    message,
			Retryable:  true,
		}
	default:
		return nil, &Failure{
			Kind:       KindClient,
			StatusCode: raw.StatusCode,
			Message:    message,
		}
	}
}

// errorMessage extracts a meaningful message from a Jira error body,
// preserving the remote wording verbatim. Jira reports errors as
// {"errorMessages": [...], "errors": {"field": "problem"}}.
func errorMessage(body []byte, statusCode int) string {
	var errResp struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		var parts []string
		parts = append(parts, errResp.ErrorMessages...)
		fields := make([]string, 0, len(errResp.Errors))
		for field := range errResp.Errors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			parts = append(parts, fmt.Sprintf("%s: %s", field, errResp.Errors[field]))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	if len(body) > 0 {
		return string(body)
	}
	return http.StatusText(statusCode)
}
