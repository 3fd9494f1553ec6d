package dispatch

import "net/http"

// Envelope is the success half of the dispatcher's result union. The failure
// half is *Failure, returned as the error value.
type Envelope struct {
	StatusCode  int
	Body        any    // decoded JSON body; nil when Empty or Binary
	Raw         []byte // raw response bytes (JSON or binary)
	ContentType string
	Binary      bool // opaque byte payload (attachments, avatars)
	Empty       bool // 2xx with no payload, e.g. 204
}

// Field looks up a top-level field of a decoded JSON object body.
func (e *Envelope) Field(name string) (any, bool) {
	obj, ok := e.Body.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[name]
	return v, ok
}

// RawResponse is what the executor hands to the normalizer: status, headers,
// and the fully read body. Transport-level failures never produce one.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
