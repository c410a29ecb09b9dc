package core

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// Envelope status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RelayRequest is a single client call to forward to the backend
type RelayRequest struct {
	// Method is http.MethodGet or http.MethodPost
	Method string
	// Action is the backend action name
	Action string
	// Params holds the query parameters for GET calls (action included)
	Params url.Values
	// Body is the raw JSON body for POST calls
	Body []byte
}

// NewGetRequest builds a GET relay request for an action and its parameters.
// The action is written into the parameters so the backend sees it in the query string.
func NewGetRequest(action string, params url.Values) *RelayRequest {
	p := url.Values{}
	for k, vs := range params {
		p[k] = append([]string(nil), vs...)
	}
	if action != "" {
		p.Set("action", action)
	}
	return &RelayRequest{Method: http.MethodGet, Action: action, Params: p}
}

// NewPostRequest builds a POST relay request from a raw JSON body.
// The action is read from the body's "action" field.
func NewPostRequest(body []byte) *RelayRequest {
	return &RelayRequest{
		Method: http.MethodPost,
		Action: gjson.GetBytes(body, "action").String(),
		Body:   body,
	}
}

// Size returns the number of payload bytes the request will put on the wire
func (r *RelayRequest) Size() int64 {
	if r.Method == http.MethodPost {
		return int64(len(r.Body))
	}
	return int64(len(r.Params.Encode()))
}

// RelayResponse is the normalized backend answer
type RelayResponse struct {
	// Body is always a JSON document; non-JSON backend text is wrapped in an error envelope
	Body json.RawMessage
	// Redirected is true when the answer came from the second hop
	Redirected bool
	// Malformed is true when Body is a wrapped non-JSON backend reply
	Malformed bool
}

// NewResponse normalizes a raw backend body.
// Valid JSON is kept verbatim; anything else becomes {status:"error", message:<raw>}.
func NewResponse(raw []byte, redirected bool) *RelayResponse {
	if gjson.ValidBytes(raw) {
		return &RelayResponse{Body: json.RawMessage(raw), Redirected: redirected}
	}
	return &RelayResponse{
		Body:       ErrorEnvelope(string(raw)),
		Redirected: redirected,
		Malformed:  true,
	}
}

// Status returns the envelope status field
func (r *RelayResponse) Status() string {
	return gjson.GetBytes(r.Body, "status").String()
}

// OK reports whether the envelope signals success
func (r *RelayResponse) OK() bool {
	return r.Status() == StatusSuccess
}

// Message returns the envelope message field
func (r *RelayResponse) Message() string {
	return gjson.GetBytes(r.Body, "message").String()
}

// Get returns a field of the envelope by gjson path
func (r *RelayResponse) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// Err returns the failure described by the envelope, or nil on success
func (r *RelayResponse) Err() error {
	switch {
	case r.Malformed:
		return NewMalformedResponseError(r.Message())
	case !r.OK():
		return NewBackendError(r.Message())
	}
	return nil
}

// ErrorEnvelope builds {status:"error", message:<message>}
func ErrorEnvelope(message string) json.RawMessage {
	b, err := json.Marshal(struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}{StatusError, message})
	if err != nil {
		return json.RawMessage(`{"status":"error","message":"internal error"}`)
	}
	return b
}
