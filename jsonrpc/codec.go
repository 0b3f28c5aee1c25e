package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// Version is the only protocol version accepted.
	Version = "2.0"
	// VersionKey is the envelope member carrying the version.
	VersionKey = "jsonrpc"
	// AltVersionKey is accepted in place of VersionKey. A response uses the
	// key its request used.
	AltVersionKey = "protocol_version"
)

// Request is one decoded request envelope.
type Request struct {
	Method string
	// Params is the raw params member: an object, an array, or nil.
	Params json.RawMessage
	// ID is the raw id member, nil when absent. A request without an id is a
	// notification; "id": null is an ordinary request.
	ID json.RawMessage

	versionKey string
}

// Notification reports whether no response may be sent for r.
func (r *Request) Notification() bool { return r.ID == nil }

// Response is one response envelope. Exactly one of Result and Error is
// emitted.
type Response struct {
	ID     json.RawMessage
	Result any
	Error  *Error

	versionKey string
}

var nullID = json.RawMessage("null")

// MarshalJSON writes the version member first, then result or error, then id.
func (r *Response) MarshalJSON() ([]byte, error) {
	key := r.versionKey
	if key == "" {
		key = VersionKey
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeMember(&buf, key, json.RawMessage(`"`+Version+`"`))
	buf.WriteByte(',')
	if r.Error != nil {
		b, err := json.Marshal(r.Error)
		if err != nil {
			return nil, err
		}
		writeMember(&buf, "error", b)
	} else {
		b, err := json.Marshal(r.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		writeMember(&buf, "result", b)
	}
	buf.WriteByte(',')
	id := r.ID
	if id == nil {
		id = nullID
	}
	writeMember(&buf, "id", id)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, raw []byte) {
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(raw)
}

// Reply is what goes back for one payload: a single response, an ordered
// batch, or nothing when every request was a notification.
type Reply struct {
	Batch     bool
	Responses []*Response
}

// Empty reports whether there is nothing to send.
func (r Reply) Empty() bool { return len(r.Responses) == 0 }

func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Batch {
		return json.Marshal(r.Responses)
	}
	if len(r.Responses) == 0 {
		return []byte("null"), nil
	}
	return r.Responses[0].MarshalJSON()
}

// Decode classifies a payload. An object is a single request and an array is
// a batch of items; anything else is a parse error. An empty array is an
// invalid request. Items are not validated here.
func Decode(body []byte) (items []json.RawMessage, batch bool, rpcErr *Error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, false, StandardError(CodeParseError)
	}
	switch body[0] {
	case '{':
		return []json.RawMessage{body}, false, nil
	case '[':
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, false, StandardError(CodeParseError).WithDetail(err.Error())
		}
		if len(items) == 0 {
			return nil, false, StandardError(CodeInvalidRequest).WithDetail("empty batch")
		}
		return items, true, nil
	}
	return nil, false, StandardError(CodeParseError).WithDetail("payload must be an object or an array")
}

// ParseRequest validates the envelope of one item. On failure the returned
// request still carries whatever id and version key could be read, so that
// the error response can be correlated.
func ParseRequest(item json.RawMessage) (*Request, *Error) {
	req := &Request{versionKey: VersionKey}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(item, &members); err != nil || members == nil {
		req.ID = nullID
		return req, StandardError(CodeInvalidRequest).WithDetail("request must be an object")
	}

	if id, ok := members["id"]; ok {
		req.ID = id
		if !validID(id) {
			req.ID = nullID
			return req, StandardError(CodeInvalidRequest).WithDetail("id must be a string, a number or null")
		}
	}

	version, ok := members[VersionKey]
	if !ok {
		if version, ok = members[AltVersionKey]; ok {
			req.versionKey = AltVersionKey
		}
	}
	invalid := func(detail string) (*Request, *Error) {
		// Malformed requests are answered even without an id.
		if req.ID == nil {
			req.ID = nullID
		}
		return req, StandardError(CodeInvalidRequest).WithDetail(detail)
	}
	if !ok {
		return invalid("missing " + VersionKey + " member")
	}
	var v string
	if err := json.Unmarshal(version, &v); err != nil || v != Version {
		return invalid(fmt.Sprintf("%s must be %q", req.versionKey, Version))
	}

	raw, ok := members["method"]
	if !ok {
		return invalid("missing method")
	}
	if err := json.Unmarshal(raw, &req.Method); err != nil || req.Method == "" {
		return invalid("method must be a non-empty string")
	}

	if params, ok := members["params"]; ok && !bytes.Equal(bytes.TrimSpace(params), nullID) {
		p := bytes.TrimSpace(params)
		if len(p) == 0 || (p[0] != '{' && p[0] != '[') {
			return invalid("params must be an object or an array")
		}
		req.Params = p
	}
	return req, nil
}

func validID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	if len(id) == 0 {
		return false
	}
	switch c := id[0]; {
	case c == '"', c == 'n', c == '-', c >= '0' && c <= '9':
		return true
	}
	return false
}

// errorResponse answers req with e.
func errorResponse(req *Request, e *Error) *Response {
	return &Response{ID: req.ID, Error: e, versionKey: req.versionKey}
}
