package jsonrpc

import (
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var standardMessages = map[int]string{
	CodeParseError:     "Parse error",
	CodeInvalidRequest: "Invalid Request",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid params",
	CodeInternalError:  "Internal error",
}

// Error is a JSON-RPC error object. Message stays short and stable; detail
// goes in Data.
type Error struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if detail, ok := e.Data["detail"].(string); ok && detail != "" {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.Code, detail)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// NewError returns an Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// StandardError returns an Error for one of the standard codes, using the
// protocol's message text.
func StandardError(code int) *Error {
	msg, ok := standardMessages[code]
	if !ok {
		msg = standardMessages[CodeInternalError]
	}
	return &Error{Code: code, Message: msg}
}

// WithDetail returns a copy of e carrying detail in data.detail.
func (e *Error) WithDetail(detail string) *Error {
	return e.WithData("detail", detail)
}

// WithData returns a copy of e with key set in Data.
func (e *Error) WithData(key string, value any) *Error {
	out := *e
	out.Data = make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		out.Data[k] = v
	}
	out.Data[key] = value
	return &out
}

// InvalidParams reports a schema violation.
func InvalidParams(format string, args ...any) *Error {
	return StandardError(CodeInvalidParams).WithDetail(fmt.Sprintf(format, args...))
}

// Translator maps a handler failure to an error object. It returns nil for
// failures it does not recognise; those become Internal error.
type Translator func(err error) *Error

// toError converts err into an error object: an *Error anywhere in the chain
// is kept as is, then translate is consulted, then Internal error.
func toError(err error, translate Translator) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if translate != nil {
		if out := translate(err); out != nil {
			return out
		}
	}
	return StandardError(CodeInternalError).WithDetail(err.Error())
}
