// Package jsonrpc provides a JSON-RPC 2.0 server integrated with the endpoint
// processor chain.
//
// This package implements the JSON-RPC 2.0 specification
// (https://www.jsonrpc.org/specification) and JSON-RPC over HTTP
// (https://www.simple-is-better.org/json-rpc/transport_http.html).
//
// # Basic Usage
//
// Build a registry, wrap it in a Dispatcher and serve via HTTP:
//
//	reg := jsonrpc.NewRegistry()
//	reg.Register("math", &MathMethods{})
//	d := jsonrpc.NewDispatcher(reg)
//	http.Handle("/rpc", endpoint.Handler(d.Endpoint))
//
// Methods are defined on a struct with a params type:
//
//	type MathMethods struct{}
//
//	type AddParams struct {
//	    A int `json:"a" rpc:"required"`
//	    B int `json:"b" default:"1"`
//	}
//
//	func (m *MathMethods) Add(ctx context.Context, params AddParams) (int, error) {
//	    return params.A + params.B, nil
//	}
//
// # Method Signatures
//
// Methods must have this signature:
//
//	func(ctx context.Context, params <StructType>) (result, error)
//
// The params struct doubles as the method's schema. Use an empty struct for
// methods with no parameters. Both positional (array) and named (object)
// params are accepted; positional params fill fields in declaration order.
//
// A blank field overrides the registered name:
//
//	type GetUsedRangeParams struct {
//	    _    struct{} `jsonrpc:"get_used_range"`
//	    Book string   `json:"book" rpc:"required"`
//	}
//
// # Envelopes
//
// The version member is "jsonrpc"; "protocol_version" is accepted in its
// place and echoed back. A request without an "id" member is a notification:
// it runs, and its response is dropped. "id": null is an ordinary request.
//
// # Errors
//
// A handler may return a *Error to choose the code directly. Other errors go
// through the Translator installed with WithTranslator; anything it does not
// recognise becomes Internal error with the text in data.detail. Panics are
// recovered into Internal error carrying data.traceback.
//
// # Batches
//
// Batch items run concurrently (see WithBatchConcurrency) and the responses
// keep the input order. Notifications are left out; a batch of notifications
// only is answered with HTTP 204.
package jsonrpc
