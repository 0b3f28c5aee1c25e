package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Param describes one field of a method's params struct.
type Param struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Required bool            `json:"required"`
	Default  json.RawMessage `json:"default,omitempty"`
	Alias    string          `json:"alias,omitempty"`

	field int
}

// Method is a registered RPC method. It is immutable once registered.
type Method struct {
	Name   string  `json:"name"`
	Params []Param `json:"params"`

	receiver  reflect.Value
	fn        reflect.Value
	paramType reflect.Type
}

// Validator is implemented by params structs that check cross-field
// constraints after decoding. A non-nil error becomes Invalid params.
type Validator interface {
	Validate() error
}

// Typer is implemented by parameter types that report their own schema type
// name.
type Typer interface {
	RPCType() string
}

var (
	contextType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	typerType     = reflect.TypeOf((*Typer)(nil)).Elem()
	validatorType = reflect.TypeOf((*Validator)(nil)).Elem()
)

// Registry maps method names to methods. Build it once at startup; after the
// last Register call it is read-only and safe for concurrent use.
type Registry struct {
	methods map[string]*Method
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]*Method)}
}

// Register adds the methods of receiver under namespace ("app" + "List" gives
// "app.List"; an empty namespace uses the bare name).
//
// Only exported methods with the signature
//
//	func(ctx context.Context, params P) (R, error)
//
// where P is a struct are registered. A `_ struct{} jsonrpc:"name"` field in P
// overrides the method name. Field tags describe the schema:
//
//	json:"name"      wire name (the Go field name when absent)
//	rpc:"required"   the member must be present
//	default:"<json>" value decoded into the field when the member is absent
//	alias:"other"    alternative member name
//
// Register panics on a name collision or a malformed tag.
func (r *Registry) Register(namespace string, receiver any) {
	val := reflect.ValueOf(receiver)
	typ := val.Type()

	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}
		m := parseMethod(val, method)
		if m == nil {
			continue
		}
		if namespace != "" {
			m.Name = namespace + "." + m.Name
		}
		if _, exists := r.methods[m.Name]; exists {
			panic("jsonrpc: method name collision: " + m.Name)
		}
		r.methods[m.Name] = m
	}
}

// Lookup returns the method registered under name. Names are case-sensitive.
func (r *Registry) Lookup(name string) (*Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Methods lists every registered method sorted by name.
func (r *Registry) Methods() []*Method {
	out := make([]*Method, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// parseMethod extracts the method descriptor via reflection. It returns nil
// for methods without a valid signature.
func parseMethod(receiver reflect.Value, method reflect.Method) *Method {
	ft := method.Func.Type()
	if ft.NumIn() != 3 || ft.In(1) != contextType {
		return nil
	}
	if ft.NumOut() != 2 || ft.Out(1) != errorType {
		return nil
	}
	paramType := ft.In(2)
	if paramType.Kind() != reflect.Struct {
		return nil
	}

	m := &Method{
		Name:      method.Name,
		receiver:  receiver,
		fn:        method.Func,
		paramType: paramType,
		Params:    []Param{},
	}
	for i := 0; i < paramType.NumField(); i++ {
		field := paramType.Field(i)
		if field.Name == "_" {
			if tag := field.Tag.Get("jsonrpc"); tag != "" {
				m.Name = tag
			}
			continue
		}
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			name = strings.Split(tag, ",")[0]
			if name == "-" {
				continue
			}
			if name == "" {
				name = field.Name
			}
		}
		p := Param{
			Name:     name,
			Type:     typeName(field.Type),
			Required: field.Tag.Get("rpc") == "required",
			Alias:    field.Tag.Get("alias"),
			field:    i,
		}
		if def, ok := field.Tag.Lookup("default"); ok {
			if !json.Valid([]byte(def)) {
				panic(fmt.Sprintf("jsonrpc: %s.%s: default %q is not JSON", paramType.Name(), field.Name, def))
			}
			p.Default = json.RawMessage(def)
		}
		m.Params = append(m.Params, p)
	}
	return m
}

func typeName(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return typeName(t.Elem())
	}
	if t.Implements(typerType) {
		return reflect.Zero(t).Interface().(Typer).RPCType()
	}
	if reflect.PointerTo(t).Implements(typerType) {
		return reflect.New(t).Interface().(Typer).RPCType()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return "any"
}

// decode builds the params value from the raw params member: positional
// arrays map to fields in declaration order, objects map by name or alias.
func (m *Method) decode(raw json.RawMessage) (reflect.Value, *Error) {
	pv := reflect.New(m.paramType)
	elem := pv.Elem()

	present := make(map[int]json.RawMessage, len(m.Params))
	switch {
	case len(raw) == 0:
	case raw[0] == '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return reflect.Value{}, InvalidParams("%v", err)
		}
		if len(list) > len(m.Params) {
			return reflect.Value{}, InvalidParams("got %d positional params, want at most %d", len(list), len(m.Params))
		}
		for i, item := range list {
			present[i] = item
		}
	default:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return reflect.Value{}, InvalidParams("%v", err)
		}
		for i, p := range m.Params {
			if v, ok := obj[p.Name]; ok {
				present[i] = v
			} else if p.Alias != "" {
				if v, ok := obj[p.Alias]; ok {
					present[i] = v
				}
			}
		}
	}

	for i, p := range m.Params {
		v, ok := present[i]
		if ok && isNull(v) && m.paramType.Field(p.field).Type.Kind() != reflect.Interface {
			// null stands for an absent member unless the field can hold it
			ok = false
		}
		if !ok {
			if p.Required {
				return reflect.Value{}, InvalidParams("missing required parameter %q", p.Name)
			}
			if p.Default == nil {
				continue
			}
			v = p.Default
		}
		field := elem.Field(p.field)
		if err := json.Unmarshal(v, field.Addr().Interface()); err != nil {
			return reflect.Value{}, InvalidParams("parameter %q: %v", p.Name, err)
		}
	}

	if pv.Type().Implements(validatorType) {
		if err := pv.Interface().(Validator).Validate(); err != nil {
			return reflect.Value{}, InvalidParams("%v", err)
		}
	}
	return elem, nil
}

// call invokes the handler. Panics propagate to the caller.
func (m *Method) call(ctx context.Context, params reflect.Value) (any, error) {
	out := m.fn.Call([]reflect.Value{m.receiver, reflect.ValueOf(ctx), params})
	var err error
	if !out[1].IsNil() {
		err = out[1].Interface().(error)
	}
	return out[0].Interface(), err
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
