package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Media types served by the HTTP endpoint.
const (
	MediaTypeJSON = "application/json"
	MediaTypeCBOR = "application/cbor"
)

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// CBORToJSON transcodes a CBOR payload into the equivalent JSON document.
// Maps must have text keys.
func CBORToJSON(data []byte) ([]byte, error) {
	var v any
	if err := cborDecMode.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode cbor: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transcode cbor: %w", err)
	}
	return out, nil
}

// JSONToCBOR transcodes a JSON document into CBOR. Integral numbers become
// CBOR integers, all others floats.
func JSONToCBOR(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return cbor.Marshal(cborValue(v))
}

func cborValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = cborValue(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = cborValue(e)
		}
		return t
	}
	return v
}
