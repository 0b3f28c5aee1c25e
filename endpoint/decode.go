package endpoint

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// defaultFieldLimit bounds header and query values that carry no maxLength
// tag.
var defaultFieldLimit = 16 * 1024

// Unmarshal populates dst (a non-nil pointer to a struct) from the request.
//
// Supported struct tags:
//   - `query:"name[,json]"`: URL query parameter
//   - `header:"name[,json]"`: request header (canonicalized)
//   - `body:"[,json]"`: the whole request body
//   - `maxLength:"n"`: maximum byte length of the value; "" or "0" disables
//     the check
//
// A string or []byte body field receives the raw bytes, whatever the
// Content-Type. Any other body field is JSON-decoded and requires a JSON
// media type. Fields without a source tag and unexported fields are left
// alone. Oversized values yield 400, or 413 for the body, which is also the
// status when an http.MaxBytesReader installed upstream trips.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct"))
	}

	t := root.Type()
	bodySeen := false
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		tag, ok, err := fieldSource(sf)
		if err != nil {
			return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}
		if !ok {
			continue
		}
		if tag.Source == "body" {
			if bodySeen {
				return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: multiple body fields"))
			}
			bodySeen = true
		}
		if err := decodeField(r, root.Field(i), tag, sf.Name); err != nil {
			return err
		}
	}
	return nil
}

type sourceTag struct {
	Source    string
	Name      string
	JSON      bool
	MaxLength int
}

// fieldSource reads the first source tag present on sf.
func fieldSource(sf reflect.StructField) (sourceTag, bool, error) {
	for _, key := range []string{"query", "header", "body"} {
		val, has := sf.Tag.Lookup(key)
		if !has {
			continue
		}
		name, flags, _ := strings.Cut(val, ",")
		tag := sourceTag{Source: key, Name: strings.TrimSpace(name)}
		if tag.Name == "-" {
			return sourceTag{}, false, nil
		}
		if tag.Name == "" {
			tag.Name = strings.ToLower(sf.Name)
		}
		switch strings.TrimSpace(flags) {
		case "":
		case "json":
			tag.JSON = true
		default:
			return sourceTag{}, false, fmt.Errorf("unknown %s tag flag %q", key, flags)
		}
		limit, err := fieldLengthLimit(sf, key)
		if err != nil {
			return sourceTag{}, false, err
		}
		tag.MaxLength = limit
		return tag, true, nil
	}
	return sourceTag{}, false, nil
}

func fieldLengthLimit(sf reflect.StructField, source string) (int, error) {
	val, has := sf.Tag.Lookup("maxLength")
	if !has {
		if source == "body" {
			return 0, nil
		}
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("maxLength: invalid value %q", val)
	}
	return n, nil
}

func decodeField(r *http.Request, field reflect.Value, tag sourceTag, fieldName string) error {
	var raw []byte
	switch tag.Source {
	case "query":
		if r.URL == nil {
			return nil
		}
		vs, ok := r.URL.Query()[tag.Name]
		if !ok || len(vs) == 0 {
			return nil
		}
		raw = []byte(vs[0])
	case "header":
		vs := r.Header[http.CanonicalHeaderKey(tag.Name)]
		if len(vs) == 0 {
			return nil
		}
		raw = []byte(vs[0])
	case "body":
		b, ok, err := readBody(r, field, &tag)
		if err != nil || !ok {
			return err
		}
		raw = b
	}

	if tag.MaxLength > 0 && len(raw) > tag.MaxLength {
		status := http.StatusBadRequest
		if tag.Source == "body" {
			status = http.StatusRequestEntityTooLarge
		}
		return Error(status, "", fmt.Errorf("endpoint: decode: %s %q -> %s: value exceeds max length %d", tag.Source, tag.Name, fieldName, tag.MaxLength))
	}
	if err := setField(field, raw, tag.JSON); err != nil {
		return Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: %w", tag.Source, tag.Name, fieldName, err))
	}
	return nil
}

// readBody reads the request body for field. Non-text fields switch tag to
// JSON decoding.
func readBody(r *http.Request, field reflect.Value, tag *sourceTag) ([]byte, bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false, nil
	}
	ft := field.Type()
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	isText := ft.Kind() == reflect.String || (ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Uint8)
	if !isText {
		tag.JSON = true
	}
	if tag.JSON && !bodyIsJSON(r) {
		return nil, false, Error(http.StatusUnsupportedMediaType, "", fmt.Errorf("endpoint: decode: body: unsupported media type %q", r.Header.Get("Content-Type")))
	}

	body := io.Reader(r.Body)
	if tag.MaxLength > 0 {
		body = io.LimitReader(r.Body, int64(tag.MaxLength)+1)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, false, Error(http.StatusRequestEntityTooLarge, "", fmt.Errorf("endpoint: decode: body exceeds %d bytes", mbe.Limit))
		}
		return nil, false, Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
	}
	return b, true, nil
}

func bodyIsJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func setField(v reflect.Value, b []byte, asJSON bool) error {
	if asJSON {
		return json.Unmarshal(b, v.Addr().Interface())
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText(b)
	}

	s := string(b)
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported type %s", v.Type())
		}
		v.SetBytes(b)
	case reflect.Bool:
		bb, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(bb)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}
