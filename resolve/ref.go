package resolve

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Ref identifies a sheet or chart by name or by zero-based position. On the
// wire it is a JSON string or a non-negative integer.
type Ref struct {
	name  string
	index int
	isIdx bool
}

// Name returns a Ref matching by name.
func Name(name string) Ref { return Ref{name: name} }

// Index returns a Ref matching by zero-based position.
func Index(i int) Ref { return Ref{index: i, isIdx: true} }

func (r Ref) IsIndex() bool { return r.isIdx }
func (r Ref) Index() int    { return r.index }
func (r Ref) Name() string  { return r.name }

// IsZero reports whether r was never set.
func (r Ref) IsZero() bool { return !r.isIdx && r.name == "" }

func (r Ref) String() string {
	if r.isIdx {
		return "#" + strconv.Itoa(r.index)
	}
	return strconv.Quote(r.name)
}

// RPCType names the wire type in method schemas.
func (Ref) RPCType() string { return "string|integer" }

func (r Ref) MarshalJSON() ([]byte, error) {
	if r.isIdx {
		return json.Marshal(r.index)
	}
	return json.Marshal(r.name)
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return errors.New("name must not be empty")
		}
		*r = Name(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("want a name or a position, got %s", data)
	}
	i, err := strconv.Atoi(n.String())
	if err != nil || i < 0 {
		return fmt.Errorf("position must be a non-negative integer, got %s", n)
	}
	*r = Index(i)
	return nil
}
