package endpoint

import (
	"encoding/json"
	"net/http"
)

// JSONRenderer serializes Value as JSON with Content-Type
// "application/json". HTML escaping is off and the encoder appends a
// trailing newline. An encoding error is returned after the status line has
// been written.
type JSONRenderer struct {
	Status int
	Value  any
	// Indent, when set, pretty-prints with this indent string.
	Indent string
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if jr.Indent != "" {
		enc.SetIndent("", jr.Indent)
	}
	return enc.Encode(jr.Value)
}
