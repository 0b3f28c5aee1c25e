package endpoint

import "net/http"

// NoContentRenderer writes a status code with no body, 204 unless Status is
// set. It answers JSON-RPC payloads made only of notifications.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := ncr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}
