package jsonrpc

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/mnehpets/sheetrpc/endpoint"
)

// rpcParams captures the raw request body. Parsing is deferred to the
// Dispatcher because JSON-RPC reports malformed bodies in-band.
type rpcParams struct {
	Body        []byte `body:"" maxLength:""`
	ContentType string `header:"Content-Type"`
}

// Endpoint serves JSON-RPC over HTTP. Pass it to endpoint.Handler:
//
//	http.Handle("/rpc", endpoint.Handler(d.Endpoint, processors...))
//
// Only POST is accepted. Bodies are JSON, or CBOR when the Content-Type is
// application/cbor; the response uses the request's encoding. Every JSON-RPC
// reply is sent with status 200, and a payload of notifications only gets 204
// with no body.
func (d *Dispatcher) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}

	mediaType, ok := negotiate(params.ContentType)
	if !ok {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json or application/cbor", nil)
	}

	body := params.Body
	if mediaType == MediaTypeCBOR {
		// Undecodable CBOR is answered in-band as a parse error.
		var err error
		if body, err = CBORToJSON(body); err != nil {
			body = nil
		}
	}

	reply := d.Handle(r.Context(), body)
	if reply.Empty() {
		return &endpoint.NoContentRenderer{}, nil
	}
	return &replyRenderer{reply: reply, mediaType: mediaType}, nil
}

func negotiate(contentType string) (string, bool) {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return MediaTypeJSON, true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	mt = strings.ToLower(mt)
	switch {
	case mt == MediaTypeCBOR:
		return MediaTypeCBOR, true
	case mt == MediaTypeJSON, strings.HasSuffix(mt, "+json"):
		return MediaTypeJSON, true
	}
	return "", false
}

// replyRenderer writes a Reply in the negotiated encoding.
type replyRenderer struct {
	reply     Reply
	mediaType string
}

func (rr *replyRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	body, err := json.Marshal(rr.reply)
	if err != nil {
		return err
	}
	if rr.mediaType == MediaTypeCBOR {
		if body, err = JSONToCBOR(body); err != nil {
			return err
		}
	}
	w.Header().Set("Content-Type", rr.mediaType)
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}
