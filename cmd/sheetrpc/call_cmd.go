package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mnehpets/sheetrpc/jsonrpc"
	"github.com/mnehpets/sheetrpc/middleware"
)

// errRPCFailed reports a reply carrying a JSON-RPC error. The reply itself
// has already been printed.
var errRPCFailed = errors.New("rpc call returned an error")

type callOptions struct {
	params  string
	id      string
	notify  bool
	batch   string
	cbor    bool
	timeout time.Duration
	cid     string
}

func newCallCommand(v *viper.Viper) *cobra.Command {
	var opts callOptions
	cmd := &cobra.Command{
		Use:   "call [method]",
		Short: "Send one JSON-RPC request or batch to a running server",
		Example: `
  sheetrpc call app.create
  sheetrpc call range.set_value --params '{"book":"Book1","sheet":"Sheet1","address":"A1","value":42}'
  sheetrpc call app.list --notify
  sheetrpc call --batch requests.json
  echo '[{"jsonrpc":"2.0","method":"app.list","id":1}]' | sheetrpc call --batch -
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var method string
			if len(args) == 1 {
				method = args[0]
			}
			payload, err := buildPayload(method, opts, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return sendCall(cmd, v.GetString("url"), payload, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.params, "params", "p", "", "params as a JSON object or array")
	flags.StringVar(&opts.id, "id", "1", "request id (numbers are sent as numbers)")
	flags.BoolVar(&opts.notify, "notify", false, "send a notification (no id, no response)")
	flags.StringVar(&opts.batch, "batch", "", "send the JSON payload in this file verbatim (- reads stdin)")
	flags.BoolVar(&opts.cbor, "cbor", false, "encode the request and response as CBOR")
	flags.DurationVar(&opts.timeout, "timeout", time.Minute, "HTTP request timeout")
	flags.StringVar(&opts.cid, "correlation-id", "", "correlation id sent in "+middleware.CorrelationHeader)
	return cmd
}

// buildPayload returns the JSON body for a single request, or the batch file
// contents when --batch is set.
func buildPayload(method string, opts callOptions, stdin io.Reader) ([]byte, error) {
	if opts.batch != "" {
		if method != "" {
			return nil, errors.New("call: pass either a method or --batch, not both")
		}
		var (
			data []byte
			err  error
		)
		if opts.batch == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(opts.batch)
		}
		if err != nil {
			return nil, fmt.Errorf("call: read batch: %w", err)
		}
		return data, nil
	}
	if strings.TrimSpace(method) == "" {
		return nil, errors.New("call: a method name is required")
	}

	req := map[string]any{jsonrpc.VersionKey: jsonrpc.Version, "method": method}
	if p := strings.TrimSpace(opts.params); p != "" {
		if !json.Valid([]byte(p)) {
			return nil, fmt.Errorf("call: --params is not valid JSON")
		}
		if p[0] != '{' && p[0] != '[' {
			return nil, fmt.Errorf("call: --params must be a JSON object or array")
		}
		req["params"] = json.RawMessage(p)
	}
	if !opts.notify {
		if n, err := strconv.ParseInt(opts.id, 10, 64); err == nil {
			req["id"] = n
		} else {
			req["id"] = opts.id
		}
	}
	return json.Marshal(req)
}

func sendCall(cmd *cobra.Command, url string, payload []byte, opts callOptions) error {
	contentType := jsonrpc.MediaTypeJSON
	if opts.cbor {
		var err error
		if payload, err = jsonrpc.JSONToCBOR(payload); err != nil {
			return fmt.Errorf("call: encode cbor: %w", err)
		}
		contentType = jsonrpc.MediaTypeCBOR
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("call: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	if opts.cid != "" {
		req.Header.Set(middleware.CorrelationHeader, opts.cid)
	}

	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("call: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("call: server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if resp.Header.Get("Content-Type") == jsonrpc.MediaTypeCBOR {
		if body, err = jsonrpc.CBORToJSON(body); err != nil {
			return fmt.Errorf("call: decode cbor: %w", err)
		}
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return fmt.Errorf("call: malformed response: %w", err)
	}
	out.WriteByte('\n')
	if _, err := cmd.OutOrStdout().Write(out.Bytes()); err != nil {
		return err
	}
	if replyHasError(body) {
		return errRPCFailed
	}
	return nil
}

// replyHasError reports whether a single response, or any batch item,
// carries an error member.
func replyHasError(body []byte) bool {
	type item struct {
		Error json.RawMessage `json:"error"`
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var items []item
		if json.Unmarshal(body, &items) != nil {
			return false
		}
		for _, it := range items {
			if len(it.Error) > 0 {
				return true
			}
		}
		return false
	}
	var it item
	return json.Unmarshal(body, &it) == nil && len(it.Error) > 0
}
