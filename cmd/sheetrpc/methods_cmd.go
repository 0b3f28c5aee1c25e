package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mnehpets/sheetrpc"
	"github.com/mnehpets/sheetrpc/jsonrpc"
)

func newMethodsCommand() *cobra.Command {
	var (
		namespace string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List the JSON-RPC methods and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := sheetrpc.NewServer(sheetrpc.Config{})
			if err != nil {
				return err
			}
			defer srv.Close()

			ns := strings.TrimSuffix(strings.TrimSpace(namespace), ".")
			var list []*jsonrpc.Method
			for _, m := range srv.Registry().Methods() {
				if ns == "" || strings.HasPrefix(m.Name, ns+".") {
					list = append(list, m)
				}
			}
			if len(list) == 0 {
				return fmt.Errorf("no methods in namespace %q", ns)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			return writeMethodTable(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "only list methods in this namespace (app, book, sheet, range, chart)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the schema as JSON")
	return cmd
}

func writeMethodTable(w io.Writer, list []*jsonrpc.Method) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tPARAMS")
	for _, m := range list {
		params := make([]string, 0, len(m.Params))
		for _, p := range m.Params {
			params = append(params, formatParam(p))
		}
		fmt.Fprintf(tw, "%s\t%s\n", m.Name, strings.Join(params, ", "))
	}
	return tw.Flush()
}

// formatParam renders name:type, with ? marking optional params and the
// default and alias appended when present.
func formatParam(p jsonrpc.Param) string {
	var b strings.Builder
	b.WriteString(p.Name)
	if !p.Required {
		b.WriteByte('?')
	}
	b.WriteString(": ")
	b.WriteString(p.Type)
	if len(p.Default) > 0 {
		b.WriteString(" = ")
		b.Write(p.Default)
	}
	if p.Alias != "" {
		b.WriteString(" (alias " + p.Alias + ")")
	}
	return b.String()
}
