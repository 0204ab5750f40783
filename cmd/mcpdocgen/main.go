package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sheethub/sheethub/internal/tools"
)

func main() {
	render(os.Stdout, tools.NewRegistry())
}

func render(w io.Writer, registry *tools.Registry) {
	fmt.Fprintln(w, "# MCP Tools (Generated)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "This file is generated from `internal/tools/handlers.go` by `cmd/mcpdocgen`.")
	fmt.Fprintln(w)

	for _, t := range registry.Tools() {
		fmt.Fprintf(w, "- `%s`", t.Name)
		if t.ReadOnly {
			fmt.Fprint(w, " (read-only)")
		}
		fmt.Fprintln(w)
		if t.Description != "" {
			fmt.Fprintf(w, "  - Description: %s\n", t.Description)
		}

		if len(t.Params) > 0 {
			fmt.Fprintln(w, "  - Input:")
			for _, p := range t.Params {
				req := "optional"
				if p.Required {
					req = "required"
				}
				typ := string(p.Type)
				if p.Items != nil {
					typ = fmt.Sprintf("%s of %s", p.Type, p.Items.Type)
				}
				fmt.Fprintf(w, "    - `%s` %s (%s)", p.Name, typ, req)
				if p.Description != "" {
					fmt.Fprintf(w, ": %s", p.Description)
				}
				fmt.Fprintln(w)
			}
		}
		fmt.Fprintln(w)
	}
}
