// Command sheethubctl is a small operator client for a running sheethub
// HTTP endpoint.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

const usage = `usage: sheethubctl [flags] <command> [args]

commands:
  init                 send initialize and print server info
  tools                list the available tools
  call <tool> [json]   call a tool with a JSON object of arguments

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sheethubctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", envOrDefault("SHEETHUB_URL", "http://127.0.0.1:8080/mcp"), "sheethub JSON-RPC endpoint")
	timeout := fs.Duration("timeout", 60*time.Second, "per-attempt request timeout")
	verbose := fs.Bool("v", false, "log request attempts to stderr")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	client := newRPCClient(*url, *timeout, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*(*timeout))
	defer cancel()

	var (
		method string
		params any
	)
	switch cmd := fs.Arg(0); cmd {
	case "init":
		method = "initialize"
		params = map[string]any{}
	case "tools":
		method = "tools/list"
	case "call":
		if fs.NArg() < 2 {
			fmt.Fprintln(stderr, "call requires a tool name")
			return 2
		}
		p := toolCallParams{Name: fs.Arg(1)}
		if fs.NArg() > 2 {
			if err := json.Unmarshal([]byte(fs.Arg(2)), &p.Arguments); err != nil {
				fmt.Fprintf(stderr, "arguments must be a JSON object: %v\n", err)
				return 2
			}
		}
		method, params = "tools/call", p
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	reply, err := client.call(ctx, method, params)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if reply.Error != nil {
		fmt.Fprintf(stderr, "rpc error %d: %s\n", reply.Error.Code, reply.Error.Message)
		return 1
	}

	if method == "tools/call" {
		return printToolResult(reply.Result, stdout, stderr)
	}
	printJSON(stdout, reply.Result)
	return 0
}

// printToolResult prints the text block of a tool result. A tool-level
// failure goes to stderr and exits 3.
func printToolResult(raw json.RawMessage, stdout, stderr io.Writer) int {
	var tr struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(raw, &tr); err != nil || len(tr.Content) == 0 {
		fmt.Fprintf(stderr, "unexpected tool result: %s\n", raw)
		return 1
	}
	out := stdout
	if tr.IsError {
		out = stderr
	}
	printJSON(out, json.RawMessage(tr.Content[0].Text))
	if tr.IsError {
		return 3
	}
	return 0
}

func printJSON(w io.Writer, raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		w.Write(raw)
		fmt.Fprintln(w)
		return
	}
	buf.WriteByte('\n')
	w.Write(buf.Bytes())
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
