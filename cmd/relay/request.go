package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tokligence/tokligence-relay/internal/relay"
	"github.com/tokligence/tokligence-relay/internal/requester"
)

type requestFlags struct {
	url     string
	method  string
	headers []string
	data    string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "Absolute http(s) target URL")
	cmd.Flags().StringVarP(&f.method, "request", "X", "", "HTTP method (default GET, or POST when a body is given)")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, `Header "Name: value" (repeatable)`)
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "Request body; @file reads a file, @- reads stdin")
	_ = cmd.MarkFlagRequired("url")
}

func (f *requestFlags) build(stdin io.Reader) (relay.OutboundRequest, error) {
	req := relay.OutboundRequest{TargetURL: f.url, Method: f.method}
	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return req, fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}
		if req.Headers == nil {
			req.Headers = map[string]string{}
		}
		req.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	body, err := readData(f.data, stdin)
	if err != nil {
		return req, err
	}
	req.Body = body
	if req.Method == "" && body != "" {
		req.Method = "POST"
	}
	return req, req.Validate()
}

func readData(data string, stdin io.Reader) (string, error) {
	path, ok := strings.CutPrefix(data, "@")
	if !ok {
		return data, nil
	}
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(raw), nil
}

func newFetchCmd(opts *globalOptions) *cobra.Command {
	flags := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Relay one request and print the result",
		Long: `Relay one request. A body with "stream": true is streamed and its tokens are
printed as they arrive; anything else returns one JSON value.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.build(cmd.InOrStdin())
			if err != nil {
				return err
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.client.Do(cmd.Context(), req)
			if err != nil {
				return err
			}
			if res.Streaming() {
				return printTokens(cmd, res.Tokens)
			}
			return printJSON(cmd.OutOrStdout(), res.Data)
		},
	}
	flags.register(cmd)
	return cmd
}

func newStreamCmd(opts *globalOptions) *cobra.Command {
	flags := &requestFlags{}
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Relay a streaming request and print its tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.build(cmd.InOrStdin())
			if err != nil {
				return err
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			ts, err := s.client.Stream(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printTokens(cmd, ts)
		},
	}
	flags.register(cmd)
	return cmd
}

func printTokens(cmd *cobra.Command, ts *requester.TokenStream) error {
	out := cmd.OutOrStdout()
	n := 0
	for tok, err := range ts.All(cmd.Context()) {
		if err != nil {
			if n > 0 {
				fmt.Fprintln(out)
			}
			return err
		}
		n++
		fmt.Fprint(out, tok)
	}
	fmt.Fprintln(out)
	return nil
}

func printJSON(w io.Writer, data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = w.Write(append(data, '\n'))
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
