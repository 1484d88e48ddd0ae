package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tokligence/tokligence-relay/internal/chat"
	"github.com/tokligence/tokligence-relay/internal/config"
	"github.com/tokligence/tokligence-relay/internal/openai"
	"github.com/tokligence/tokligence-relay/internal/requester"
)

type providerFlags struct {
	provider string
	baseURL  string
	model    string
	apiKey   string
}

func (f *providerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.provider, "provider", "p", "", "Provider name (default: saved setting)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Override the provider base URL")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Override the provider model")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key (default: saved setting)")
}

// assistant resolves the provider and key from flags, then saved settings.
func (f *providerFlags) assistant(cmd *cobra.Command, s *session) (*chat.Assistant, error) {
	catalog, err := chat.LoadCatalog(s.cfg.ProvidersFile)
	if err != nil {
		return nil, err
	}
	saved, err := s.settings.Settings(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	name := firstNonEmpty(f.provider, saved.SelectedProvider)
	if name == "" {
		return nil, errors.New("no provider selected; pass --provider or run `relay settings set --provider NAME`")
	}
	p, err := catalog.Resolve(name, f.baseURL, f.model)
	if err != nil {
		return nil, err
	}
	key := firstNonEmpty(f.apiKey, saved.APIKey)
	return chat.NewAssistant(s.client, p, key, s.logger), nil
}

func newSummarizeCmd(opts *globalOptions) *cobra.Command {
	pf := &providerFlags{}
	var noStream bool
	cmd := &cobra.Command{
		Use:   "summarize [FILE]",
		Short: "Summarize a video transcript (FILE or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			a, err := pf.assistant(cmd, s)
			if err != nil {
				return err
			}
			if noStream {
				answer, err := a.Complete(cmd.Context(), chat.SummaryMessages(text))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), answer)
				return nil
			}
			ts, err := a.Summarize(cmd.Context(), text)
			if err != nil {
				return err
			}
			return renderAnswer(cmd, ts)
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the whole answer instead of streaming")
	return cmd
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	pf := &providerFlags{}
	var summary, summaryFile, historyFile string
	var noStream bool
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask a follow-up question about a summarized video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if summaryFile != "" {
				raw, err := os.ReadFile(summaryFile)
				if err != nil {
					return fmt.Errorf("read summary: %w", err)
				}
				summary = string(raw)
			}
			var history []openai.ChatMessage
			if historyFile != "" {
				raw, err := os.ReadFile(historyFile)
				if err != nil {
					return fmt.Errorf("read history: %w", err)
				}
				if err := json.Unmarshal(raw, &history); err != nil {
					return fmt.Errorf("parse history: %w", err)
				}
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			a, err := pf.assistant(cmd, s)
			if err != nil {
				return err
			}
			if noStream {
				answer, err := a.Complete(cmd.Context(), chat.QuestionMessages(args[0], summary, history))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), answer)
				return nil
			}
			ts, err := a.Ask(cmd.Context(), args[0], summary, history)
			if err != nil {
				return err
			}
			return renderAnswer(cmd, ts)
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&summary, "summary", "", "Summary text used as context")
	cmd.Flags().StringVar(&summaryFile, "summary-file", "", "Read the summary from a file")
	cmd.Flags().StringVar(&historyFile, "history-file", "", "JSON array of prior {role, content} messages")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the whole answer instead of streaming")
	return cmd
}

// renderAnswer streams tokens to stdout. A failure before any token prints
// only the error; a failure after some tokens keeps them and marks the cut.
func renderAnswer(cmd *cobra.Command, ts *requester.TokenStream) error {
	out := cmd.OutOrStdout()
	tr := &chat.Transcript{OnToken: func(tok string) { fmt.Fprint(out, tok) }}
	err := tr.Consume(cmd.Context(), ts)
	switch tr.Outcome() {
	case chat.OutcomeComplete:
		fmt.Fprintln(out)
		return nil
	case chat.OutcomeTruncated:
		fmt.Fprintf(out, "\n\n[response interrupted: %v]\n", tr.Err())
	default:
		fmt.Fprintln(cmd.ErrOrStderr(), tr.Render())
	}
	return &reportedError{err: err}
}

func newModelsCmd(opts *globalOptions) *cobra.Command {
	pf := &providerFlags{}
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models a provider offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			a, err := pf.assistant(cmd, s)
			if err != nil {
				return err
			}
			models, err := a.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

func newProvidersCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	var file string
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the provider catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = providersFileFromConfig(opts)
			}
			catalog, err := chat.LoadCatalog(file)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(catalog.Providers())
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBASE URL\tMODEL\tLOCAL")
			for _, p := range catalog.Providers() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", p.Name, dash(p.BaseURL), dash(p.Model), p.IsLocal)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&file, "file", "", "Providers YAML (default: providers_file from config)")
	return cmd
}

// providersFileFromConfig reads providers_file without opening a session;
// the catalog is usable even when config is missing.
func providersFileFromConfig(opts *globalOptions) string {
	cfg, err := config.LoadRelayConfig(opts.root)
	if err != nil {
		return ""
	}
	return cfg.ProvidersFile
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	var raw []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", errors.New("input is empty")
	}
	return text, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
