package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokligence/tokligence-relay/internal/bootstrap"
	"github.com/tokligence/tokligence-relay/internal/chat"
	"github.com/tokligence/tokligence-relay/internal/ledger"
	"github.com/tokligence/tokligence-relay/internal/settings"
	"github.com/tokligence/tokligence-relay/internal/version"
)

func newInitCmd(opts *globalOptions) *cobra.Command {
	initOpts := bootstrap.InitOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold config/setting.ini and config/<env>/relay.ini",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initOpts.Root = opts.root
			if err := bootstrap.Init(initOpts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config for environment %q under %s/config\n", envOrDefault(initOpts.Environment), opts.root)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&initOpts.Environment, "env", "", "Environment name (default dev)")
	f.StringVar(&initOpts.ListenAddr, "listen", "", "relayd listen address")
	f.StringVar(&initOpts.Endpoint, "relay-endpoint", "", "relayd URL used by the CLI")
	f.StringVar(&initOpts.LedgerPath, "ledger-path", "", "SQLite ledger path")
	f.StringVar(&initOpts.LedgerDSN, "ledger-dsn", "", "PostgreSQL ledger DSN")
	f.StringVar(&initOpts.SettingsPath, "settings-path", "", "SQLite settings path")
	f.BoolVar(&initOpts.Force, "force", false, "Overwrite existing files")
	return cmd
}

func envOrDefault(env string) string {
	if env == "" {
		return "dev"
	}
	return env
}

func newSettingsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved API key and provider",
	}

	var reveal bool
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the saved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			current, err := s.settings.Settings(cmd.Context())
			if err != nil {
				return err
			}
			if !reveal {
				current = current.Redacted()
			}
			return printSettings(cmd, current)
		},
	}
	get.Flags().BoolVar(&reveal, "reveal", false, "Print the API key unmasked")

	var apiKey, provider string
	var clearKey bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the saved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if apiKey == "" && provider == "" && !clearKey {
				return errors.New("nothing to set; pass --api-key, --provider or --clear-key")
			}
			if provider != "" {
				catalog, err := chat.LoadCatalog(providersFileFromConfig(opts))
				if err != nil {
					return err
				}
				p, ok := catalog.Lookup(provider)
				if !ok {
					return fmt.Errorf("%w: %q (see `relay providers`)", chat.ErrUnknownProvider, provider)
				}
				provider = p.Name
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			current, err := s.settings.Settings(cmd.Context())
			if err != nil {
				return err
			}
			if provider != "" {
				current.SelectedProvider = provider
			}
			if apiKey != "" {
				current.APIKey = apiKey
			}
			if clearKey {
				current.APIKey = ""
			}
			saved, err := s.settings.SaveSettings(cmd.Context(), current)
			if err != nil {
				return err
			}
			return printSettings(cmd, saved)
		},
	}
	set.Flags().StringVar(&apiKey, "api-key", "", "API key for the selected provider")
	set.Flags().StringVar(&provider, "provider", "", "Provider name from the catalog")
	set.Flags().BoolVar(&clearKey, "clear-key", false, "Remove the saved API key")

	cmd.AddCommand(get, set)
	return cmd
}

func printSettings(cmd *cobra.Command, s settings.Settings) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "provider\t%s\n", dash(s.SelectedProvider))
	fmt.Fprintf(tw, "api key\t%s\n", dash(s.APIKey))
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "updated\t%s\n", s.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func newLedgerCmd(opts *globalOptions) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show recent relayed exchanges and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			report, err := s.ledger.Ledger(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printLedger(cmd, report)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printLedger(cmd *cobra.Command, report ledger.Report) error {
	sum := report.Summary
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "requests=%d streams=%d failures=%d tokens=%d bytes=%d\n\n",
		sum.Requests, sum.Streams, sum.Failures, sum.Tokens, sum.Bytes)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMODE\tSTATUS\tTOKENS\tOUTCOME\tTARGET")
	for _, e := range report.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Mode, e.Status, e.Tokens, e.Outcome, e.Target)
	}
	return tw.Flush()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "relay", version.FullInfo())
		},
	}
}
