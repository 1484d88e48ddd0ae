package main

import (
	"github.com/spf13/cobra"
)

type globalOptions struct {
	root     string
	endpoint string
	local    bool
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run HTTP requests through a relay executor",
		Long: `relay hands fully-formed HTTP requests to relayd, which performs them and
relays the response back: as one JSON value, or as a stream of text tokens
when the request body sets "stream": true.

Examples:
  relay init                                   # scaffold config/
  relay fetch --url https://api.example.com/v1/models
  relay stream --url https://api.openai.com/v1/chat/completions -H "Authorization: Bearer $KEY" -d @body.json
  relay settings set --provider Groq --api-key gsk-...
  relay summarize transcript.txt
  relay ask "what was the main argument?" --summary-file summary.md
  relay --local summarize transcript.txt        # no relayd needed`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.root, "config-root", ".", "Directory containing config/")
	pf.StringVar(&opts.endpoint, "endpoint", "", "relayd base URL (overrides config)")
	pf.BoolVar(&opts.local, "local", false, "Run the executor in-process instead of dialing relayd")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newInitCmd(opts),
		newFetchCmd(opts),
		newStreamCmd(opts),
		newSummarizeCmd(opts),
		newAskCmd(opts),
		newModelsCmd(opts),
		newProvidersCmd(opts),
		newSettingsCmd(opts),
		newLedgerCmd(opts),
		newVersionCmd(),
	)
	return cmd
}
