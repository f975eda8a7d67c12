// Package cli is the swapctl command line: quotes, split analysis, swaps and
// recovery of pending transfers and claims against the same aggregator stack
// the HTTP runtime serves.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
)

// Opener builds the aggregator stack a command runs against.
type Opener func(s *Settings) (*aggregator.Components, error)

func openComponents(s *Settings) (*aggregator.Components, error) {
	return aggregator.NewComponents(&s.RPC, &s.Aggregator)
}

type app struct {
	open Opener
	v    *viper.Viper

	verbose    bool
	jsonOutput bool
	configFile string
}

// NewRootCmd wires every subcommand. A nil opener uses the real gateway and store.
func NewRootCmd(open Opener) *cobra.Command {
	if open == nil {
		open = openComponents
	}
	a := &app{open: open, v: viper.New()}

	root := &cobra.Command{
		Use:   "swapctl",
		Short: "Quote and execute swaps across ICPSwap and KongSwap",
		Long: `swapctl talks to the DEX canisters through the configured gateway and
finds the best route for a swap, including two-dex splits.

Examples:
  swapctl quote 10 ryjl3-tyaaa-aaaaa-aaaba-cai xevnm-gaaaa-aaaar-qafnq-cai
  swapctl split 10 ryjl3-tyaaa-aaaaa-aaaba-cai xevnm-gaaaa-aaaar-qafnq-cai
  swapctl swap 10 ryjl3-tyaaa-aaaaa-aaaba-cai xevnm-gaaaa-aaaar-qafnq-cai --split
  swapctl pending list
  swapctl claims retry`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if a.verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	root.PersistentFlags().BoolVarP(&a.jsonOutput, "json", "j", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (default $HOME/.swapctl.yaml)")

	root.AddCommand(
		a.quoteCmd(),
		a.splitCmd(),
		a.swapCmd(),
		a.pendingCmd(),
		a.claimsCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd(nil).Execute()
}

// stack loads settings and opens the aggregator. Callers must Close it.
func (a *app) stack() (*aggregator.Components, error) {
	s, err := LoadSettings(a.v, a.configFile)
	if err != nil {
		return nil, err
	}
	return a.open(s)
}

func (a *app) spin(suffix string) func() {
	if a.jsonOutput {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = suffix
	s.Start()
	return s.Stop
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
