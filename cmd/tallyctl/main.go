package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	profilesFile string
	json         bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "tallyctl",
		Short:         "Import bank statements into tally",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.profilesFile, "profiles", "", "Extra import profiles file (YAML)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Print results as JSON")

	root.AddCommand(
		newProfilesCmd(opts),
		newDetectCmd(opts),
		newImportCmd(opts),
		newProbeCmd(opts),
		newTokenCmd(opts),
	)

	return root
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
