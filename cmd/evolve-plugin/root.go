package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khimaros/opencode-evolve/internal/cliout"
)

// Execute builds and runs the evolve-plugin operator CLI.
func Execute(version string) error {
	root := &cobra.Command{
		Use:           "evolve-plugin",
		Short:         "Operator harness for the opencode-evolve hook lifecycle engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				return cliPrintVersion(version)
			}
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("workspace", "", "Workspace directory (default: $OPENCODE_EVOLVE_WORKSPACE)")
	root.PersistentFlags().Bool("debug", false, "Enable debug-level logging")
	root.Flags().BoolP("version", "v", false, "Print the evolve-plugin version")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newReplayCmd())

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	return err
}

func cliPrintVersion(version string) error {
	type resp struct {
		Version string `json:"version"`
	}
	return cliout.PrintSuccess(resp{Version: version})
}
