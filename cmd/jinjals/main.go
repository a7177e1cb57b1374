package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	getdiagnosticscmd "github.com/walteh/jinjals/cmd/jinjals/get-diagnostics"
	servelspcmd "github.com/walteh/jinjals/cmd/jinjals/serve-lsp"
	logging "github.com/walteh/jinjals/pkg/debug"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "jinjals",
		Short: "language server for jinja templates and the code that renders them",
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log debug output to stderr")

	// logs always go to stderr, stdout belongs to the protocol or the report
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger := logging.New(os.Stderr, level, !color.NoColor)
		cmd.SetContext(logger.WithContext(cmd.Context()))
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:    "raw-version",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(rootCmd.Version)
		},
	})
	rootCmd.AddCommand(servelspcmd.NewServeLSPCommand())
	rootCmd.AddCommand(getdiagnosticscmd.NewGetDiagnosticsCommand())

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}
	return nil
}
