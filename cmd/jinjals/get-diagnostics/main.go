package get_diagnostics

// `get-diagnostics` indexes a workspace the way the language server does and
// prints every file's diagnostics.

import (
	"context"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/config"
	"github.com/walteh/jinjals/pkg/diagnostic"
	"github.com/walteh/jinjals/pkg/workspace"
)

// ErrDiagnosticErrors is returned with --fail when an error was reported.
var ErrDiagnosticErrors = errors.New("workspace has error diagnostics")

type Handler struct {
	fs     afero.Fs
	root   string
	format string // vscode, json, text
	fail   bool
}

func NewGetDiagnosticsCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "get-diagnostics [workspace-dir]",
		Short: "print the diagnostics of every template and backend file in a workspace",
	}

	cmd.Flags().StringVar(&me.format, "format", "vscode", "the format of the diagnostics: vscode, json or text")
	cmd.Flags().BoolVar(&me.fail, "fail", false, "exit non-zero when any error diagnostic is reported")
	cmd.Args = cobra.MaximumNArgs(1)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.root = "."
		if len(args) > 0 {
			me.root = args[0]
		}
		return me.Run(cmd.Context(), cmd.OutOrStdout())
	}

	return cmd
}

func (me *Handler) formatter() (diagnostic.Formatter, error) {
	switch me.format {
	case "vscode", "json":
		return diagnostic.NewVSCodeFormatter(), nil
	case "text":
		return diagnostic.NewTextFormatter(), nil
	}
	return nil, errors.Errorf("unknown format %q", me.format)
}

func (me *Handler) Run(ctx context.Context, out io.Writer) error {
	formatter, err := me.formatter()
	if err != nil {
		return err
	}

	root, err := filepath.Abs(me.root)
	if err != nil {
		return errors.Errorf("resolving %s: %w", me.root, err)
	}

	cfg, path, err := config.Discover(ctx, me.fs, root)
	if err != nil {
		return err
	}
	cfg = cfg.Resolve(root)
	if err := cfg.Validate(me.fs); err != nil {
		return errors.Errorf("invalid configuration: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("config", path).Str("templates", cfg.Templates).Strs("backend", cfg.Backend).Msg("loaded configuration")

	ws, err := workspace.New(me.fs, cfg)
	if err != nil {
		return err
	}
	defer ws.Shutdown()

	if err := ws.Load(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("some files could not be indexed")
	}

	reports := ws.Reports(ctx)
	data, err := formatter.Format(reports)
	if err != nil {
		return errors.Errorf("formatting diagnostics: %w", err)
	}
	if _, err := out.Write(data); err != nil {
		return errors.Errorf("writing diagnostics: %w", err)
	}

	if me.fail && hasErrors(reports) {
		return ErrDiagnosticErrors
	}
	return nil
}

func hasErrors(reports []diagnostic.Report) bool {
	for _, rep := range reports {
		for _, d := range rep.Diagnostics {
			if d.Severity == diagnostic.Error {
				return true
			}
		}
	}
	return false
}
