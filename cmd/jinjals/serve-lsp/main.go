package serve_lsp

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/lsp"
)

type Handler struct {
	debug bool
	watch bool
}

func NewServeLSPCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "serve-lsp",
		Short: "start the language server on stdin and stdout",
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "send debug logs to the client and trace the protocol")
	cmd.Flags().BoolVar(&me.watch, "watch", true, "watch the workspace for changes made outside the editor")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context())
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context) error {
	server := lsp.NewServer(ctx, afero.NewOsFs(), lsp.WithDebug(me.debug), lsp.WithWatch(me.watch))

	zerolog.Ctx(ctx).Info().Str("server", server.ID()).Str("version", lsp.Version).Msg("starting language server")

	if err := server.RunStdio(); err != nil {
		return errors.Errorf("error running language server: %w", err)
	}
	return nil
}
