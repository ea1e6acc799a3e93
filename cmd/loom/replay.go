package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/config"
	"loom/internal/session"
	"loom/internal/toolui/render"
	"loom/internal/toolui/surface"
)

func newReplayCmd(configPath *string) *cobra.Command {
	var (
		width int
		theme string
	)

	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: `Re-render the surfaces and receipts of a stored session ("latest" for the newest)`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(*configPath)})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := session.NewStore(cfg.Session.Dir)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			opts, err := hostOptions(cfg)
			if err != nil {
				return err
			}
			id, entries, err := resolveSession(cmd.Context(), store, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return replaySession(cmd.Context(), cmd.OutOrStdout(), id, entries, surface.NewHost(opts...), surface.RenderOptions{
				Width: width,
				Theme: render.ResolveTheme(theme),
			})
		},
	}

	cmd.Flags().IntVar(&width, "width", defaultRenderWidth, "Terminal width in cells")
	cmd.Flags().StringVar(&theme, "theme", "dark", "Theme: dark, light or plain")
	return cmd
}

// replaySession prints every surface the transcript still validates, with
// its receipt. Entries that fail are reported after the surfaces.
func replaySession(ctx context.Context, w io.Writer, id string, entries []session.Entry, host *surface.Host, opts surface.RenderOptions) error {
	replayErr := session.Replay(ctx, entries, host)

	_, _ = fmt.Fprintf(w, "session %s: %d entries, %d surfaces\n", id, len(entries), host.Len())
	for _, e := range host.List() {
		_, _ = fmt.Fprintf(w, "\n%s (%s)\n", e.ID, surface.DisplayName(e.Kind))
		_, _ = fmt.Fprintln(w, host.Render(e.ID, opts))
	}
	if replayErr != nil {
		return fmt.Errorf("replay %s: %w", id, replayErr)
	}
	return nil
}
