package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/proxiscan/internal/session"
	"github.com/muurk/proxiscan/internal/tui"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
)

func newHistoryCmd(g *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"sessions"},
		Short:   "Browse saved scan sessions",
	}
	cmd.PersistentFlags().StringVar(&format, "format", formatTable, "Output format (table, json)")

	cmd.AddCommand(
		newHistoryListCmd(g, &format),
		newHistoryShowCmd(g, &format),
		newHistoryDeleteCmd(g),
		newHistoryClearCmd(g),
		newHistorySetEndCmd(g),
	)
	return cmd
}

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", format, formatTable, formatJSON)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

func newHistoryListCmd(g *globalOptions, format *string) *cobra.Command {
	var typ, date, search string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		Example: `  # Everything
  proxiscan history list

  # Sessions with radio devices from one day
  proxiscan history list --type radio --date 2026-02-05

  # Sessions that saw a device matching "printer"
  proxiscan history list --search printer --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(*format); err != nil {
				return err
			}
			filter, err := session.ParseFilter(typ, date, search, time.Local)
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			catalog, _, err := openCatalog(cmd.Context(), g.cfg)
			if err != nil {
				return err
			}
			defer catalog.Close()

			sessions := catalog.Filter(filter)
			if limit > 0 && len(sessions) > limit {
				sessions = sessions[:limit]
			}

			out := cmd.OutOrStdout()
			if *format == formatJSON {
				if sessions == nil {
					sessions = []session.ScanSession{}
				}
				return writeJSON(out, sessions)
			}

			fmt.Fprintln(out, tui.RenderSessionTable(sessions, tui.GetTerminalWidth()))
			fmt.Fprintln(out)
			summary := fmt.Sprintf("  %d of %d sessions, %d devices scanned in total",
				len(sessions), catalog.Count(), catalog.TotalDevicesScanned())
			fmt.Fprintln(out, tui.MutedStyle.Render(summary))
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", "", "Only sessions with devices of this type (radio, network)")
	cmd.Flags().StringVar(&date, "date", "", "Only sessions started on this day (YYYY-MM-DD, local time)")
	cmd.Flags().StringVar(&search, "search", "", "Only sessions with a device whose name or identity contains this text")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many sessions (0 = all)")
	return cmd
}

func newHistoryShowCmd(g *globalOptions, format *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with its devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(*format); err != nil {
				return err
			}
			catalog, _, err := openCatalog(cmd.Context(), g.cfg)
			if err != nil {
				return err
			}
			defer catalog.Close()

			s, ok := catalog.Session(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", session.ErrNotFound, args[0])
			}
			if *format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderSessionDetail(s, tui.GetTerminalWidth()))
			return nil
		},
	}
}

func newHistoryDeleteCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, _, err := openCatalog(cmd.Context(), g.cfg)
			if err != nil {
				return err
			}
			defer catalog.Close()

			var errs []error
			for _, id := range args {
				if err := catalog.Delete(cmd.Context(), id); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id)
			}
			return errors.Join(errs...)
		},
	}
}

func newHistoryClearCmd(g *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, _, err := openCatalog(cmd.Context(), g.cfg)
			if err != nil {
				return err
			}
			defer catalog.Close()

			n := catalog.Count()
			if n > 0 && !force {
				return fmt.Errorf("refusing to delete %d sessions without --force", n)
			}
			if err := catalog.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d sessions\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Do not refuse when sessions exist")
	return cmd
}

func newHistorySetEndCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-end <session-id> <time>",
		Short: "Correct the end time of a session",
		Long: `Correct the end time of a saved session and recompute its duration.

The time is RFC 3339, e.g. 2026-02-05T14:32:05Z.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			end, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("invalid time %q: %w", args[1], err)
			}

			catalog, _, err := openCatalog(cmd.Context(), g.cfg)
			if err != nil {
				return err
			}
			defer catalog.Close()

			if err := catalog.Update(cmd.Context(), args[0], end); err != nil {
				return err
			}
			s, _ := catalog.Session(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s now ends %s (%s)\n",
				s.ID, s.EndTime.Local().Format(time.RFC1123), s.FormattedDuration())
			return nil
		},
	}
}
