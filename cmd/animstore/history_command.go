package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"animstore/internal/catalog"
	"animstore/internal/config"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var prune int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history [archive.zip]",
		Short: "List recorded saves and loads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var path string
			if len(args) == 1 {
				path, err = config.ExpandPath(args[0])
				if err != nil {
					return err
				}
			}

			store, err := catalog.Open(cfg.Paths.CatalogPath)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("prune") {
				if path == "" {
					return fmt.Errorf("--prune requires an archive path")
				}
				removed, err := store.Prune(cmd.Context(), path, prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d event(s) for %s\n", removed, path)
				return nil
			}

			events, err := store.List(cmd.Context(), path, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				if events == nil {
					events = []catalog.Event{}
				}
				return writeJSON(cmd, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No history recorded")
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					strconv.FormatInt(e.ID, 10),
					humanize.Time(e.CreatedAt),
					title(e.Operation),
					e.Path,
					formatBytes(e.Bytes),
					strconv.Itoa(e.Tracks),
					strconv.Itoa(e.Keyframes),
					strconv.Itoa(e.Problems),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "When", "Op", "Archive", "Size", "Tracks", "Keys", "Problems"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show (0 for all)")
	cmd.Flags().IntVar(&prune, "prune", 0, "Keep only the newest N events for the archive")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
