package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRecordingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recordings",
		Aliases: []string{"rec"},
		Short:   "Manage recorded sessions",
	}

	cmd.AddCommand(newRecordingsListCommand(ctx))
	cmd.AddCommand(newRecordingsExportCommand(ctx))
	cmd.AddCommand(newRecordingsRemoveCommand(ctx))

	return cmd
}

func newRecordingsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recordings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := ctx.openLibrary()
			if err != nil {
				return err
			}
			recs, err := lib.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No recordings")
				return nil
			}

			const stampLayout = "2006-01-02 15:04"
			rows := make([][]string, 0, len(recs))
			for _, r := range recs {
				state := "done"
				if !r.Finished {
					state = "recording"
				}
				rows = append(rows, []string{
					r.ID,
					r.CreatedAt.Local().Format(stampLayout),
					r.Duration.Round(100 * time.Millisecond).String(),
					fmt.Sprint(r.Frames),
					fmt.Sprint(r.Dropped),
					fmt.Sprintf("%dx%d", r.Width, r.Height),
					state,
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"ID", "Created", "Duration", "Frames", "Dropped", "Size", "State"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}))
			return nil
		},
	}
}

func newRecordingsExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <id> <dest.zip>",
		Short: "Write a recording's frames to a zip archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := ctx.openLibrary()
			if err != nil {
				return err
			}
			if err := lib.Export(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newRecordingsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove"},
		Short:   "Delete recordings and their frames",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := ctx.openLibrary()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := lib.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("remove %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			}
			return nil
		},
	}
}
