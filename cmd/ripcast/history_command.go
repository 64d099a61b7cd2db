package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			records, err := client.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No archived jobs")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				detail := record.Artifact
				if record.Error != "" {
					detail = record.Error
				}
				rows = append(rows, []string{
					record.JobID,
					record.Status,
					record.Format,
					detail,
					record.FinishedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Status", "Format", "Detail", "Finished"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records to list")
	return cmd
}
