package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"ripcast/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := [][]string{
				{"Running", yesNo(status.Running)},
				{"PID", strconv.Itoa(status.PID)},
				{"Active jobs", strconv.Itoa(status.ActiveJobs)},
				{"Finished jobs (retained)", strconv.Itoa(status.TerminalJobs)},
				{"Extractions", fmt.Sprintf("%d/%d", status.RunningExtractions, status.MaxExtractions)},
			}
			for _, key := range sortedKeys(status.History) {
				rows = append(rows, []string{"Archived " + key, strconv.Itoa(status.History[key])})
			}
			for _, dep := range status.Dependencies {
				value := dep.Command
				if !dep.Available {
					value = dep.Detail
				}
				rows = append(rows, []string{dep.Name + " available: " + yesNo(dep.Available), value})
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List live jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			snapshots, err := client.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(snapshots) == 0 {
				fmt.Fprintln(out, "No live jobs")
				return nil
			}

			sort.Slice(snapshots, func(i, j int) bool {
				return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
			})
			rows := make([][]string, 0, len(snapshots))
			for _, snap := range snapshots {
				rows = append(rows, []string{
					snap.ID,
					string(snap.Status),
					fmt.Sprintf("%.1f%%", snap.Progress),
					snap.Format,
					jobDetail(snap),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Status", "Progress", "Format", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func jobDetail(snap jobs.Snapshot) string {
	switch {
	case snap.Error != "":
		return snap.Error
	case snap.Result != nil:
		return snap.Result.Filename
	case snap.Speed != "":
		detail := snap.Speed
		if snap.ETA != "" {
			detail += " ETA " + snap.ETA
		}
		return detail
	default:
		return snap.Message
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
