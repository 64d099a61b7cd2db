package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ripcast/internal/api"
	"ripcast/internal/jobs"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var format string
	var customName string
	var follow bool

	cmd := &cobra.Command{
		Use:   "add <url> [url...]",
		Short: "Submit one or more extraction jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) > 1 {
				if strings.TrimSpace(customName) != "" {
					return fmt.Errorf("--name applies to a single url only")
				}
				jobIDs, err := client.CreateBatch(cmd.Context(), api.CreateBatchRequest{URLs: args, Format: format})
				if err != nil {
					return err
				}
				for i, id := range jobIDs {
					fmt.Fprintf(out, "queued %s -> job %s\n", args[i], id)
				}
				return nil
			}

			jobID, err := client.CreateJob(cmd.Context(), api.CreateJobRequest{
				URL:        args[0],
				Format:     format,
				CustomName: customName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "queued job %s\n", jobID)

			if !follow {
				return nil
			}
			return client.FollowEvents(cmd.Context(), jobID, func(frame jobs.Frame) {
				printFrame(cmd, frame)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Audio format (defaults to the server's configured format)")
	cmd.Flags().StringVarP(&customName, "name", "n", "", "Display name for the output file")
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream job progress until it finishes")
	return cmd
}

func printFrame(cmd *cobra.Command, frame jobs.Frame) {
	out := cmd.OutOrStdout()
	switch frame.Type {
	case jobs.FrameConnected:
		fmt.Fprintf(out, "connected: %s (%.1f%%)\n", frame.Status, frame.Progress)
	case jobs.FrameStatus:
		if frame.Message != "" {
			fmt.Fprintf(out, "%s: %s\n", frame.Status, frame.Message)
		} else {
			fmt.Fprintf(out, "%s\n", frame.Status)
		}
	case jobs.FrameProgress:
		line := fmt.Sprintf("%.1f%%", frame.Progress)
		if frame.Speed != "" {
			line += " " + frame.Speed
		}
		if frame.ETA != "" {
			line += " ETA " + frame.ETA
		}
		fmt.Fprintln(out, line)
	case jobs.FrameComplete:
		fmt.Fprintf(out, "completed: %s\n", frame.Filename)
		fmt.Fprintf(out, "download token: %s\n", frame.Token)
	case jobs.FrameError:
		fmt.Fprintf(out, "failed: %s\n", frame.Error)
	}
}
