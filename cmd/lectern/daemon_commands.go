package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the lectern daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, pipeline and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				return emit(ctx, cmd, status, func() error {
					out := cmd.OutOrStdout()
					renderDaemonStatus(out, status, shouldColorize(out))
					return nil
				})
			})
		},
	}
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var component string
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				resp, err := client.Logs(cmd.Context(), api.LogQuery{
					Tail:      true,
					Limit:     lines,
					Component: component,
					JobID:     jobID,
				})
				if err != nil {
					return err
				}
				printLogEvents(out, resp.Events)
				if !follow {
					return nil
				}
				next := resp.Next
				for {
					resp, err := client.Logs(cmd.Context(), api.LogQuery{
						Since:     next,
						Follow:    true,
						Component: component,
						JobID:     jobID,
					})
					if err != nil {
						if errors.Is(err, context.Canceled) || cmd.Context().Err() != nil {
							return nil
						}
						return err
					}
					printLogEvents(out, resp.Events)
					if resp.Next > next {
						next = resp.Next
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent events to show")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show events for this paper id")
	return cmd
}

func printLogEvents(out io.Writer, events []api.LogEvent) {
	for _, evt := range events {
		var b strings.Builder
		b.WriteString(evt.Timestamp.Local().Format("2006-01-02 15:04:05"))
		b.WriteString(" ")
		b.WriteString(fmt.Sprintf("%-5s", strings.ToUpper(evt.Level)))
		if evt.Component != "" {
			b.WriteString(" [" + evt.Component + "]")
		}
		if evt.JobID != "" {
			b.WriteString(" " + evt.JobID + ":")
		}
		b.WriteString(" " + evt.Message)
		fmt.Fprintln(out, b.String())
		for _, detail := range evt.Details {
			fmt.Fprintf(out, "    - %s: %s\n", detail.Label, detail.Value)
		}
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream queue events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				events, err := client.Events(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for evt := range events {
					if ctx.outputFormat() == outputJSON {
						if err := writeJSON(cmd, evt); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintln(out, describeEvent(evt))
				}
				return nil
			})
		},
	}
}

func describeEvent(evt api.Event) string {
	stamp := evt.Time.Local().Format("15:04:05")
	label := formatStatusLabel(evt.Type)
	switch {
	case evt.Type == "job_progress":
		return fmt.Sprintf("%s %s %s", stamp, label, describeProgress(evt.Progress.JobID, evt.Progress))
	case evt.Job != nil && evt.Job.ErrorMessage != "":
		return fmt.Sprintf("%s %s %s: %s", stamp, label, evt.Job.ID, evt.Job.ErrorMessage)
	case evt.Job != nil:
		return fmt.Sprintf("%s %s %s", stamp, label, evt.Job.ID)
	default:
		return fmt.Sprintf("%s %s", stamp, label)
	}
}
