package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/config"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the processing queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))
	queueCmd.AddCommand(newQueueScanCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueHistoryCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending jobs followed by recently finished ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				jobs, err := client.Queue(cmd.Context())
				if err != nil {
					return err
				}
				return emit(ctx, cmd, api.QueueListResponse{Items: jobs}, func() error {
					if len(jobs) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
						return nil
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable(
						[]string{"ID", "Status", "Priority", "Missing", "Source", "Updated", "Error"},
						buildQueueListRows(jobs),
						[]columnAlignment{alignLeft, alignLeft, alignRight},
					))
					return nil
				})
			})
		},
	}
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				jobs, err := client.Queue(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildQueueStatusRows(jobs)
				counts := make(map[string]int, len(rows))
				for _, job := range jobs {
					counts[job.Status]++
				}
				return emit(ctx, cmd, counts, func() error {
					if len(rows) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
						return nil
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
					return nil
				})
			})
		},
	}
}

func newQueuePauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Stop dispatching and return the running job to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Pause(cmd.Context())
				if err != nil {
					return err
				}
				return emit(ctx, cmd, status, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Queue paused (%d pending)\n", status.Pending)
					return nil
				})
			})
		},
	}
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume dispatching queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Resume(cmd.Context())
				if err != nil {
					return err
				}
				return emit(ctx, cmd, status, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Queue resumed (%d pending)\n", status.Pending)
					return nil
				})
			})
		},
	}
}

func newQueueScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Queue PDFs in the data directory that have not been processed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Scan(cmd.Context())
				if err != nil {
					return err
				}
				return emit(ctx, cmd, resp, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Queued %d new, %d incomplete, skipped %d\n", len(resp.Queued), len(resp.Incomplete), resp.Skipped)
					for _, id := range resp.Queued {
						fmt.Fprintf(out, "  + %s\n", id)
					}
					for _, id := range resp.Incomplete {
						fmt.Fprintf(out, "  ~ %s\n", id)
					}
					return nil
				})
			})
		},
	}
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var byPath bool
	var id string

	cmd := &cobra.Command{
		Use:   "add <file.pdf>...",
		Short: "Upload PDFs and queue them ahead of scanned work",
		Long: "Upload PDFs to the daemon. With --path the daemon reads the file from its own\n" +
			"filesystem instead, which avoids copying large files over the API.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id != "" && len(args) > 1 {
				return fmt.Errorf("--id applies to a single file")
			}
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				jobs := make([]api.Job, 0, len(args))
				for _, arg := range args {
					path, err := resolvePDF(arg)
					if err != nil {
						return err
					}
					var job api.Job
					if byPath {
						job, err = client.AddPath(cmd.Context(), api.UploadRequest{ID: id, Path: path, Force: force})
					} else {
						job, err = client.UploadFile(cmd.Context(), path, force)
					}
					if err != nil {
						return fmt.Errorf("%s: %w", filepath.Base(path), err)
					}
					jobs = append(jobs, job)
					if ctx.outputFormat() == outputTable {
						fmt.Fprintf(out, "Queued %s (priority %d)\n", job.ID, job.Priority)
					}
				}
				if ctx.outputFormat() == outputTable {
					return nil
				}
				return emit(ctx, cmd, api.QueueListResponse{Items: jobs}, nil)
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reprocess papers already in the library")
	cmd.Flags().BoolVar(&byPath, "path", false, "Let the daemon read the file in place instead of uploading it")
	cmd.Flags().StringVar(&id, "id", "", "Paper id to use with --path (defaults to the file name)")
	return cmd
}

func resolvePDF(arg string) (string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", arg, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("inspect %q: %w", arg, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}
	if !strings.EqualFold(filepath.Ext(abs), ".pdf") {
		return "", fmt.Errorf("%s is not a PDF", abs)
	}
	return abs, nil
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Drop waiting jobs from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					if err := client.Remove(cmd.Context(), id); err != nil {
						return fmt.Errorf("%s: %w", id, err)
					}
					fmt.Fprintf(out, "Removed %s\n", id)
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Queue failed papers again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					job, err := client.Retry(cmd.Context(), id)
					if err != nil {
						return fmt.Errorf("%s: %w", id, err)
					}
					fmt.Fprintf(out, "%s queued for retry\n", job.ID)
				}
				return nil
			})
		},
	}
}

func newQueueHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show journaled outcomes, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = args[0]
			}
			return ctx.withClient(func(client *api.Client) error {
				outcomes, err := client.History(cmd.Context(), jobID, limit)
				if err != nil {
					return err
				}
				return emit(ctx, cmd, api.HistoryResponse{Outcomes: outcomes}, func() error {
					if len(outcomes) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No history")
						return nil
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable(
						[]string{"ID", "Status", "Finished", "Took", "Error"},
						buildHistoryRows(outcomes),
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
					))
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of outcomes")
	return cmd
}
