package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/sqlrunner/internal/client"
	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

// defaultPollInterval keeps --wait well inside the server's default budget
// of 60 requests per minute.
const defaultPollInterval = 2 * time.Second

func newSubmitCmd(a *app) *cobra.Command {
	var (
		file     string
		sync     bool
		wait     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit [SQL...]",
		Short: "Submit a batch of SQL commands",
		Long: `Submit a batch of SQL commands. Each argument is one command; --file
reads a script and splits it on ';'. By default the job runs in the
background and its ID is printed. --sync runs it inside the request;
--wait submits in the background and polls until the job finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			commands := append([]string(nil), args...)
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				commands = append(commands, SplitScript(string(b))...)
			}
			if len(commands) == 0 {
				return fmt.Errorf("no SQL commands given: pass them as arguments or with --file")
			}

			ctx := cmd.Context()
			var (
				job *models.Job
				err error
			)
			switch {
			case sync:
				job, err = a.client.SubmitAndWait(ctx, commands)
			case wait:
				job, err = a.client.Submit(ctx, commands)
				if err == nil {
					job, err = a.client.WaitForJob(ctx, job.ID, interval)
				}
			default:
				job, err = a.client.Submit(ctx, commands)
				if err == nil {
					return a.printSubmitted(cmd, job)
				}
			}
			if err != nil {
				return err
			}
			return a.printJob(cmd, job)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read commands from a SQL script")
	cmd.Flags().BoolVar(&sync, "sync", false, "Run the batch synchronously on the server")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "poll-interval", defaultPollInterval, "Polling interval for --wait")
	cmd.MarkFlagsMutuallyExclusive("sync", "wait")

	return cmd
}

func newJobCmd(a *app) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "job JOB_ID",
		Short: "Show a job and its command results",
		Long: `Show a job and its command results. --status prints only the status,
which the server can also report for jobs it no longer tracks when the
Redis status mirror is enabled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job ID %q: %w", args[0], err)
			}

			if statusOnly {
				st, err := a.client.GetJobStatus(cmd.Context(), id)
				if err != nil {
					return err
				}
				if a.output == "json" {
					return printJSON(cmd.OutOrStdout(), st)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s: %s (%s)\n", st.JobID, st.Status, st.Source)
				return nil
			}

			job, err := a.client.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printJob(cmd, job)
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "Print only the job status")
	return cmd
}

func newRunningCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "List jobs that are executing now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			running, err := a.client.ListRunning(cmd.Context())
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(cmd.OutOrStdout(), running)
			}
			printRunning(cmd, running)
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var req client.StatusRequest

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show command history and running jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := a.client.Status(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(cmd.OutOrStdout(), page)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "History (page %d, %d of %d total)\n", page.Page, len(page.History), page.Total)
			printResults(cmd, page.History)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Running")
			printRunning(cmd, page.Running)
			return nil
		},
	}

	cmd.Flags().IntVar(&req.Page, "page", 1, "History page")
	cmd.Flags().IntVar(&req.Limit, "limit", 50, "History page size (max 500)")
	cmd.Flags().StringVar(&req.Order, "order", "asc", "History order (asc, desc)")

	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear command history and job records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "cleared"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if a.output == "json" {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "STATUS\t%s\n", report.Status)
				for name, state := range report.Services {
					fmt.Fprintf(tw, "%s\t%s\n", strings.ToUpper(name), state)
				}
				tw.Flush()
			}
			if report.Status != "ok" {
				return fmt.Errorf("server is %s", report.Status)
			}
			return nil
		},
	}
}

func (a *app) printSubmitted(cmd *cobra.Command, job *models.Job) error {
	if a.output == "json" {
		return printJSON(cmd.OutOrStdout(), map[string]any{"job_id": job.ID, "status": job.Status})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job submitted: %s (%s)\n", job.ID, job.Status)
	return nil
}

func (a *app) printJob(cmd *cobra.Command, job *models.Job) error {
	if a.output == "json" {
		return printJSON(cmd.OutOrStdout(), job)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s: %s\n", job.ID, job.Status)
	fmt.Fprintf(out, "Commands: %d  Succeeded: %d  Failed: %d  Elapsed: %.3fs\n",
		len(job.Commands), job.SuccessCount, job.ErrorCount, job.ElapsedSeconds)
	if job.ErrorMessage != nil {
		fmt.Fprintf(out, "Error: %s\n", *job.ErrorMessage)
	}
	if len(job.Results) > 0 {
		fmt.Fprintln(out)
		printResults(cmd, job.Results)
	}
	return nil
}

func printResults(cmd *cobra.Command, results []models.CommandResult) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tDURATION\tCOMMAND\tERROR")
	for _, r := range results {
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}
		fmt.Fprintf(tw, "%s\t%.3fs\t%s\t%s\n", r.Status, r.DurationSeconds, oneLine(r.Command, 60), oneLine(errMsg, 80))
	}
	tw.Flush()
}

func printRunning(cmd *cobra.Command, running []models.RunningJob) {
	if len(running) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No running jobs")
		return
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tSTARTED\tELAPSED\tPROGRESS")
	for _, j := range running {
		fmt.Fprintf(tw, "%s\t%s\t%.1fs\t%d/%d\n",
			j.ID, j.StartedAt.Format(time.RFC3339), j.ElapsedSeconds, j.CompletedCount, j.CommandCount)
	}
	tw.Flush()
}

// oneLine collapses whitespace and truncates s to limit runes for table cells.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
