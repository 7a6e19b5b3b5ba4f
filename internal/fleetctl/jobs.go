package fleetctl

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

func NewCmdJobs(f *Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs <command>",
		Aliases: []string{"job"},
		Short:   "Dispatch and inspect jobs.",
	}
	cmd.AddCommand(newCmdJobsCreate(f), newCmdJobsList(f), newCmdJobsGet(f), newCmdJobsDelete(f))
	return cmd
}

func newCmdJobsCreate(f *Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "create <agent-id> <command> [args...]",
		Args:  cobra.MinimumNArgs(2),
		Short: "Queue a whitelisted command on an online agent.",
		Example: `  fleetctl jobs create 3f1c... df -h
  fleetctl jobs create 3f1c... "echo hello"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"agentId": args[0],
				"command": strings.Join(args[1:], " "),
			}
			var job domain.Job
			if err := f.Do(cmd.Context(), http.MethodPost, "/v1/jobs", body, &job); err != nil {
				return err
			}
			fmt.Fprintf(f.Out, "Job %s queued (%s)\n", job.ID, job.Status)
			return nil
		},
	}
}

func newCmdJobsList(f *Factory) *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		Short:   "List jobs, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/jobs"
			if agentID != "" {
				path += "?agentId=" + url.QueryEscape(agentID)
			}
			var jobs []*domain.Job
			if err := f.Do(cmd.Context(), http.MethodGet, path, nil, &jobs); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(f.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tAGENT\tSTATUS\tCOMMAND\tCREATED")
			for _, j := range jobs {
				agent := j.AgentID
				if j.Agent != nil {
					agent = j.Agent.Hostname
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					j.ID, agent, j.Status, j.Command, j.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Only jobs of this agent")
	return cmd
}

func newCmdJobsGet(f *Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Args:  cobra.ExactArgs(1),
		Short: "Show a job with its output.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var job domain.Job
			if err := f.Do(cmd.Context(), http.MethodGet, "/v1/jobs/"+pathID(args[0]), nil, &job); err != nil {
				return err
			}
			return printJSON(f.Out, job)
		},
	}
}

func newCmdJobsDelete(f *Factory) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <job-id>",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		Short:   "Delete a job.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Do(cmd.Context(), http.MethodDelete, "/v1/jobs/"+pathID(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(f.Out, "Job %s deleted\n", args[0])
			return nil
		},
	}
}
