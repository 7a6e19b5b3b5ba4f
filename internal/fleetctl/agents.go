package fleetctl

import (
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

func NewCmdAgents(f *Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents <command>",
		Aliases: []string{"agent"},
		Short:   "Inspect and remove registered agents.",
	}
	cmd.AddCommand(newCmdAgentsList(f), newCmdAgentsGet(f), newCmdAgentsDelete(f))
	return cmd
}

func newCmdAgentsList(f *Factory) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		Short:   "List agents, newest registration first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var agents []*domain.Agent
			if err := f.Do(cmd.Context(), http.MethodGet, "/v1/agents", nil, &agents); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(f.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tHOSTNAME\tOS\tSTATUS\tRAM (MB)\tLAST HEARTBEAT")
			for _, a := range agents {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
					a.ID, a.Hostname, a.OS, a.Status, a.RAMUsedMB, a.RAMTotalMB,
					a.LastHeartbeat.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newCmdAgentsGet(f *Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "get <agent-id>",
		Args:  cobra.ExactArgs(1),
		Short: "Show an agent with its recent jobs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var agent domain.Agent
			if err := f.Do(cmd.Context(), http.MethodGet, "/v1/agents/"+pathID(args[0]), nil, &agent); err != nil {
				return err
			}
			return printJSON(f.Out, agent)
		},
	}
}

func newCmdAgentsDelete(f *Factory) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <agent-id>",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		Short:   "Remove an agent and its jobs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Do(cmd.Context(), http.MethodDelete, "/v1/agents/"+pathID(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(f.Out, "Agent %s deleted\n", args[0])
			return nil
		},
	}
}
