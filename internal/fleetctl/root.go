package fleetctl

import (
	"github.com/spf13/cobra"
)

// NewCmdRoot собирает дерево команд fleetctl.
func NewCmdRoot(f *Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fleetctl <command>",
		Short:         "Operate the agent fleet.",
		Long:          "Issue registration tokens, inspect agents and dispatch whitelisted commands.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var server string
	cmd.PersistentFlags().StringVar(&server, "server", "", "Orchestrator base URL (overrides config)")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if server != "" {
			f.Config.Set(keyServer, server)
		}
		f.Out = cmd.OutOrStdout()
	}

	cmd.AddCommand(NewCmdLogin(f))
	cmd.AddCommand(NewCmdToken(f))
	cmd.AddCommand(NewCmdAgents(f))
	cmd.AddCommand(NewCmdJobs(f))
	cmd.AddCommand(NewCmdCommands(f))

	return cmd
}
