package fleetctl

import (
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-fleet/internal/policy"
)

func NewCmdCommands(f *Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Args:  cobra.NoArgs,
		Short: "Show the command whitelist.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cmds []policy.Command
			if err := f.Do(cmd.Context(), http.MethodGet, "/v1/commands", nil, &cmds); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(f.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPLATFORMS\tDESCRIPTION")
			for _, c := range cmds {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, strings.Join(c.Platforms, ","), c.Description)
			}
			return tw.Flush()
		},
	}
}
