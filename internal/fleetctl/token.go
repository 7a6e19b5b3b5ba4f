package fleetctl

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

func NewCmdToken(f *Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <command>",
		Short: "Manage agent registration tokens.",
	}
	cmd.AddCommand(newCmdTokenCreate(f))
	return cmd
}

func newCmdTokenCreate(f *Factory) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "create",
		Args:  cobra.NoArgs,
		Short: "Issue a single-use registration token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]int64{}
			if ttl != 0 {
				body["ttlSeconds"] = int64(ttl / time.Second)
			}
			var tok domain.RegistrationToken
			if err := f.Do(cmd.Context(), http.MethodPost, "/v1/agents/tokens", body, &tok); err != nil {
				return err
			}
			fmt.Fprintln(f.Out, tok.Value)
			fmt.Fprintf(f.Out, "expires at %s\n", tok.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (server default when omitted)")
	return cmd
}
