package fleetctl

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

func NewCmdLogin(f *Factory) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Args:  cobra.NoArgs,
		Short: "Log in as an operator and save the access token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return errors.New("--username and --password are required")
			}
			// Старый токен не нужен для логина
			f.Config.Set(keyToken, "")

			var resp domain.TokenResponse
			err := f.Do(cmd.Context(), http.MethodPost, "/auth/token",
				domain.LoginRequest{Username: username, Password: password}, &resp)
			if err != nil {
				return err
			}
			if err := f.SaveToken(resp.AccessToken); err != nil {
				return err
			}
			fmt.Fprintf(f.Out, "Logged in as %s (token expires in %ds)\n", username, resp.ExpiresIn)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Operator password")

	return cmd
}
