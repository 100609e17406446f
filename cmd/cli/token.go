package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCommand(rt *runtime) *cobra.Command {
	var header bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Acquire an identity token",
		Long: `Acquire a token the way the client does: from the deployment sidecar,
then by self-signing with REPL_IDENTITY_KEY, then with an L402 credential.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := rt.identity(cmd.Context())
			if err != nil {
				return err
			}
			defer identity.Close()

			if header {
				value, err := identity.Manager.AuthorizationHeader(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			}

			token, err := identity.Manager.GetToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token.Raw)
			fmt.Fprintf(cmd.ErrOrStderr(), "strategy: %s\n", token.Strategy)
			return nil
		},
	}
	cmd.Flags().BoolVar(&header, "header", false, "print the Authorization header value instead of the raw token")
	return cmd
}
