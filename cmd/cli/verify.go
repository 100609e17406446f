package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/modelfarm/internal/infrastructure/crypto"
	"github.com/turtacn/modelfarm/pkg/clock"
)

func newVerifyCommand(rt *runtime) *cobra.Command {
	var (
		audience   string
		publicKeys string
	)

	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify an identity token",
		Long: `Verify a token's signature, key id, audience and expiry against the
REPL_PUBKEYS registry and print its claims. The token is read from stdin
when no argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := tokenArg(cmd, args)
			if err != nil {
				return err
			}

			var registry *crypto.KeyRegistry
			if publicKeys != "" {
				registry, err = crypto.ParseKeyRegistry([]byte(publicKeys))
			} else {
				registry, err = crypto.KeyRegistryFromEnv()
			}
			if err != nil {
				return err
			}

			if audience == "" {
				audience = rt.cfg.Identity.Audience
			}
			claims, err := crypto.NewTokenVerifier(registry, clock.Real(), rt.log).Verify(cmd.Context(), raw, audience)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
	cmd.Flags().StringVar(&audience, "audience", "", "expected audience (default identity.audience)")
	cmd.Flags().StringVar(&publicKeys, "pubkeys", "", "JSON key id to public key map (default $REPL_PUBKEYS)")
	return cmd
}

func tokenArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
