package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/modelfarm/internal/infrastructure/crypto"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

func newIdentityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Work with local identity material",
	}
	cmd.AddCommand(newIdentityGenerateCommand())
	return cmd
}

func newIdentityGenerateCommand() *cobra.Command {
	var (
		replID    string
		rootKeyID string
		lifetime  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a root key, a holder key and the assertion binding them",
		Long: `Print shell exports for REPL_IDENTITY_KEY, REPL_IDENTITY, REPL_ID and
REPL_PUBKEYS so that tokens can be signed and verified without the platform.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := crypto.GenerateDevIdentity(replID, rootKeyID, time.Now(), lifetime)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "export %s='%s'\n", constants.EnvIdentityKey, dev.PrivateKey)
			fmt.Fprintf(out, "export %s='%s'\n", constants.EnvIdentity, dev.Identity)
			fmt.Fprintf(out, "export %s='%s'\n", constants.EnvReplID, dev.ReplID)
			fmt.Fprintf(out, "export %s='%s'\n", constants.EnvPublicKeys, dev.PublicKeysJSON())
			return nil
		},
	}
	cmd.Flags().StringVar(&replID, "repl-id", "local-repl", "identity the assertion is issued for")
	cmd.Flags().StringVar(&rootKeyID, "kid", "local", "key id of the root key")
	cmd.Flags().DurationVar(&lifetime, "lifetime", 0, "assertion lifetime (0 for no expiry)")
	return cmd
}

// identityFromEnv returns the key, assertion and replid when all three are set.
func identityFromEnv() ([3]string, error) {
	var material [3]string
	for i, name := range []string{constants.EnvIdentityKey, constants.EnvIdentity, constants.EnvReplID} {
		value := os.Getenv(name)
		if value == "" {
			return material, errors.ErrMissingEnvironmentVariable(name)
		}
		material[i] = value
	}
	return material, nil
}
