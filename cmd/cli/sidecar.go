package cli

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/modelfarm/internal/infrastructure/crypto"
	"github.com/turtacn/modelfarm/internal/interfaces/http/sidecar"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/logger"
)

func newSidecarCommand(rt *runtime) *cobra.Command {
	var (
		addr   string
		replID string
	)

	cmd := &cobra.Command{
		Use:   "sidecar",
		Short: "Serve the deployment identity token endpoint locally",
		Long: `Serve POST /getIdentityToken the way a deployment sidecar does. Tokens are
signed with REPL_IDENTITY_KEY when the identity variables are set; otherwise a
throwaway identity is generated and its REPL_PUBKEYS value is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, err := sidecarAuthority(cmd, rt, replID)
			if err != nil {
				return err
			}

			l, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "serving %s on http://%s\n", constants.SidecarTokenPath, l.Addr())

			router := sidecar.NewRouter(sidecar.NewHandler(authority, rt.log), sidecar.Options{
				Tracer:   rt.tracing.Tracer(),
				Recorder: rt.metrics,
				Gatherer: rt.registry,
				Logger:   rt.log,
			})
			return sidecar.Serve(cmd.Context(), l, router, rt.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:1105", "listen address")
	cmd.Flags().StringVar(&replID, "repl-id", "local-repl", "identity of the generated throwaway identity")
	return cmd
}

func sidecarAuthority(cmd *cobra.Command, rt *runtime, replID string) (*crypto.SigningAuthority, error) {
	opts := []crypto.AuthorityOption{crypto.WithLifetime(rt.cfg.Identity.SignedTokenLifetime)}

	if material, err := identityFromEnv(); err == nil {
		return crypto.NewSigningAuthority(material[0], material[1], material[2], opts...)
	}

	dev, err := crypto.GenerateDevIdentity(replID, "local", time.Now(), 0)
	if err != nil {
		return nil, err
	}
	rt.log.Info(cmd.Context(), "Generated throwaway identity", logger.Fields{"repl_id": dev.ReplID})
	fmt.Fprintf(cmd.OutOrStdout(), "export %s='%s'\n", constants.EnvPublicKeys, dev.PublicKeysJSON())
	return dev.Authority(opts...)
}
