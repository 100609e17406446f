package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/internal/infrastructure/l402"
	"github.com/turtacn/modelfarm/pkg/errors"
)

func newL402Command(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "l402",
		Short: "Inspect and manage L402 credentials",
	}
	cmd.AddCommand(newL402StatusCommand(rt), newL402ChallengeCommand(rt), newL402SaveCommand(rt))
	return cmd
}

func newL402StatusCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored L402 credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := rt.identity(cmd.Context())
			if err != nil {
				return err
			}
			defer identity.Close()
			if identity.Store == nil {
				return errors.ErrConfiguration("l402 is disabled")
			}

			cred, err := identity.Store.Load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store:    %s\n", identity.Store.Location())
			switch {
			case cred.IsZero():
				fmt.Fprintln(out, "status:   none")
			case cred.Complete():
				fmt.Fprintln(out, "status:   ready")
			default:
				fmt.Fprintln(out, "status:   awaiting preimage")
			}
			return nil
		},
	}
}

func newL402ChallengeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "challenge",
		Short: "Request a new L402 invoice and print the payment instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gateway := l402.NewGateway(rt.cfg.L402.MatadorURL, http.DefaultClient, rt.log)
			challenge, err := gateway.NewChallenge(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, l402.Instructions(challenge.Invoice))
			fmt.Fprintf(out, "token: %s\n", challenge.Token)
			return nil
		},
	}
}

func newL402SaveCommand(rt *runtime) *cobra.Command {
	var cred models.L402Credential

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Persist an L402 token and preimage to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cred.Token == "" {
				return errors.ErrConfiguration("--token is required")
			}
			identity, err := rt.identity(cmd.Context())
			if err != nil {
				return err
			}
			defer identity.Close()
			if identity.Store == nil {
				return errors.ErrConfiguration("l402 is disabled")
			}
			if err := identity.Store.Save(cmd.Context(), cred); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", identity.Store.Location())
			return nil
		},
	}
	cmd.Flags().StringVar(&cred.Token, "token", "", "L402 token")
	cmd.Flags().StringVar(&cred.Preimage, "preimage", "", "payment preimage")
	return cmd
}
