package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/benvon/wellness-sessions/internal/services/auth"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

const defaultIssuer = "wellness-sessions"

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var subject, email, name, issuer string
	var ttl time.Duration
	var save bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token",
		Long:  "Sign a token with the server's JWT_SECRET. Intended for local development where no identity provider is running.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET must be set to mint a token")
			}
			if issuer == "" {
				issuer = os.Getenv("JWT_ISSUER")
			}
			if issuer == "" {
				issuer = defaultIssuer
			}

			keyring, err := auth.NewKeyring(secret, issuer)
			if err != nil {
				return err
			}
			signed, expiry, err := keyring.Issue(subject, email, name, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			if !save {
				printf(cmd.OutOrStdout(), "%s\n", signed)
				return nil
			}

			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.store.Save(&oauth2.Token{AccessToken: signed, TokenType: "Bearer", Expiry: expiry}); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			printf(cmd.OutOrStdout(), "Token for %s stored for profile %s, expires %s\n", subject, a.cfg.Profile, expiry.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject, the user's provider id (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email claim, needed the first time a subject signs in")
	cmd.Flags().StringVar(&name, "name", "", "Display name claim")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Issuer claim (default JWT_ISSUER or wellness-sessions)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "Store the token instead of printing it")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
