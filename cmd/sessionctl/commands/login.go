package commands

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var token string
	var expiresIn time.Duration
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a bearer token",
		Long:  "Store a bearer token in the credential store. The token is read from --token or, when omitted, from the first line of stdin. It is checked against /users/me unless --skip-check is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if token == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no token given: pass --token or pipe it on stdin")
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("token cannot be empty")
			}

			tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
			if expiresIn > 0 {
				tok.Expiry = time.Now().Add(expiresIn)
			}

			if !skipCheck {
				me, err := a.client.Me(cmd.Context(), tok)
				if err != nil {
					return fmt.Errorf("token was rejected: %w", err)
				}
				printf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", me.Email, me.ID)
			}

			if err := a.store.Save(tok); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			printf(cmd.OutOrStdout(), "Token stored for profile %s\n", a.cfg.Profile)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token to store (default: read from stdin)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Token lifetime, used to expire the stored copy")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Store the token without calling the API")

	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.Clear(); err != nil {
				return fmt.Errorf("failed to clear token: %w", err)
			}
			printf(cmd.OutOrStdout(), "Signed out of profile %s\n", a.cfg.Profile)
			return nil
		},
	}
}
