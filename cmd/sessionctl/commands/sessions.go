package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/benvon/wellness-sessions/internal/apiclient"
	"github.com/benvon/wellness-sessions/internal/models"
	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var published bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your sessions",
		Long:  "List your drafts and published sessions, or with --published the public catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			var sessions []*models.Session
			if published {
				sessions, err = a.client.ListPublished(cmd.Context())
			} else {
				tok, tokErr := a.token()
				if tokErr != nil {
					return tokErr
				}
				sessions, err = a.client.ListMine(cmd.Context(), tok)
			}
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			if len(sessions) == 0 {
				printf(cmd.OutOrStdout(), "No sessions\n")
				return nil
			}
			return writeSessions(cmd.OutOrStdout(), sessions)
		},
	}

	cmd.Flags().BoolVar(&published, "published", false, "List the public catalogue instead of your own sessions")

	return cmd
}

func newPublishCmd(opts *rootOptions) *cobra.Command {
	var title, file string
	var tags []string

	cmd := &cobra.Command{
		Use:   "publish <id>",
		Short: "Publish a draft session",
		Long:  "Publish one of your draft sessions. Title, tags and file can be set in the same call; a published session needs a title and a file URL.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			tok, err := a.token()
			if err != nil {
				return err
			}

			req := apiclient.PublishRequest{ID: args[0]}
			if cmd.Flags().Changed("title") {
				req.Title = &title
			}
			if cmd.Flags().Changed("tag") {
				req.Tags = &tags
			}
			if cmd.Flags().Changed("file") {
				req.JSONFileURL = &file
			}

			s, err := a.client.Publish(cmd.Context(), tok, req)
			if err != nil {
				return fmt.Errorf("failed to publish session: %w", err)
			}
			printf(cmd.OutOrStdout(), "Published %s %q\n", s.ID, s.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Set the title before publishing")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replace the tags before publishing (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "Set the session file URL before publishing")

	return cmd
}

func writeSessions(w io.Writer, sessions []*models.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	printf(tw, "ID\tSTATUS\tTITLE\tTAGS\tUPDATED\n")
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		printf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Status, title, strings.Join(s.Tags, ","), s.UpdatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}
