package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benvon/wellness-sessions/internal/autosave"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const draftHelp = `Commands:
  title <text>   set the title
  tag <tag>      add a tag
  untag <tag>    remove a tag
  file <url>     set the session file URL
  show           print the draft and save status
  flush          save now instead of waiting
  quit           save pending changes and exit
`

func newDraftCmd(opts *rootOptions) *cobra.Command {
	var resume string

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Edit a draft session with autosave",
		Long:  "Edit a draft session line by line on stdin. Changes are saved automatically once editing pauses; pending changes are saved on quit or end of input.\n\n" + draftHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := opts.load(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			out := &syncWriter{w: cmd.OutOrStdout()}
			events := make(chan autosave.State, 8)
			var eventsMu sync.Mutex
			eventsClosed := false

			recOpts := []autosave.Option{
				autosave.WithDebounce(a.cfg.Autosave.Debounce),
				autosave.WithStatusDecay(a.cfg.Autosave.StatusDecay),
				autosave.WithRequestTimeout(a.cfg.Autosave.RequestTimeout),
				autosave.WithLogger(a.logger),
				autosave.WithListener(func(s autosave.State) {
					eventsMu.Lock()
					defer eventsMu.Unlock()
					if !eventsClosed {
						events <- s
					}
				}),
			}

			if resume != "" {
				tok, err := a.token()
				if err != nil {
					return err
				}
				s, err := a.client.Get(ctx, tok, resume)
				if err != nil {
					return fmt.Errorf("failed to load draft %s: %w", resume, err)
				}
				if s.IsPublished() {
					return fmt.Errorf("session %s is already published", resume)
				}
				recOpts = append(recOpts, autosave.WithInitialDraft(s.ID.String(), autosave.Draft{
					Title:         s.Title,
					Tags:          s.Tags,
					FileReference: s.JSONFileURL,
				}))
				printf(out, "Resuming draft %s\n", s.ID)
			}

			rec := autosave.New(a.store, a.client, recOpts...)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				printStates(out, events)
				return nil
			})
			g.Go(func() error {
				defer func() {
					eventsMu.Lock()
					eventsClosed = true
					close(events)
					eventsMu.Unlock()
				}()
				defer rec.Close()

				inputErr := edit(gctx, cmd.InOrStdin(), out, rec)
				if inputErr != nil {
					a.logger.Warn("draft_input_failed", zap.Error(inputErr))
					printf(out, "Input stopped: %v\n", inputErr)
				}

				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Autosave.RequestTimeout)
				defer cancel()
				if err := rec.Flush(flushCtx); err != nil {
					return errors.Join(inputErr, fmt.Errorf("pending changes were not saved: %w", err))
				}
				if id := rec.DraftID(); id != "" {
					printf(out, "Draft %s\n", id)
				}
				if inputErr != nil {
					return fmt.Errorf("failed to read editor input: %w", inputErr)
				}
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&resume, "resume", "", "ID of an existing draft to keep editing")

	return cmd
}

// edit applies editor lines from in until quit or end of input. A read
// failure is returned; quit and end of input are not errors.
func edit(ctx context.Context, in io.Reader, out io.Writer, rec *autosave.Reconciler) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		verb, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(verb) {
		case "title":
			rec.SetTitle(arg)
		case "tag":
			rec.AddTag(arg)
		case "untag":
			rec.RemoveTag(arg)
		case "file":
			rec.SetFileReference(arg)
		case "show":
			d := rec.Draft()
			st := rec.State()
			printf(out, "title: %s\ntags: %s\nfile: %s\nstatus: %s\n",
				d.Title, strings.Join(d.Tags, ", "), d.FileReference, describe(st))
		case "flush":
			if err := rec.Flush(ctx); err != nil {
				printf(out, "Save failed: %v\n", err)
			}
		case "quit", "exit":
			return nil
		case "help":
			printf(out, "%s", draftHelp)
		default:
			printf(out, "Unknown command %q, type help\n", verb)
		}
	}
	return scanner.Err()
}

// printStates prints one line per status change until events is closed
func printStates(out io.Writer, events <-chan autosave.State) {
	var last autosave.State
	for st := range events {
		if st.Status == last.Status && st.DraftID == last.DraftID {
			last = st
			continue
		}
		last = st
		if st.Status == autosave.StatusIdle {
			continue
		}
		printf(out, "[%s] %s\n", time.Now().Format(time.TimeOnly), describe(st))
	}
}

func describe(st autosave.State) string {
	label := st.Label()
	if label == "" {
		label = "Up to date"
	}
	if st.Status == autosave.StatusError && st.LastError != nil {
		label += ": " + st.LastError.Error()
	}
	return label
}

// syncWriter serializes writes from the editor and status goroutines
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
