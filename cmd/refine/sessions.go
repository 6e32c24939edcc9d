package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/pkg/formatting"
	"github.com/JaimeStill/refine/pkg/pagination"
)

var errArchiveDisabled = errors.New("session archives require [storage] connection_string")

func sessionsCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage recorded sessions",
	}

	cmd.AddCommand(
		sessionsListCmd(global),
		sessionsSearchCmd(global),
		sessionsShowCmd(global),
		sessionsRenameCmd(global),
		sessionsDeleteCmd(global),
		sessionsDeleteAllCmd(global),
		sessionsArchiveCmd(global),
	)
	return cmd
}

// withApp opens the app for a command that does not run the pipeline.
func withApp(global *globalOptions, fn func(app *App) error) (err error) {
	app, err := open(global)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, app.Close())
	}()
	return fn(app)
}

func sessionsListCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <document>",
		Short: "List the sessions of a document, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(global, func(app *App) error {
				doc, err := app.selectDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				st, err := app.store.GetState()
				if err != nil {
					return err
				}

				if len(st.Sessions) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "no sessions for %s\n", doc.ID)
					return nil
				}
				return writeSummaries(cmd.OutOrStdout(), st.Sessions)
			})
		},
	}
}

func sessionsSearchCmd(global *globalOptions) *cobra.Command {
	var (
		document string
		since    string
		sort     string
		page     int
		size     int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search sessions by name or document id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filters sessions.Filters
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				filters.UpdatedSince = &t
			}

			var search string
			if len(args) == 1 {
				search = args[0]
			}

			return withApp(global, func(app *App) error {
				if document != "" {
					doc, err := app.loader.Load(document)
					if err != nil {
						return err
					}
					filters.DocumentID = &doc.ID
				}

				req := pagination.NewPageRequest(page, size, search, sort, app.cfg.Pagination)
				return searchSessions(cmd.Context(), app.infra.Sessions, req, filters, cmd.OutOrStdout())
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&document, "document", "", "Only sessions of this document file")
	flags.StringVar(&since, "since", "", "Only sessions updated within a duration (24h) or since a date (2006-01-02 or RFC3339)")
	flags.StringVar(&sort, "sort", "", "Sort fields, e.g. -UpdatedAt,Name (postgres backend)")
	flags.IntVar(&page, "page", 1, "Page number")
	flags.IntVar(&size, "size", 0, "Page size (0 uses the configured default)")
	return cmd
}

// searchSessions prints one page of matching summaries with a paging footer.
func searchSessions(ctx context.Context, sys sessions.System, req pagination.PageRequest, filters sessions.Filters, out io.Writer) error {
	result, err := sys.Search(ctx, req, filters)
	if err != nil {
		return err
	}

	if result.Total == 0 {
		fmt.Fprintln(out, "no matching sessions")
		return nil
	}
	if len(result.Data) > 0 {
		if err := writeSummaries(out, result.Data); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "page %d of %d (%d sessions)\n", result.Page, result.TotalPages, result.Total)
	return nil
}

// parseSince accepts a lookback duration relative to now or an absolute
// date in RFC3339 or 2006-01-02 form.
func parseSince(v string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(v); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since %q: duration must be positive", v)
		}
		return now.Add(-d), nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: want a duration, a date, or an RFC3339 time", v)
}

func sessionsShowCmd(global *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's stage results and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}

			return withApp(global, func(app *App) error {
				s, err := app.infra.Sessions.Find(cmd.Context(), id)
				if err != nil {
					return err
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(s)
				}
				return writeSession(cmd.OutOrStdout(), s)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full session as JSON")
	return cmd
}

func sessionsRenameCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> [name]",
		Short: "Name a session; omit the name to clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}
			var name string
			if len(args) == 2 {
				name = args[1]
			}

			return withApp(global, func(app *App) error {
				return app.manager.RenameSession(cmd.Context(), id, name)
			})
		},
	}
}

func sessionsDeleteCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session, archiving it first when storage is configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}

			return withApp(global, func(app *App) error {
				if !app.manager.DeleteSession(cmd.Context(), id) {
					return fmt.Errorf("session %s was not deleted", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return nil
			})
		},
	}
}

func sessionsDeleteAllCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-all <document>",
		Short: "Delete every session of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(global, func(app *App) error {
				doc, err := app.selectDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				n, err := app.manager.DeleteAllSessions(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d sessions for %s\n", n, doc.ID)
				return nil
			})
		},
	}
}

func sessionsArchiveCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <session-id>",
		Short: "Copy a session to blob storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}

			return withApp(global, func(app *App) error {
				if app.infra.Archiver == nil {
					return errArchiveDisabled
				}
				s, err := app.infra.Sessions.Find(cmd.Context(), id)
				if err != nil {
					return err
				}
				key, err := app.infra.Archiver.Archive(cmd.Context(), s)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <document>",
			Short: "List archived sessions of a document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(global, func(app *App) error {
					if app.infra.Archiver == nil {
						return errArchiveDisabled
					}
					doc, err := app.loader.Load(args[0])
					if err != nil {
						return err
					}
					objects, err := app.infra.Archiver.List(cmd.Context(), doc.ID)
					if err != nil {
						return err
					}

					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
					for _, o := range objects {
						fmt.Fprintf(w, "%s\t%s\t%s\n", o.Key, formatting.FormatBytes(o.Size), o.LastModified.Local().Format(time.DateTime))
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "restore <key>",
			Short: "Restore an archived session as a new session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(global, func(app *App) error {
					if app.infra.Archiver == nil {
						return errArchiveDisabled
					}
					s, err := app.infra.Archiver.Reinstate(cmd.Context(), app.infra.Sessions, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", s.ID)
					return nil
				})
			},
		},
	)
	return cmd
}

func writeSummaries(out io.Writer, list []sessions.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tITERATIONS\tUPDATED")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.DisplayName(), s.IterationCount, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func writeSession(out io.Writer, s *sessions.Session) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", s.ID)
	fmt.Fprintf(w, "Name\t%s\n", s.Summary().DisplayName())
	fmt.Fprintf(w, "Document\t%s (%s)\n", s.DocumentLabel, s.DocumentID)
	fmt.Fprintf(w, "Fields\t%v\n", s.FieldSelection)
	fmt.Fprintf(w, "Iterations\t%d\n", s.IterationCount)
	fmt.Fprintf(w, "History\t%d results\n", len(s.IterationHistory))
	if s.Guidance != "" {
		fmt.Fprintf(w, "Guidance\t%s\n", s.Guidance)
	}
	fmt.Fprintf(w, "Updated\t%s\n", s.UpdatedAt.Local().Format(time.DateTime))
	if err := w.Flush(); err != nil {
		return err
	}

	for _, stage := range stages.All() {
		r, ok := s.StageResults[stage]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "\n== %s (%s) ==\n", stage, r.Status())
		if r.Failed() {
			fmt.Fprintln(out, r.Error)
			continue
		}
		fmt.Fprintln(out, r.Output)
	}
	return nil
}
