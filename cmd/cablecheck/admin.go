package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cablecheck/internal/app"
	"cablecheck/internal/domain"
	"cablecheck/internal/repo"
	"cablecheck/internal/server"
	"cablecheck/internal/workflow"
)

func historyCmd() *cobra.Command {
	h := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded validation runs",
	}
	h.AddCommand(historyListCmd())
	h.AddCommand(historyShowCmd())
	return h
}

func historyListCmd() *cobra.Command {
	var limit int
	var cursor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				runs []domain.Run
				next string
			)
			if c := remoteClient(); c != nil {
				page, err := c.Runs(cmd.Context(), limit, cursor)
				if err != nil {
					return err
				}
				if err := convert(page.Items, &runs); err != nil {
					return err
				}
				next = page.NextCursor
			} else {
				ts, id, _ := strings.Cut(cursor, "|")
				err := withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					var err error
					runs, err = a.Engine.Repo.ListRuns(ctx, limit+1, ts, id)
					return err
				})
				if err != nil {
					return err
				}
				if len(runs) > limit {
					next = runs[limit].CreatedAt + "|" + runs[limit].ID
					runs = runs[:limit]
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"items": runs, "next_cursor": next})
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Kind", "Design", "Route", "Missing", "Confidence", "When"})
			for _, r := range runs {
				conf := "-"
				if r.Confidence != nil {
					conf = fmt.Sprintf("%.0f%%", *r.Confidence*100)
				}
				tw.AppendRow(table.Row{r.ID, r.Kind, r.DesignID, r.Route, len(r.MissingAttributes), conf, humanTime(r.CreatedAt)})
			}
			tw.Render()
			if next != "" {
				fmt.Printf("more: --cursor %q\n", next)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue from a previous listing")
	return cmd
}

func historyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run domain.Run
			if c := remoteClient(); c != nil {
				res, err := c.Run(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := convert(res, &run); err != nil {
					return err
				}
			} else {
				err := withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					var err error
					run, err = a.Engine.Repo.GetRun(ctx, args[0])
					return err
				})
				if err != nil {
					return err
				}
			}
			if viper.GetBool("json") {
				return printJSON(run)
			}
			fmt.Printf("%s run %s, %s\n", run.Kind, run.ID, humanTime(run.CreatedAt))
			fmt.Printf("Input: %s\n", run.UserInput)
			return printResult(workflow.Result{
				RunID:             run.ID,
				UserInput:         run.UserInput,
				Route:             run.Route,
				DesignID:          run.DesignID,
				Attributes:        run.Attributes,
				MissingAttributes: run.MissingAttributes,
				Validation:        run.Validation,
				Reasoning:         run.Reasoning,
				Confidence:        run.Confidence,
				HITLMode:          run.HITLMode,
				HITLRequired:      run.HITLRequired,
				HITLInteractions:  run.Interactions,
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:   "events",
		Short: "Inspect the event log",
	}
	ev.AddCommand(eventsTailCmd())
	return ev
}

func eventsTailCmd() *cobra.Command {
	var n int
	var evtType string
	var follow bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListEvents(ctx, n, 0, evtType)
				if err != nil {
					return err
				}
				for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
					items[i], items[j] = items[j], items[i]
				}
				printEvents(items)
				if !follow {
					return nil
				}
				last, err := a.Engine.Repo.LatestEventID(ctx)
				if err != nil {
					return err
				}
				ticker := time.NewTicker(2 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					fresh, err := a.Engine.Repo.EventsAfter(ctx, 100, last)
					if err != nil {
						return err
					}
					var shown []domain.Event
					for _, e := range fresh {
						last = e.ID
						if evtType == "" || e.Type == evtType {
							shown = append(shown, e)
						}
					}
					printEvents(shown)
				}
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new events")
	return cmd
}

func printEvents(items []domain.Event) {
	if len(items) == 0 {
		return
	}
	if viper.GetBool("json") {
		_ = printJSON(items)
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Type", "Entity", "Actor", "When"})
	for _, e := range items {
		tw.AppendRow(table.Row{e.ID, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, humanTime(e.TS)})
	}
	tw.Render()
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP server",
	}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(apiKeyListCmd())
	k.AddCommand(apiKeyDeleteCmd())
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var subject, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				secret := "ck_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:      uuid.NewString(),
					Name:    name,
					Subject: subject,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := a.Engine.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "subject": key.Subject, "key": secret})
				}
				fmt.Printf("id:      %s\nsubject: %s\nkey:     %s\n", key.ID, key.Subject, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "principal the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Engine.Repo.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Subject", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.Subject, humanTime(k.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "token",
		Short: "Issue bearer tokens for the HTTP server",
	}
	t.AddCommand(tokenMintCmd())
	return t
}

func tokenMintCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign a JWT with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			secret := cfg.Auth.JWTSecret()
			if secret == "" {
				return fmt.Errorf("%s is not set", cfg.Auth.JWTSecretEnv)
			}
			tok, err := server.SignToken(secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// humanTime renders an RFC3339 timestamp relative to now.
func humanTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
