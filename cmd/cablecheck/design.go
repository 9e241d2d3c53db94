package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cablecheck/internal/app"
	"cablecheck/internal/domain"
	"cablecheck/internal/repo"
	cablechecksdk "cablecheck/sdk/go"
)

func designCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "design",
		Short: "Manage stored designs",
		Long:  "Designs are reference records looked up by id (DESIGN-<digits>). Fields left unknown are reported as missing during validation.",
	}
	d.AddCommand(designListCmd())
	d.AddCommand(designShowCmd())
	d.AddCommand(designCreateCmd())
	d.AddCommand(designUpdateCmd())
	d.AddCommand(designDeleteCmd())
	d.AddCommand(designSeedCmd())
	return d
}

func designListCmd() *cobra.Command {
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List designs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				items []domain.Design
				total int
			)
			if c := remoteClient(); c != nil {
				page, err := c.Designs(cmd.Context(), skip, limit)
				if err != nil {
					return err
				}
				if err := convert(page.Items, &items); err != nil {
					return err
				}
				total = page.Total
			} else {
				err := withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					var err error
					if items, err = a.Engine.Repo.ListDesigns(ctx, skip, limit); err != nil {
						return err
					}
					total, err = a.Engine.Repo.CountDesigns(ctx)
					return err
				})
				if err != nil {
					return err
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"items": items, "total": total})
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			header := table.Row{"ID"}
			for _, f := range domain.RequiredFields {
				header = append(header, f)
			}
			tw.AppendHeader(header)
			for _, d := range items {
				row := table.Row{d.ID}
				attrs := d.Attributes()
				for _, f := range domain.RequiredFields {
					row = append(row, attributeText(attrs, f))
				}
				tw.AppendRow(row)
			}
			tw.AppendFooter(table.Row{fmt.Sprintf("%d of %d", len(items), total)})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "designs to skip")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum designs to list")
	return cmd
}

func designShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a design",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d domain.Design
			if c := remoteClient(); c != nil {
				res, err := c.Design(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := convert(res, &d); err != nil {
					return err
				}
			} else {
				err := withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					var err error
					d, err = a.Engine.GetDesign(ctx, args[0])
					return err
				})
				if err != nil {
					return err
				}
			}
			return printDesign(d)
		},
	}
}

func designCreateCmd() *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:     "create <id>",
		Short:   "Create a design",
		Example: `  cablecheck design create DESIGN-003 --set standard="IEC 60502-1" --set csa=25 --set insulation_material=XLPE`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseDesignSets(sets)
			if err != nil {
				return err
			}
			d := domain.Design{ID: args[0]}
			if err := convert(patch, &d); err != nil {
				return err
			}
			d.ID = args[0]
			if c := remoteClient(); c != nil {
				var in cablechecksdk.Design
				if err := convert(d, &in); err != nil {
					return err
				}
				res, err := c.CreateDesign(cmd.Context(), in)
				if err != nil {
					return err
				}
				if err := convert(res, &d); err != nil {
					return err
				}
				return printDesign(d)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				created, err := a.Engine.CreateDesign(ctx, d, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printDesign(created)
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable)")
	return cmd
}

func designUpdateCmd() *cobra.Command {
	var sets, clears []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update or clear design fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseDesignSets(sets)
			if err != nil {
				return err
			}
			for _, f := range clears {
				f = strings.ToLower(strings.TrimSpace(f))
				if !domain.IsRequiredField(f) {
					return fmt.Errorf("unknown field %q", f)
				}
				patch[f] = nil
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update; use --set or --clear")
			}
			var d domain.Design
			if c := remoteClient(); c != nil {
				res, err := c.UpdateDesign(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}
				if err := convert(res, &d); err != nil {
					return err
				}
				return printDesign(d)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.UpdateDesign(ctx, args[0], patch, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printDesign(d)
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable)")
	cmd.Flags().StringArrayVar(&clears, "clear", nil, "field to reset to unknown (repeatable)")
	return cmd
}

func designDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a design",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c := remoteClient(); c != nil {
				return c.DeleteDesign(cmd.Context(), args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteDesign(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func designSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample designs into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Engine.SeedDesigns(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Println("designs already present; nothing seeded")
					return nil
				}
				fmt.Printf("seeded %d designs\n", n)
				return nil
			})
		},
	}
}

// parseDesignSets reads field=value pairs, converting numeric fields.
func parseDesignSets(pairs []string) (repo.DesignPatch, error) {
	raw, err := parseAssignments(pairs)
	if err != nil {
		return nil, err
	}
	patch := repo.DesignPatch{}
	for k, v := range raw {
		if !domain.IsNumericField(k) {
			patch[k] = v
			continue
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number: %w", k, err)
		}
		patch[k] = f
	}
	return patch, nil
}

func printDesign(d domain.Design) error {
	if viper.GetBool("json") {
		return printJSON(d)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(d.ID)
	attrs := d.Attributes()
	for _, f := range domain.RequiredFields {
		tw.AppendRow(table.Row{f, attributeText(attrs, f)})
	}
	if d.UpdatedAt != "" {
		tw.AppendRow(table.Row{"updated", humanTime(d.UpdatedAt)})
	}
	tw.Render()
	return nil
}
