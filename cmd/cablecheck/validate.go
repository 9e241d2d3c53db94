package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cablecheck/internal/app"
	"cablecheck/internal/domain"
	"cablecheck/internal/workflow"
)

func validateCmd() *cobra.Command {
	var hitl, interactive bool
	cmd := &cobra.Command{
		Use:   "validate <request>",
		Short: "Validate a design id or a free-text cable description",
		Long:  "Validate routes the request to a stored design or extracts attributes from the text, then checks them. With --hitl missing attributes are reported for a later resume; with --interactive they are asked for on the terminal.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			if c := remoteClient(); c != nil {
				if interactive {
					return fmt.Errorf("--interactive is not available with --server")
				}
				res, err := c.Validate(cmd.Context(), input, hitl)
				if err != nil {
					return err
				}
				var out workflow.Result
				if err := convert(res, &out); err != nil {
					return err
				}
				return printResult(out)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					res workflow.Result
					err error
				)
				if interactive {
					asker := newPromptAsker(cmd.InOrStdin(), cmd.ErrOrStderr())
					res, err = a.Engine.Interactive(ctx, input, asker, viper.GetString("actor-id"))
				} else {
					res, err = a.Engine.Validate(ctx, input, hitl, viper.GetString("actor-id"))
				}
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().BoolVar(&hitl, "hitl", false, "report missing attributes instead of guessing")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "ask for missing attributes on the terminal")
	return cmd
}

func resumeCmd() *cobra.Command {
	var answers []string
	cmd := &cobra.Command{
		Use:     "resume <request>",
		Short:   "Re-run a validation with answers for missing attributes",
		Example: `  cablecheck resume "Validate DESIGN-002" --answer conductor_class="Class 2" --answer insulation_thickness=1.0`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			responses, err := parseAssignments(answers)
			if err != nil {
				return err
			}
			if c := remoteClient(); c != nil {
				res, err := c.Resume(cmd.Context(), input, responses)
				if err != nil {
					return err
				}
				var out workflow.Result
				if err := convert(res, &out); err != nil {
					return err
				}
				return printResult(out)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Resume(ctx, input, responses, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "field=value answer (repeatable)")
	return cmd
}

// parseAssignments turns field=value pairs into a map keyed by field.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.ToLower(strings.TrimSpace(k))
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid %q, want field=value", p)
		}
		if !domain.IsRequiredField(k) {
			return nil, fmt.Errorf("unknown field %q (want one of %s)", k, strings.Join(domain.RequiredFields, ", "))
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// promptAsker reads answers line by line. An empty line or "skip" declines
// the field.
type promptAsker struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPromptAsker(in io.Reader, out io.Writer) *promptAsker {
	return &promptAsker{in: bufio.NewScanner(in), out: out}
}

func (p *promptAsker) Ask(ctx context.Context, field, hint string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	label := strings.ReplaceAll(field, "_", " ")
	if hint != "" {
		fmt.Fprintf(p.out, "%s (%s): ", label, hint)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	if !p.in.Scan() {
		fmt.Fprintln(p.out)
		return "", false
	}
	answer := strings.TrimSpace(p.in.Text())
	if answer == "" || strings.EqualFold(answer, "skip") {
		return "", false
	}
	return answer, true
}

func printResult(res workflow.Result) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	if res.DesignID != "" {
		fmt.Printf("Design: %s (route %s)\n", res.DesignID, res.Route)
	} else {
		fmt.Printf("Route: %s\n", res.Route)
	}
	if len(res.Validation) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Field", "Value", "Status", "Expected", "Comment"})
		for _, item := range res.Validation {
			tw.AppendRow(table.Row{item.Field, attributeText(res.Attributes, item.Field), statusText(item.Status), item.Expected, item.Comment})
		}
		tw.SetColumnConfigs([]table.ColumnConfig{{Number: 5, WidthMax: 60}})
		tw.Render()
	}
	if len(res.MissingAttributes) > 0 {
		fmt.Printf("Missing: %s\n", strings.Join(res.MissingAttributes, ", "))
	}
	if res.Reasoning != nil {
		fmt.Printf("Reasoning: %s\n", *res.Reasoning)
	}
	if res.Confidence != nil {
		fmt.Printf("Confidence: %.0f%%\n", *res.Confidence*100)
	}
	if res.HITLRequired {
		fmt.Println("Answers needed: rerun with 'cablecheck resume' and --answer field=value.")
	}
	if res.RunID != "" {
		fmt.Printf("Run: %s\n", res.RunID)
	}
	return nil
}

func attributeText(attrs domain.Attributes, field string) string {
	if attrs.IsMissing(field) {
		return "-"
	}
	return fmt.Sprint(attrs[field])
}

func statusText(s domain.Status) string {
	switch s {
	case domain.StatusPass:
		return text.FgGreen.Sprint(string(s))
	case domain.StatusFail:
		return text.FgRed.Sprint(string(s))
	default:
		return text.FgYellow.Sprint(string(s))
	}
}
