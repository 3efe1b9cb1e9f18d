package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/vatflow/internal/cli"
	"github.com/Veraticus/vatflow/internal/prep"
)

func checklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checklist",
		Short: "Generate the pre-filing checklist for a period",
		Long: `Detect gaps in a period's data (missing cash receipts, entries dated
outside the period) and record one open checklist item per finding.`,
		RunE: runChecklist,
	}

	cmd.Flags().String("period", "", "filing period (YYYY-MM)")
	cmd.Flags().String("tax-type", prep.DefaultTaxType, "tax the checklist is for")
	cmd.Flags().String("user", "", "owner of the checklist items")
	_ = cmd.MarkFlagRequired("period")

	return cmd
}

func runChecklist(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	period, _ := cmd.Flags().GetString("period")
	taxType, _ := cmd.Flags().GetString("tax-type")
	userID, _ := cmd.Flags().GetString("user")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.closeQuietly()

	checklist, err := a.checklist(userID)
	if err != nil {
		return err
	}

	result := checklist.Generate(ctx, period, taxType)
	out := cmd.OutOrStdout()

	if result.Fallback {
		fmt.Fprintln(out, cli.FormatWarning("Signal detection failed, showing the default checklist"))
	}

	var b strings.Builder
	if len(result.Signals) == 0 {
		b.WriteString(cli.FormatSuccess("No issues detected"))
	}
	for _, s := range result.Signals {
		fmt.Fprintf(&b, "%s %s\n", cli.BoldStyle.Render(s.Code), s.Description)
	}
	if result.Advice != "" {
		fmt.Fprintf(&b, "\n%s %s", cli.RobotIcon, result.Advice)
	}

	fmt.Fprintln(out, cli.RenderBox(fmt.Sprintf("%s %s checklist %s (%d items)", cli.ChecklistIcon, taxType, period, result.Generated),
		strings.TrimRight(b.String(), "\n")))
	return nil
}
