package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/vatflow/internal/cli"
	"github.com/Veraticus/vatflow/internal/tax"
)

// Aggregation views.
const (
	viewClassification = "classification"
	viewSign           = "sign"
)

func estimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the VAT position of a period",
		Long: `Estimate VAT for a period.

The classification view (default) sums classified entries: non-deductible
VAT is reported on its own, memos containing 매출 count as sales and
everything else as purchases. The sign view ignores classification and
splits entries by the sign of their amount. A refund position is shown as
a payable of zero in both views.`,
		RunE: runEstimate,
	}

	cmd.Flags().String("period", "", "period prefix (YYYY or YYYY-MM)")
	cmd.Flags().String("user", "", "only entries of this user")
	cmd.Flags().String("view", viewClassification, "classification or sign")
	_ = cmd.MarkFlagRequired("period")

	return cmd
}

func runEstimate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	period, _ := cmd.Flags().GetString("period")
	userID, _ := cmd.Flags().GetString("user")
	view, _ := cmd.Flags().GetString("view")

	if view != viewClassification && view != viewSign {
		return inputError(fmt.Sprintf("unknown view %q (want %s or %s)", view, viewClassification, viewSign), nil)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.closeQuietly()

	out := cmd.OutOrStdout()
	agg := a.aggregator()

	if view == viewSign {
		s := agg.Summary(ctx, period, userID)
		fmt.Fprintln(out, cli.RenderBox(cli.ChartIcon+" VAT summary "+period, fmt.Sprintf(
			"Entries:        %d\nTotal income:   %s\nTotal expense:  %s\nNet profit:     %s\n\nSales tax:      %s\nPurchase tax:   %s\nPayable tax:    %s",
			s.EntryCount,
			s.TotalIncome.StringFixed(2), s.TotalExpense.StringFixed(2), s.NetProfit.StringFixed(2),
			s.SalesTax.StringFixed(2), s.PurchaseTax.StringFixed(2), s.PayableTax.StringFixed(2))))
		return nil
	}

	e := agg.Estimate(ctx, period, userID)
	if tax.IsZero(e) {
		fmt.Fprintln(out, cli.FormatInfo("No classified entries for "+period))
	}
	fmt.Fprintln(out, cli.RenderBox(cli.ChartIcon+" VAT estimate "+period, fmt.Sprintf(
		"Sales VAT:           %s\nPurchase VAT:        %s\nNon-deductible VAT:  %s\nPayable VAT:         %s",
		e.SalesVAT.StringFixed(2), e.PurchaseVAT.StringFixed(2),
		e.NonDeductibleVAT.StringFixed(2), e.PayableVAT.StringFixed(2))))
	return nil
}
