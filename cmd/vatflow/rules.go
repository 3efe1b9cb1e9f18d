package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/vatflow/internal/cli"
	"github.com/Veraticus/vatflow/internal/config"
	"github.com/Veraticus/vatflow/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Rule table commands",
	}

	check := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a rule table and print its statistics",
		Long: `Validate a rule table document (JSON or YAML). Without an argument the
configured rules.path is checked, or the built-in table when none is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ExpandPath(viper.GetString("rules.path"))
			if len(args) == 1 {
				path = args[0]
			}

			table, err := rules.LoadOrDefault(path)
			if err != nil {
				return err
			}

			source := path
			if source == "" {
				source = "built-in"
			}

			s := table.Stats()
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.SuccessIcon+" Rule table "+s.Version, fmt.Sprintf(
				"Source:                    %s\nVendor hints:              %d\nNon-deductible categories: %d (%d keywords)\nAccount mappings:          %d\nZero-rated keywords:       %d\nExempt keywords:           %d\nSales keywords:            %d\nPurchase keywords:         %d",
				source, s.VendorHints, s.NonDeductibleCategories, s.NonDeductibleKeywords,
				s.AccountMappings, s.ZeroRatedKeywords, s.ExemptKeywords, s.SalesKeywords, s.PurchaseKeywords)))
			return nil
		},
	}

	cmd.AddCommand(check)
	return cmd
}
