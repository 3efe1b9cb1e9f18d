package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/vatflow/internal/cli"
	"github.com/Veraticus/vatflow/internal/ingest"
	"github.com/Veraticus/vatflow/internal/model"
)

func entriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List and edit bookkeeping entries",
	}
	cmd.AddCommand(entriesListCmd(), entriesAddCmd(), entriesEditCmd(), entriesDeleteCmd())
	return cmd
}

func entriesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries with their classification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			period, _ := cmd.Flags().GetString("period")
			userID, _ := cmd.Flags().GetString("user")
			limit, _ := cmd.Flags().GetInt("limit")

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.closeQuietly()

			rows, err := a.entries().List(ctx, model.EntryFilter{Period: period, UserID: userID, Limit: limit})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No entries found"))
				return nil
			}

			table := make([][]string, 0, len(rows))
			for _, row := range rows {
				account, taxType, confidence := "-", "-", "-"
				if c := row.Classification; c != nil {
					account = c.AccountCode
					taxType = string(c.TaxType)
					confidence = strconv.FormatFloat(c.Confidence, 'f', 2, 64)
				}
				table = append(table, []string{
					strconv.FormatInt(row.Entry.ID, 10),
					row.Entry.TrxDate,
					row.Entry.Vendor,
					row.Entry.Amount.String(),
					row.Entry.VAT.String(),
					row.Entry.Memo,
					account,
					taxType,
					confidence,
				})
			}

			fmt.Fprintln(out, cli.RenderTable(
				[]string{"ID", "Date", "Vendor", "Amount", "VAT", "Memo", "Account", "Tax", "Conf"},
				table))
			fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("%d entries", len(rows))))
			return nil
		},
	}

	cmd.Flags().String("period", "", "period prefix (YYYY or YYYY-MM)")
	cmd.Flags().String("user", "", "only entries of this user")
	cmd.Flags().Int("limit", 0, "maximum rows (0 = all)")
	return cmd
}

func entriesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a transaction by hand",
		Example: `  vatflow entries add --date 2025-09-10 --vendor 스타커피 --type expense --amount 5500 --vat 500 --memo "팀 회식"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			in := ingest.DirectInput{}
			in.TrxDate, _ = cmd.Flags().GetString("date")
			in.Vendor, _ = cmd.Flags().GetString("vendor")
			in.Memo, _ = cmd.Flags().GetString("memo")
			in.UserID, _ = cmd.Flags().GetString("user")
			txType, _ := cmd.Flags().GetString("type")
			in.Type = model.Direction(txType)

			var err error
			if in.Amount, err = decimalFlag(cmd, "amount"); err != nil {
				return err
			}
			if in.VAT, err = decimalFlag(cmd, "vat"); err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.closeQuietly()

			entry, err := a.entries().Create(ctx, in)
			if err != nil {
				return entryError(err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created entry %d (%s %s)", entry.ID, entry.Direction(), entry.Amount)))
			return nil
		},
	}

	cmd.Flags().String("date", "", "transaction date (YYYY-MM-DD)")
	cmd.Flags().String("vendor", "", "counterparty name")
	cmd.Flags().String("type", "", "income or expense")
	cmd.Flags().String("amount", "", "amount, greater than zero")
	cmd.Flags().String("vat", "0", "VAT amount")
	cmd.Flags().String("memo", "", "memo")
	cmd.Flags().String("user", "", "owner of the entry")
	for _, name := range []string{"date", "vendor", "type", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func entriesEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an entry; amount or direction changes reclassify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return inputError(fmt.Sprintf("invalid entry id %q", args[0]), err)
			}

			var upd ingest.DirectUpdate
			flags := cmd.Flags()
			if flags.Changed("date") {
				v, _ := flags.GetString("date")
				upd.TrxDate = &v
			}
			if flags.Changed("vendor") {
				v, _ := flags.GetString("vendor")
				upd.Vendor = &v
			}
			if flags.Changed("memo") {
				v, _ := flags.GetString("memo")
				upd.Memo = &v
			}
			if flags.Changed("type") {
				v, _ := flags.GetString("type")
				dir := model.Direction(v)
				upd.Type = &dir
			}
			if flags.Changed("amount") {
				v, err := decimalFlag(cmd, "amount")
				if err != nil {
					return err
				}
				upd.Amount = &v
			}
			if flags.Changed("vat") {
				v, err := decimalFlag(cmd, "vat")
				if err != nil {
					return err
				}
				upd.VAT = &v
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.closeQuietly()

			result, err := a.entries().Update(ctx, id, upd)
			if err != nil {
				return entryError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Updated entry %d", id)))
			if result.Invalidated {
				fmt.Fprintln(out, cli.FormatInfo("Amount or direction changed, entry was reclassified"))
			}
			return nil
		},
	}

	cmd.Flags().String("date", "", "transaction date (YYYY-MM-DD)")
	cmd.Flags().String("vendor", "", "counterparty name")
	cmd.Flags().String("type", "", "income or expense")
	cmd.Flags().String("amount", "", "amount, greater than zero")
	cmd.Flags().String("vat", "", "VAT amount")
	cmd.Flags().String("memo", "", "memo")
	return cmd
}

func entriesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry and its classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return inputError(fmt.Sprintf("invalid entry id %q", args[0]), err)
			}

			out := cmd.OutOrStdout()
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				ok, err := cli.Confirm(ctx, cli.NewNonBlockingReader(os.Stdin), out, fmt.Sprintf("Delete entry %d?", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, cli.FormatInfo("Nothing deleted"))
					return nil
				}
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.closeQuietly()

			if err := a.entries().Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted entry %d", id)))
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	return cmd
}

// entryError turns a rejected direct entry into an input error.
func entryError(err error) error {
	if errors.Is(err, ingest.ErrInvalidInput) {
		return inputError("entry rejected", err)
	}
	return err
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, inputError(fmt.Sprintf("invalid --%s %q", name, raw), err)
	}
	return d, nil
}
