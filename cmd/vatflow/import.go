package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/vatflow/internal/cli"
	"github.com/Veraticus/vatflow/internal/ingest"
	"github.com/Veraticus/vatflow/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import statements and hometax exports",
		Long: `Import source documents. Each file is stored once (identified by its
SHA-256 checksum), its rows become entries, and the entries are classified
right away. Classification problems are reported but never undo an import.`,
	}

	cmd.PersistentFlags().String("period", "", "filing period the upload belongs to (YYYY-MM)")
	cmd.PersistentFlags().String("user", "", "owner of the imported entries")

	csvCmd := &cobra.Command{
		Use:   "csv <file>",
		Short: "Import a hometax CSV export (date,vendor,amount,vat,memo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _ := cmd.Flags().GetString("source")
			return runImport(cmd, args, ingest.FormatCSV, source)
		},
	}
	csvCmd.Flags().String("source", model.SourceCSV, "source label stored with the file")

	ofxCmd := &cobra.Command{
		Use:   "ofx <files...>",
		Short: "Import OFX/QFX bank or card statements",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args, ingest.FormatOFX, model.SourceOFX)
		},
	}

	cmd.AddCommand(csvCmd, ofxCmd)
	return cmd
}

func runImport(cmd *cobra.Command, files []string, format ingest.Format, source string) error {
	ctx := cmd.Context()
	period, _ := cmd.Flags().GetString("period")
	userID, _ := cmd.Flags().GetString("user")
	out := cmd.OutOrStdout()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.closeQuietly()

	importer := a.importer()
	opts := ingest.Options{Period: period, Source: source, UserID: userID}

	var failed int
	for _, path := range files {
		result, err := importer.ImportFile(ctx, path, format, opts)
		switch {
		case err != nil:
			failed++
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", path, err)))
			continue
		case result.Duplicate:
			fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s was already imported as %s, skipped", path, result.File.ID)))
			continue
		}

		content := fmt.Sprintf("File ID: %s\nStored entries: %d\nClassified: %d\nSize: %d bytes",
			result.File.ID, result.Stored, result.Classified, result.File.SizeBytes)
		if result.ClassifyErr != nil {
			content += "\n" + cli.FormatWarning("Classification incomplete: "+result.ClassifyErr.Error())
		}
		fmt.Fprintln(out, cli.RenderBox("Imported "+result.File.Filename, content))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to import", failed, len(files))
	}
	return nil
}
