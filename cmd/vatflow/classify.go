package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/vatflow/internal/cli"
	"github.com/Veraticus/vatflow/internal/engine"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify entries into accounts and VAT treatments",
		Long: `Classify stored entries with the keyword rules. Entries whose rule
confidence is below 0.6 are escalated to the language model; if the model
is unavailable or answers with invalid JSON the rule guess is kept.

Without --force only unclassified entries are processed. --file, --period
and --ids always reclassify what they select.

Examples:
  vatflow classify                       # all unclassified entries
  vatflow classify --period 2025-09      # reclassify September 2025
  vatflow classify --ids 3,7,9           # reclassify specific entries`,
		RunE: runClassify,
	}

	cmd.Flags().String("file", "", "raw file ID to classify")
	cmd.Flags().String("period", "", "period prefix (YYYY or YYYY-MM)")
	cmd.Flags().String("ids", "", "comma separated entry IDs")
	cmd.Flags().String("user", "", "only entries of this user")
	cmd.Flags().Bool("force", false, "reclassify entries that already have a classification")

	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	fileID, _ := cmd.Flags().GetString("file")
	period, _ := cmd.Flags().GetString("period")
	rawIDs, _ := cmd.Flags().GetString("ids")
	userID, _ := cmd.Flags().GetString("user")
	force, _ := cmd.Flags().GetBool("force")

	ids, err := parseIDs(rawIDs)
	if err != nil {
		return err
	}

	scope := engine.Scope{
		FileID: fileID,
		Period: period,
		UserID: userID,
		IDs:    ids,
		Force:  force || fileID != "" || period != "" || len(ids) > 0,
	}

	out := cmd.OutOrStdout()
	handler := cli.NewInterruptHandler(out, "vatflow classify"+resumeArgs(period, fileID))
	ctx, stop := handler.HandleInterrupts(cmd.Context())
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.closeQuietly()

	fmt.Fprintln(out, cli.FormatTitle("Classifying entries"))
	progress := cli.NewProgress(out, "Classifying entries...")

	classified, err := classifySelected(ctx, a.engine(progress.Report), scope)
	if err != nil {
		if handler.WasInterrupted() || errors.Is(err, ctx.Err()) {
			fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Stopped after %d entries", classified)))
			return nil
		}
		return err
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Classified %d entries", classified)))
	return nil
}

// scopeClassifier is the part of the engine the classify command drives.
type scopeClassifier interface {
	ClassifyFile(ctx context.Context, fileID string) (int, error)
	ClassifyPeriod(ctx context.Context, period string) (int, error)
	ClassifyEntries(ctx context.Context, ids []int64) (int, error)
	ClassifyScope(ctx context.Context, scope engine.Scope) (int, error)
}

// classifySelected sends single-selector runs to the matching engine entry
// point and everything else to ClassifyScope.
func classifySelected(ctx context.Context, eng scopeClassifier, scope engine.Scope) (int, error) {
	if scope.UserID == "" {
		switch {
		case scope.FileID != "" && scope.Period == "" && len(scope.IDs) == 0:
			return eng.ClassifyFile(ctx, scope.FileID)
		case scope.Period != "" && scope.FileID == "" && len(scope.IDs) == 0:
			return eng.ClassifyPeriod(ctx, scope.Period)
		case len(scope.IDs) > 0 && scope.FileID == "" && scope.Period == "":
			return eng.ClassifyEntries(ctx, scope.IDs)
		}
	}
	return eng.ClassifyScope(ctx, scope)
}

// resumeArgs rebuilds the scope flags for the interrupt hint.
func resumeArgs(period, fileID string) string {
	switch {
	case fileID != "":
		return " --file " + fileID
	case period != "":
		return " --period " + period
	default:
		return ""
	}
}

func parseIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, inputError(fmt.Sprintf("invalid entry id %q in --ids", p), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
