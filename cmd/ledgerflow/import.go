package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pmarsh-dev/ledgerflow/internal/cli"
	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/engine"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

func importCmd() *cobra.Command {
	var (
		commit    bool
		dryRun    bool
		selectAll bool
		offline   bool
		multi     bool
	)

	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Import transactions from receipts, PDFs, CSV exports, or JSON backups",
		Long: `Runs the import pipeline over one or more files: classify, extract,
categorize, and flag duplicates against your ledger. With --commit the
selected transactions are written; without it the result is a preview.

Pass several photos of one long receipt together with --multi to merge
their overlap zones into a single item list.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ledger, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			q, qStore, err := openQueue(ledger, func() bool { return !offline }, nil)
			if err != nil {
				return err
			}
			defer func() { _ = qStore.Close() }()

			local := buildLocal()
			cloud := buildCloud()
			orchestrator := buildOrchestrator(ctx, ledger, q, local, cloud)
			cond := conditions(offline, local, cloud)

			requests, err := buildRequests(args, multi)
			if err != nil {
				return err
			}

			for _, req := range requests {
				req.Conditions = cond
				result, err := orchestrator.Process(ctx, req)
				if err != nil {
					fmt.Println(cli.FormatError(fmt.Sprintf("%s: %v", req.FileName, err)))
					continue
				}

				printResult(result)

				if dryRun || !commit {
					continue
				}
				if selectAll {
					for i := range result.Transactions {
						result.Transactions[i].Selected = true
					}
				}
				if err := commitResult(cmd, orchestrator, result); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&commit, "commit", false, "commit selected transactions to the ledger")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview only, never write")
	cmd.Flags().BoolVar(&selectAll, "select-all", false, "include transactions flagged as duplicates")
	cmd.Flags().BoolVar(&offline, "offline", false, "treat the network as unavailable")
	cmd.Flags().BoolVar(&multi, "multi", false, "treat all image arguments as photos of one receipt")
	return cmd
}

// buildRequests maps file arguments onto import requests. With multi,
// every image argument folds into a single multi-photo request.
func buildRequests(args []string, multi bool) ([]engine.ImportRequest, error) {
	var requests []engine.ImportRequest
	var multiPayloads [][]byte
	var multiName, multiMime string

	for _, path := range args {
		payload, err := os.ReadFile(path) // #nosec G304 -- user-supplied import file
		if err != nil {
			return nil, &common.UserError{UserMessage: fmt.Sprintf("cannot read %s", path), Err: err}
		}

		name := filepath.Base(path)
		mimeType := mime.TypeByExtension(filepath.Ext(path))

		if multi && isImage(path) {
			multiPayloads = append(multiPayloads, payload)
			if multiName == "" {
				multiName, multiMime = name, mimeType
			}
			continue
		}

		requests = append(requests, engine.ImportRequest{
			FileName: name,
			MimeType: mimeType,
			Payloads: [][]byte{payload},
		})
	}

	if len(multiPayloads) > 0 {
		requests = append(requests, engine.ImportRequest{
			FileName: multiName,
			MimeType: multiMime,
			Payloads: multiPayloads,
		})
	}
	return requests, nil
}

func isImage(path string) bool {
	switch filepath.Ext(path) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	default:
		return false
	}
}

func printResult(result model.ImportResult) {
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("%s %s", cli.ReceiptIcon, result.FileName)))
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("type=%s source=%s confidence=%.2f", result.FileType, result.Source, result.Confidence)))

	for _, warning := range result.Warnings {
		fmt.Println(cli.FormatWarning(warning.Message))
	}

	for _, txn := range result.Transactions {
		line := fmt.Sprintf("%s  %s %s  %s (%s)",
			txn.Date.Format("2006-01-02"), txn.Amount.StringFixed(2), txn.Currency, txn.Description, txn.SuggestedCategoryID)
		switch {
		case txn.IsDuplicate:
			fmt.Println(cli.SubtleStyle.Render(cli.DuplicateIcon + " " + line + " [duplicate]"))
		case txn.Type == model.TypeIncome:
			fmt.Println(cli.SuccessStyle.Render("+ " + line))
		default:
			fmt.Println("- " + line)
		}
	}

	if result.MultiImage != nil {
		fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("merged %d overlap item(s) across %d images",
			result.MultiImage.ItemsMerged, result.MultiImage.TotalImages)))
	}
}

func commitResult(cmd *cobra.Command, orchestrator *engine.Orchestrator, result model.ImportResult) error {
	selected := 0
	for _, txn := range result.Transactions {
		if txn.Selected {
			selected++
		}
	}
	if selected == 0 {
		fmt.Println(cli.FormatInfo("nothing selected to commit"))
		return nil
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("committing"),
		progressbar.OptionClearOnFinish())

	stats, err := orchestrator.Confirm(cmd.Context(), result, func(percent int) {
		_ = bar.Set(percent)
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("committed %d transaction(s), %d error(s), %d duplicate(s) skipped",
		stats.SuccessCount, stats.ErrorCount, stats.DuplicatesSkipped)))
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("income %s, expenses %s",
		stats.TotalIncome.StringFixed(2), stats.TotalExpenses.StringFixed(2))))
	for _, rowErr := range stats.Errors {
		fmt.Println(cli.FormatError(fmt.Sprintf("row %d (%s): %s", rowErr.Row, rowErr.OriginalValue, rowErr.Message)))
	}
	return nil
}
