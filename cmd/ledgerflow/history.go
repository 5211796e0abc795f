package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmarsh-dev/ledgerflow/internal/cli"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent imports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			records, err := ledger.ImportHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println(cli.SubtleStyle.Render("no imports yet"))
				return nil
			}

			fmt.Println(cli.TitleStyle.Render("Import history"))
			for _, rec := range records {
				status := cli.SuccessStyle.Render(string(rec.Status))
				if rec.Status == model.ImportFailed {
					status = cli.ErrorStyle.Render(string(rec.Status))
				}
				fmt.Printf("%s  %s  %s (%s)\n",
					rec.StartedAt.Format("2006-01-02 15:04"), status, rec.FileName, rec.FileType)
				fmt.Printf("    committed %d, skipped %d duplicates, %d error(s)\n",
					rec.Stats.SuccessCount, rec.Stats.DuplicatesSkipped, rec.Stats.ErrorCount)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of records to show")
	return cmd
}
