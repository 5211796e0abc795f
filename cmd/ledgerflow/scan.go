package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pmarsh-dev/ledgerflow/internal/cli"
	"github.com/pmarsh-dev/ledgerflow/internal/common"
)

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <image>",
		Short: "Quick-read a receipt's merchant, amount, and date without importing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0]) // #nosec G304 -- user-supplied image
			if err != nil {
				return &common.UserError{UserMessage: fmt.Sprintf("cannot read %s", args[0]), Err: err}
			}

			cloud := buildCloud()
			if cloud == nil || !cloud.IsAvailable() {
				return &common.UnavailableError{Reason: "no cloud provider configured"}
			}

			summary, err := cloud.ParseReceipt(cmd.Context(), payload, mime.TypeByExtension(filepath.Ext(args[0])))
			if err != nil {
				return err
			}

			fmt.Println(cli.TitleStyle.Render(cli.ReceiptIcon + " " + summary.Merchant))
			fmt.Printf("amount:     %s %s\n", summary.Amount.StringFixed(2), summary.Currency)
			fmt.Printf("date:       %s\n", summary.Date.Format("2006-01-02"))
			fmt.Printf("confidence: %.2f\n", summary.Confidence)
			return nil
		},
	}
}
