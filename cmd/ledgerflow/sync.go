package main

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pmarsh-dev/ledgerflow/internal/cli"
	"github.com/pmarsh-dev/ledgerflow/internal/engine"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

func syncCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the offline queue",
		Long: `Processes everything waiting in the durable queue: queued transactions
are committed to the ledger and queued images are handed to the
extraction pipeline. Items that keep failing are retired after their
retry budget is spent.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			ledger, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			local := buildLocal()
			cloud := buildCloud()
			orchestrator := buildOrchestrator(ctx, ledger, nil, local, cloud)
			cond := conditions(offline, local, cloud)

			// Queued images go back through the full pipeline; the
			// drain's own retry counting handles failures, so the
			// orchestrator runs without an image queue here.
			processor := func(ctx context.Context, req service.ImageProcessRequest) error {
				result, err := orchestrator.Process(ctx, engine.ImportRequest{
					FileName:   req.FileName,
					MimeType:   req.MimeType,
					Payloads:   [][]byte{req.Payload},
					Conditions: cond,
				})
				if err != nil {
					return err
				}
				_, err = orchestrator.Confirm(ctx, result, nil)
				return err
			}

			q, qStore, err := openQueue(ledger, func() bool { return !offline }, processor)
			if err != nil {
				return err
			}
			defer func() { _ = qStore.Close() }()

			bar := progressbar.NewOptions(100,
				progressbar.OptionSetDescription("syncing"),
				progressbar.OptionClearOnFinish())

			result, err := q.SyncQueue(ctx, func(percent int) {
				_ = bar.Set(percent)
			})
			_ = bar.Finish()
			if err != nil {
				return err
			}

			if result.Success == 0 && result.Failed == 0 {
				fmt.Println(cli.FormatInfo("queue is empty, nothing to sync"))
				return nil
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("synced %d item(s), %d failed", result.Success, result.Failed)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "treat the network as unavailable (drain becomes a no-op)")
	return cmd
}
