package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmarsh-dev/ledgerflow/internal/cli"
	"github.com/pmarsh-dev/ledgerflow/internal/queue"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the offline queue",
	}
	cmd.AddCommand(queueStatsCmd())
	cmd.AddCommand(queueClearCmd("clear-completed", "Remove completed items",
		func(q *queue.Queue, cmd *cobra.Command) error { return q.ClearCompleted(cmd.Context()) }))
	cmd.AddCommand(queueClearCmd("clear-failed", "Remove permanently failed items",
		func(q *queue.Queue, cmd *cobra.Command) error { return q.ClearFailed(cmd.Context()) }))
	cmd.AddCommand(queueClearCmd("clear-all", "Empty the queue entirely",
		func(q *queue.Queue, cmd *cobra.Command) error { return q.ClearAll(cmd.Context()) }))
	cmd.AddCommand(queueLogsCmd())
	cmd.AddCommand(queuePruneLogsCmd())
	return cmd
}

func queueLogsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent sync-log entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(func(_ *queue.Queue, store *queue.Store) error {
				entries, err := store.Logs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Println(cli.SubtleStyle.Render("no sync activity yet"))
					return nil
				}
				for _, entry := range entries {
					line := fmt.Sprintf("%s  %-16s %s", entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Action, entry.ItemID)
					if entry.Details != "" {
						line += "  " + cli.SubtleStyle.Render(entry.Details)
					}
					fmt.Println(line)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries to show")
	return cmd
}

func withQueue(fn func(*queue.Queue, *queue.Store) error) error {
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	q, store, err := openQueue(ledger, nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(q, store)
}

func queueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(func(q *queue.Queue, _ *queue.Store) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Println(cli.TitleStyle.Render(cli.QueueIcon + " Queue"))
				fmt.Printf("pending images:       %d\n", stats.PendingImages)
				fmt.Printf("pending transactions: %d\n", stats.PendingTransactions)
				fmt.Printf("failed items:         %d\n", stats.FailedItems)
				if stats.LastSyncedAt != nil {
					fmt.Printf("last synced:          %s\n", stats.LastSyncedAt.Format("2006-01-02 15:04:05"))
				} else {
					fmt.Println(cli.SubtleStyle.Render("never synced"))
				}
				return nil
			})
		},
	}
}

func queueClearCmd(use, short string, clear func(*queue.Queue, *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(func(q *queue.Queue, _ *queue.Store) error {
				if err := clear(q, cmd); err != nil {
					return err
				}
				fmt.Println(cli.FormatSuccess("done"))
				return nil
			})
		},
	}
}

func queuePruneLogsCmd() *cobra.Command {
	var olderThan int

	cmd := &cobra.Command{
		Use:   "prune-logs",
		Short: "Prune old sync-log entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(func(q *queue.Queue, _ *queue.Store) error {
				removed, err := q.ClearOldLogs(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("pruned %d log entrie(s)", removed)))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&olderThan, "older-than", 30, "prune entries older than this many days")
	return cmd
}

