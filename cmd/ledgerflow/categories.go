package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmarsh-dev/ledgerflow/internal/cli"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage spending categories",
	}
	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesAddCmd())
	return cmd
}

func categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			categories, err := ledger.Categories(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(cli.TitleStyle.Render("Categories"))
			for _, c := range categories {
				fmt.Printf("  %s  %s\n", cli.BoldStyle.Render(c.ID), c.Name)
			}
			return nil
		},
	}
}

func categoriesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger()
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			if err := ledger.AddCategory(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("added category %s", args[0])))
			return nil
		},
	}
}
