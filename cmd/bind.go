package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentic-research/dmpath/internal/binding"
	"github.com/agentic-research/dmpath/internal/config"
)

var bindLabel string

func init() {
	bindAddCmd.Flags().StringVarP(&bindLabel, "label", "l", "", "Human label for the binding")
	bindCmd.AddCommand(bindAddCmd, bindListCmd, bindRmCmd)
	rootCmd.AddCommand(bindCmd)
}

var bindCmd = &cobra.Command{
	Use:   "bind",
	Short: "Manage persisted path bindings",
}

var bindAddCmd = &cobra.Command{
	Use:   "add <module> <path>",
	Short: "Store a binding to a path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := binding.NewReference(args[0], args[1], bindLabel)
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if err := store.Save(cmd.Context(), ref); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ref.ID)
		return nil
	},
}

var bindListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored bindings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		refs, err := store.List(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMODULE\tPATH\tLABEL")
		for _, r := range refs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Module, r.Path, r.Label)
		}
		return tw.Flush()
	},
}

var bindRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a stored binding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid binding id: %w", err)
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		return store.Delete(cmd.Context(), id)
	},
}

func openStore() (*binding.Store, error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return nil, err
	}
	return binding.Open(cfg.Store.DSN)
}
