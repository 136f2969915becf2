package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atvault/lexhost/internal/config"
	"github.com/atvault/lexhost/internal/store"
)

// NewAdminCommand creates the admin command and its subcommands.
// Operating directly on the database makes this the bootstrap path:
// the first key can be minted before the server has any.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin API keys",
	}
	cmd.AddCommand(newAdminCreateCommand(rootOpts))
	cmd.AddCommand(newAdminListCommand(rootOpts))
	cmd.AddCommand(newAdminDeleteCommand(rootOpts))
	return cmd
}

func openAdminStore(opts *RootOptions) (*store.Store, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	return st, nil
}

func newAdminCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "create <name>",
		Short:         "Mint a new admin API key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openAdminStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			admin, key, err := st.CreateAdmin(context.Background(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "create admin", err)
			}
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if formatter.Format == "json" {
				return formatter.Success(map[string]any{
					"id":   admin.ID,
					"name": admin.Name,
					"key":  key,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (id %s)\n", admin.Name, admin.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "key: %s\n", key)
			fmt.Fprintln(cmd.OutOrStdout(), "Store it now; the key is not shown again.")
			return nil
		},
	}
}

func newAdminListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List admin API keys",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openAdminStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			admins, err := st.ListAdmins(context.Background())
			if err != nil {
				return WrapExitError(ExitFailure, "list admins", err)
			}
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if formatter.Format == "json" {
				return formatter.Success(admins)
			}
			for _, a := range admins {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", a.ID, a.Name)
			}
			return nil
		},
	}
}

func newAdminDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Revoke an admin API key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openAdminStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteAdmin(context.Background(), args[0]); err != nil {
				return WrapExitError(ExitFailure, "delete admin", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s deleted\n", args[0])
			return nil
		},
	}
}
