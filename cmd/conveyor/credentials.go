package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/secrets"
)

// newCredentialsCmd — управление credentials в PostgreSQL (DB_URL),
// откуда их читает conveyor serve --database.
func newCredentialsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage credentials stored in PostgreSQL (DB_URL)",
	}

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Store every credential from a YAML credentials file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := secrets.LoadFile(args[0])
			if err != nil {
				return err
			}

			pool, err := repo.NewPool(cmd.Context())
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()
			if err := repo.Migrate(cmd.Context(), pool); err != nil {
				return err
			}

			creds := repo.NewCredentialRepo(pool)
			for _, cred := range store.Credentials() {
				err := creds.Put(cmd.Context(), cred)
				cred.Wipe()
				if err != nil {
					return fmt.Errorf("%s: %w", cred.ID, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Credential stored: %s\n", cred.ID)
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := repo.NewPool(cmd.Context())
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			if err := repo.NewCredentialRepo(pool).Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Credential deleted: %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(importCmd, deleteCmd)
	return cmd
}
