package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"netpresence/internal/presence/infrastructure/sqlstore"
)

var errNoSQLStore = errors.New("migrate: database driver is not SQL")

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if strings.EqualFold(cfg.Database.Driver, driverMemory) {
				return errNoSQLStore
			}
			driver, err := sqlstore.ParseDriver(cfg.Database.Driver)
			if err != nil {
				return err
			}
			store, err := sqlstore.Open(cmd.Context(), driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", driver)
			return nil
		},
	}
}
