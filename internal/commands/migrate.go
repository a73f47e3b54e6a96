package commands

import (
	"log/slog"

	"kanbanhub/internal/store"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := store.Migrate(st.DB()); err != nil {
			return err
		}
		log.Info("migration finished", slog.String("driver", cfg.Database.Driver))
		cmd.Println("database schema is up to date")
		return nil
	},
}
