package commands

import (
	"kanbanhub/internal/seed"
	"kanbanhub/internal/store"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo users and the demo board",
	Long: `seed creates the demo users and the "Product Roadmap" board.
Running it again leaves existing demo data untouched.`,
	Args: cobra.NoArgs,
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
		if err := seed.Demo(cmd.Context(), st, log); err != nil {
			return err
		}
		cmd.Printf("demo data ready, log in with john.doe@example.com / %s\n", seed.DemoPassword)
		return nil
	},
}
