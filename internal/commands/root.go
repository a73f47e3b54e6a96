// Package commands 实现 kanbanctl 管理命令。
package commands

import (
	"fmt"
	"log/slog"

	"kanbanhub/internal/config"
	"kanbanhub/internal/pkg/logger"
	"kanbanhub/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "kanbanctl",
	Short: "Administrative tool for the kanbanhub service",
	Long: `kanbanctl runs maintenance tasks against the kanbanhub database:
schema migration, demo data and build information.`,
	SilenceUsage: true,
}

// SetVersion 设置构建信息。
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute 执行根命令。
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig 读取 --config 指定的配置文件，未指定时使用 KANBANHUB_CONFIG 或默认路径。
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	level := cfg.App.LogLevel
	if v := viper.GetString("log_level"); v != "" {
		level = v
	}
	return cfg, logger.NewDefault(level), nil
}

// openStore 打开数据库连接，调用方负责关闭。
func openStore(cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store.New(db), nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config.json (default configs/config.json)")
	rootCmd.PersistentFlags().String("log-level", "", "override app.log_level")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindEnv("config", "KANBANHUB_CONFIG")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}
